package audioserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

func uploadRequest(t *testing.T, filename string, data []byte, durationMs string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if durationMs != "" {
		mw.WriteField("duration_ms", durationMs)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/audio/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadRejectsNonAudioExtension(t *testing.T) {
	svc := New(t.TempDir(), 1<<20)
	rr := httptest.NewRecorder()
	svc.Upload(rr, uploadRequest(t, "notes.txt", []byte("hello"), ""))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for .txt, got %d", rr.Code)
	}
}

func TestUploadStoresSidecarAndServesHeader(t *testing.T) {
	svc := New(t.TempDir(), 1<<20)
	rr := httptest.NewRecorder()
	svc.Upload(rr, uploadRequest(t, "voice.ogg", []byte("fake-ogg"), "4200"))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload failed: %d %s", rr.Code, rr.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DurationMs != 4200 || resp.FileName == "" {
		t.Fatalf("bad response: %+v", resp)
	}

	head := httptest.NewRequest(http.MethodHead, "/api/audio/"+resp.FileName, nil)
	rr2 := httptest.NewRecorder()
	svc.Serve(rr2, head, resp.FileName)
	if rr2.Code != http.StatusOK {
		t.Fatalf("serve: %d", rr2.Code)
	}
	if got := rr2.Header().Get("X-Audio-Duration-Ms"); got != "4200" {
		t.Fatalf("want duration header 4200, got %q", got)
	}
}

func TestServeHidesMetaAndTraversal(t *testing.T) {
	svc := New(t.TempDir(), 1<<20)
	for _, name := range []string{"../secret", "a/b.ogg", "x.ogg.meta", ""} {
		rr := httptest.NewRecorder()
		svc.Serve(rr, httptest.NewRequest(http.MethodGet, "/api/audio/x", nil), name)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("serve(%q): want 404, got %d", name, rr.Code)
		}
	}
}
