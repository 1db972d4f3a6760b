package transport

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/globalchat/internal/audioserver"
	"github.com/globalchat/internal/handler"
	"github.com/globalchat/internal/model"
	"github.com/globalchat/internal/playback"
	"github.com/globalchat/internal/storage/memory"
	"github.com/globalchat/internal/ws"
)

// newTestServer поднимает полный API-сервис поверх памяти: история,
// realtime-канал, загрузка и раздача аудио.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.New()
	hub := ws.NewHub(store, 0)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	audioSvc := audioserver.New(t.TempDir(), 1<<20)
	msgH := handler.NewMessageHandler(store, 0)
	audioH := handler.NewAudioHandler(audioSvc)
	wsH := handler.NewWSHandler(hub, "*")

	r := chi.NewRouter()
	r.Get("/api/messages", msgH.GetHistory)
	r.Get("/api/audio/{filename}", audioH.Serve)
	r.Post("/api/audio/upload", audioH.Upload)
	r.Get("/ws", wsH.ServeWS)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		hubCancel()
		<-hubDone
	})
	return srv
}

func subscribe(t *testing.T, c *Client) (chan model.Record, chan error) {
	t.Helper()
	inserts := make(chan model.Record, 16)
	errs := make(chan error, 16)
	h, err := c.Subscribe(
		func(rec model.Record) { inserts <- rec },
		func(err error) { errs <- err },
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(h.Close)
	return inserts, errs
}

func TestPublishRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL)
	inserts, _ := subscribe(t, c)

	out := model.Record{
		SenderID:   "u1",
		SenderName: "alice",
		Message:    "hello world",
		Type:       string(model.KindText),
	}
	if err := c.Send(context.Background(), out); err != nil {
		t.Fatalf("send: %v", err)
	}

	var got model.Record
	select {
	case got = <-inserts:
	case <-time.After(3 * time.Second):
		t.Fatalf("published message never came back on the live channel")
	}
	if got.Message != "hello world" || got.SenderID != "u1" {
		t.Fatalf("echo mismatch: %+v", got)
	}
	if got.ID == "" {
		t.Fatalf("server must assign an id")
	}
	if model.ParseCreatedAt(got.CreatedAt).IsZero() {
		t.Fatalf("server must assign created_at, got %q", got.CreatedAt)
	}

	// История отдаёт то же сообщение под тем же id.
	recs, err := c.FetchHistory(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != got.ID {
		t.Fatalf("history mismatch: %+v", recs)
	}
}

func TestSendWithoutSubscription(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL)
	err := c.Send(context.Background(), model.Record{Type: string(model.KindText), Message: "x"})
	if err != ErrNotSubscribed {
		t.Fatalf("want ErrNotSubscribed, got %v", err)
	}
}

func TestServerRejectsInvalidRecord(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL)
	inserts, errs := subscribe(t, c)

	// Без sender_id публикация отклоняется ошибкой, вставки нет.
	bad := model.Record{Type: string(model.KindText), Message: "anonymous"}
	if err := c.Send(context.Background(), bad); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("want validation error")
		}
	case rec := <-inserts:
		t.Fatalf("invalid record must not be broadcast: %+v", rec)
	case <-time.After(3 * time.Second):
		t.Fatalf("no error event for invalid record")
	}
}

func TestHistoryKeepsServerOrder(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL)
	inserts, _ := subscribe(t, c)

	for _, body := range []string{"first", "second", "third"} {
		rec := model.Record{SenderID: "u1", SenderName: "alice", Message: body, Type: string(model.KindText)}
		if err := c.Send(context.Background(), rec); err != nil {
			t.Fatalf("send %s: %v", body, err)
		}
		// Дожидаемся эха перед следующей отправкой: порядок присвоения
		// created_at на сервере становится детерминированным.
		select {
		case <-inserts:
		case <-time.After(3 * time.Second):
			t.Fatalf("no echo for %s", body)
		}
	}

	recs, err := c.FetchHistory(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("want 3 records, got %d", len(recs))
	}
	want := []string{"first", "second", "third"}
	for i, body := range want {
		if recs[i].Message != body {
			t.Fatalf("order: want %v, got %+v", want, recs)
		}
	}
}

func TestUploadAudioAndProbeDuration(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL)

	url, err := c.UploadAudio(context.Background(), "voice.ogg", []byte("fake-ogg-bytes"), 4200)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	prober := playback.NewHTTPProber()
	ms, err := prober.ProbeDurationMs(context.Background(), url)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if ms != 4200 {
		t.Fatalf("want probed duration 4200, got %d", ms)
	}
}

func TestUploadWithoutDurationHasNoHeader(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL)

	url, err := c.Upload(context.Background(), "audio", "voice.ogg", []byte("fake-ogg-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	prober := playback.NewHTTPProber()
	if _, err := prober.ProbeDurationMs(context.Background(), url); err == nil {
		t.Fatalf("probe must fail without a stored duration")
	}
}
