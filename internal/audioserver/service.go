// Package audioserver — загрузка и раздача голосовых сообщений.
// Рядом с файлом хранится sidecar с известной длительностью; при раздаче
// она отдаётся заголовком X-Audio-Duration-Ms — его читают probe клиентов.
package audioserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/globalchat/internal/logger"
)

var allowedExt = map[string]bool{
	".ogg": true, ".oga": true, ".webm": true, ".m4a": true, ".mp4": true, ".mp3": true,
}

var allowedMime = map[string]bool{
	"audio/ogg": true, "audio/webm": true, "audio/mp4": true, "audio/mpeg": true,
	"audio/x-m4a": true, "video/webm": true, "audio/opus": true,
	"audio/aac": true, "audio/x-aac": true,
}

const maxUploadSize = 25 << 20 // 25 MB

// UploadResponse — ответ после успешной загрузки.
type UploadResponse struct {
	URL        string `json:"url"`
	FileName   string `json:"file_name"`
	FileSize   int64  `json:"file_size"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Service обрабатывает загрузку и раздачу голосовых сообщений.
type Service struct {
	UploadDir     string
	MaxUploadSize int64
}

// New создаёт сервис с заданным каталогом и лимитом размера (в байтах).
func New(uploadDir string, maxSize int64) *Service {
	if maxSize <= 0 || maxSize > maxUploadSize {
		maxSize = maxUploadSize
	}
	return &Service{UploadDir: uploadDir, MaxUploadSize: maxSize}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("audioserver writeJSON: %v", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Upload обрабатывает POST multipart/form-data: поле "file" (только аудио)
// и опциональное "duration_ms" — известная отправителю длительность.
func (s *Service) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadSize)

	if err := r.ParseMultipartForm(s.MaxUploadSize); err != nil {
		logger.Errorf("audioserver upload: parse multipart: %v", err)
		s.writeError(w, http.StatusBadRequest, "file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Errorf("audioserver upload: form file: %v", err)
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExt[ext] {
		logger.Errorf("audioserver upload: disallowed extension filename=%q ext=%q", header.Filename, ext)
		s.writeError(w, http.StatusBadRequest, "only audio files are allowed")
		return
	}

	ct := header.Header.Get("Content-Type")
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if ct != "" && ct != "application/octet-stream" && !allowedMime[ct] {
		logger.Errorf("audioserver upload: disallowed content-type filename=%q content_type=%q", header.Filename, ct)
		s.writeError(w, http.StatusBadRequest, "only audio content type allowed")
		return
	}

	var durationMs int64
	if raw := r.FormValue("duration_ms"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			durationMs = v
		}
	}

	newName := uuid.New().String() + ext
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		logger.Errorf("audioserver upload: mkdir %s: %v", s.UploadDir, err)
		s.writeError(w, http.StatusInternalServerError, "failed to create upload dir")
		return
	}

	dstPath := filepath.Join(s.UploadDir, newName)
	dst, err := os.Create(dstPath)
	if err != nil {
		logger.Errorf("audioserver upload: create %s: %v", dstPath, err)
		s.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	defer dst.Close()

	n, err := copyWithContext(ctx, dst, file)
	if err != nil {
		os.Remove(dstPath)
		if ctx.Err() != nil {
			return
		}
		logger.Errorf("audioserver upload: copy: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	if durationMs > 0 {
		if err := s.writeSidecar(newName, durationMs); err != nil {
			// Длительность — best-effort метаданные, загрузку не роняем.
			logger.Errorf("audioserver upload: sidecar %s: %v", newName, err)
		}
	}

	logger.Infof("audioserver upload: ok filename=%s size=%d duration_ms=%d", newName, n, durationMs)
	s.writeJSON(w, http.StatusOK, UploadResponse{
		URL:        "/api/audio/" + newName,
		FileName:   newName,
		FileSize:   n,
		DurationMs: durationMs,
	})
}

type sidecar struct {
	DurationMs int64 `json:"duration_ms"`
}

func (s *Service) writeSidecar(filename string, durationMs int64) error {
	raw, err := json.Marshal(sidecar{DurationMs: durationMs})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.UploadDir, filename+".meta"), raw, 0o644)
}

func (s *Service) readSidecar(filename string) int64 {
	raw, err := os.ReadFile(filepath.Join(s.UploadDir, filename+".meta"))
	if err != nil {
		return 0
	}
	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return 0
	}
	return sc.DurationMs
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var n int64
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}
		nr, err := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			n += int64(nw)
			if ew != nil {
				return n, ew
			}
		}
		if err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, err
		}
	}
}

// Serve отдаёт файл по имени. HEAD с заголовком X-Audio-Duration-Ms —
// это и есть probe длительности для клиентов.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, filename string) {
	if filename == "" || strings.Contains(filename, "..") || strings.Contains(filename, "/") ||
		strings.HasSuffix(filename, ".meta") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	path := filepath.Join(s.UploadDir, filename)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	ext := strings.ToLower(filepath.Ext(filename))
	ct := "audio/ogg"
	switch ext {
	case ".webm":
		ct = "audio/webm"
	case ".m4a", ".mp4":
		ct = "audio/mp4"
	case ".mp3":
		ct = "audio/mpeg"
	}
	if ms := s.readSidecar(filename); ms > 0 {
		w.Header().Set("X-Audio-Duration-Ms", strconv.FormatInt(ms, 10))
	}
	w.Header().Set("Content-Type", ct)
	http.ServeContent(w, r, filename, info.ModTime(), f)
}
