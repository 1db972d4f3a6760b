package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/globalchat/internal/audioserver"
)

// AudioHandler связывает маршруты chi с сервисом голосовых сообщений.
type AudioHandler struct {
	svc *audioserver.Service
}

func NewAudioHandler(svc *audioserver.Service) *AudioHandler {
	return &AudioHandler{svc: svc}
}

func (h *AudioHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.svc.Upload(w, r)
}

func (h *AudioHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.svc.Serve(w, r, chi.URLParam(r, "filename"))
}
