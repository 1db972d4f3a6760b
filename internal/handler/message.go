package handler

import (
	"net/http"
	"time"

	"github.com/globalchat/internal/logger"
	"github.com/globalchat/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// MessageHandler отдаёт снапшот истории беседы.
type MessageHandler struct {
	store        storage.MessageStore
	defaultLimit int
}

// NewMessageHandler создаёт обработчик. defaultLimit — размер снапшота
// без явного ?limit (0 — встроенный default).
func NewMessageHandler(store storage.MessageStore, defaultLimit int) *MessageHandler {
	if defaultLimit <= 0 || defaultLimit > maxHistoryLimit {
		defaultLimit = defaultHistoryLimit
	}
	return &MessageHandler{store: store, defaultLimit: defaultLimit}
}

// GetHistory — GET /api/messages?limit=N: последние N записей по
// created_at по возрастанию (полный снапшот для замены коллекции клиента).
func (h *MessageHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.GetHistory", time.Now())()
	limit := queryInt(r, "limit", h.defaultLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = h.defaultLimit
	}
	records, err := h.store.History(r.Context(), limit)
	if err != nil {
		logger.Errorf("history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, records)
}
