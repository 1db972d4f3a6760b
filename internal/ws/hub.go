// Package ws — realtime-канал глобальной беседы: hub держит подключения,
// принимает публикации, сохраняет их и рассылает вставки всем клиентам
// (включая отправителя — доставка "своего" сообщения идёт тем же путём,
// что и чужих, единый источник истины по id).
package ws

import (
	"context"
	"strings"
	"time"

	"sync"

	"github.com/google/uuid"

	"github.com/globalchat/internal/logger"
	"github.com/globalchat/internal/model"
	"github.com/globalchat/internal/storage"
)

const defaultMaxConns = 10000

type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	maxConns int

	store      storage.MessageStore
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(store storage.MessageStore, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		maxConns:   maxConns,
		store:      store,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if len(h.clients) >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting %s", h.maxConns, c.remote)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	logger.Debugf("ws client connected: %s", c.remote)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		c.Close()
		logger.Debugf("ws client disconnected: %s", c.remote)
	}
}

// HandleMessage dispatches incoming client events.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, in Incoming) {
	switch in.Type {
	case EventNewMessage:
		h.handlePublish(ctx, c, in.Record)
	default:
		h.sendToClient(c, Outgoing{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) handlePublish(ctx context.Context, c *Client, rec model.Record) {
	defer logger.DeferLogDuration("ws.handlePublish", time.Now())()

	if reason := validate(rec); reason != "" {
		h.sendToClient(c, Outgoing{Type: EventError, Payload: reason})
		return
	}

	// id и created_at назначает сервер: клиентские значения игнорируются,
	// id становится уникальным в пределах беседы.
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.store.Append(ctx, rec); err != nil {
		logger.Errorf("ws save message sender=%s: %v", rec.SenderID, err)
		h.sendToClient(c, Outgoing{Type: EventError, Payload: "failed to save message"})
		return
	}

	h.Broadcast(Outgoing{Type: EventNewMessage, Payload: rec})
}

func validate(rec model.Record) string {
	if strings.TrimSpace(rec.SenderID) == "" || strings.TrimSpace(rec.SenderName) == "" {
		return "sender_id and sender_name required"
	}
	switch model.MessageKind(rec.Type) {
	case model.KindText:
		if strings.TrimSpace(rec.Message) == "" {
			return "message required"
		}
	case model.KindImage, model.KindAudio:
		if strings.TrimSpace(rec.FileURL) == "" {
			return "file_url required"
		}
	default:
		return "unknown message type"
	}
	return ""
}

// Broadcast рассылает событие всем подключённым клиентам.
func (h *Hub) Broadcast(out Outgoing) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, out)
	}
}

func (h *Hub) sendToClient(c *Client, out Outgoing) {
	select {
	case c.send <- out:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client %s", c.remote)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
