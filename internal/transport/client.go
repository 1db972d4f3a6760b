package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/globalchat/internal/logger"
	"github.com/globalchat/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuf    = 64
)

// wsEnvelope — конверт realtime-события сервера.
type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// wsSend — исходящее событие клиента.
type wsSend struct {
	Type   string       `json:"type"`
	Record model.Record `json:"record"`
}

// Client — реализация Transport и Uploader поверх API-сервиса:
// история по HTTP, realtime и отправка по WebSocket, загрузка — multipart POST.
type Client struct {
	baseURL string
	wsURL   string
	http    *http.Client

	mu  sync.Mutex
	sub *subscription
}

// NewClient создаёт клиент API-сервиса. baseURL — например "http://localhost:8080".
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	wsURL := strings.Replace(strings.Replace(baseURL, "https://", "wss://", 1), "http://", "ws://", 1) + "/ws"
	return &Client{
		baseURL: baseURL,
		wsURL:   wsURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchHistory запрашивает GET /api/messages (снапшот, по возрастанию created_at).
func (c *Client) FetchHistory(ctx context.Context) ([]model.Record, error) {
	defer logger.DeferLogDuration("transport.FetchHistory", time.Now())()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/messages", nil)
	if err != nil {
		return nil, fmt.Errorf("transport history request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport history: status %d", resp.StatusCode)
	}
	var records []model.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("transport history decode: %w", err)
	}
	return records, nil
}

// Subscribe открывает WebSocket и запускает read/write pump.
// Повторный Subscribe при живой подписке закрывает предыдущую.
func (c *Client) Subscribe(onInsert func(model.Record), onError func(error)) (Handle, error) {
	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport dial %s: %w", c.wsURL, err)
	}
	sub := &subscription{
		conn:     conn,
		send:     make(chan wsSend, sendBuf),
		done:     make(chan struct{}),
		onInsert: onInsert,
		onError:  onError,
	}
	sub.wg.Add(2)
	go sub.readPump()
	go sub.writePump()

	c.mu.Lock()
	prev := c.sub
	c.sub = sub
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return sub, nil
}

// Send отправляет запись через открытый realtime-канал.
func (c *Client) Send(ctx context.Context, rec model.Record) error {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub == nil {
		return ErrNotSubscribed
	}
	select {
	case sub.send <- wsSend{Type: "new_message", Record: rec}:
		return nil
	case <-sub.done:
		return ErrNotSubscribed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Upload загружает файл в бакет сервиса: POST /api/{bucket}/upload.
func (c *Client) Upload(ctx context.Context, bucket, filename string, data []byte) (string, error) {
	return c.upload(ctx, bucket, filename, data, 0)
}

// UploadAudio — как Upload в бакет "audio", но с известной длительностью:
// сервис сохранит её и будет отдавать в X-Audio-Duration-Ms.
func (c *Client) UploadAudio(ctx context.Context, filename string, data []byte, durationMs int64) (string, error) {
	return c.upload(ctx, "audio", filename, data, durationMs)
}

func (c *Client) upload(ctx context.Context, bucket, filename string, data []byte, durationMs int64) (string, error) {
	defer logger.DeferLogDuration("transport.Upload", time.Now())()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("transport upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("transport upload write: %w", err)
	}
	if durationMs > 0 {
		if err := mw.WriteField("duration_ms", strconv.FormatInt(durationMs, 10)); err != nil {
			return "", fmt.Errorf("transport upload field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("transport upload close: %w", err)
	}

	url := c.baseURL + "/api/" + bucket + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("transport upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transport upload: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("transport upload decode: %w", err)
	}
	if strings.HasPrefix(out.URL, "/") {
		return c.baseURL + out.URL, nil
	}
	return out.URL, nil
}

// subscription — одна открытая WebSocket-подписка.
type subscription struct {
	conn     *websocket.Conn
	send     chan wsSend
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	onInsert func(model.Record)
	onError  func(error)
}

// Close останавливает оба pump. Безопасен из любой горутины, повторно — no-op.
func (s *subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *subscription) readPump() {
	defer s.wg.Done()
	defer s.Close()

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.fail(fmt.Errorf("transport read deadline: %w", err))
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("transport subscription closed: %w", err))
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Errorf("transport: bad event frame: %v", err)
			continue
		}
		switch env.Type {
		case "new_message":
			var rec model.Record
			if err := json.Unmarshal(env.Payload, &rec); err != nil {
				logger.Errorf("transport: bad insert payload: %v", err)
				continue
			}
			s.onInsert(rec)
		case "error":
			var msg string
			if err := json.Unmarshal(env.Payload, &msg); err != nil {
				msg = string(env.Payload)
			}
			if s.onError != nil {
				s.onError(errors.New(msg))
			}
		default:
			logger.Debugf("transport: ignoring event type=%s", env.Type)
		}
	}
}

// fail доставляет ошибку один раз — только если подписку ещё не закрыли явно.
func (s *subscription) fail(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	s.Close()
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *subscription) writePump() {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			s.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return
		case out := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteJSON(out); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
