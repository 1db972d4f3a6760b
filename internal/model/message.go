package model

import "time"

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindAudio MessageKind = "audio"
)

// Message — сообщение глобального чата. После слияния в поток не мутирует;
// единственная вычисляемая проекция — IsOwn в презентере (по senderId).
type Message struct {
	ID              string      `json:"id"`
	SenderID        string      `json:"sender_id"`
	SenderName      string      `json:"sender_name"`
	SenderAvatarURL string      `json:"sender_avatar_url,omitempty"`
	Body            string      `json:"body,omitempty"`
	Kind            MessageKind `json:"kind"`
	MediaURL        string      `json:"media_url,omitempty"`
	// DurationMs — известная длина аудио; 0 = ещё не определена (best-effort probe).
	DurationMs int64     `json:"duration_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasMedia сообщает, обязан ли media_url присутствовать для данного типа.
func (m Message) HasMedia() bool {
	return m.Kind == KindImage || m.Kind == KindAudio
}

// MoreComplete выбирает более полную из двух записей с одним id:
// предпочитаем ту, у которой известна длительность аудио.
func MoreComplete(a, b Message) Message {
	if a.DurationMs == 0 && b.DurationMs > 0 {
		return b
	}
	return a
}
