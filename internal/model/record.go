package model

import (
	"strings"
	"time"
)

// Record — проводной формат записи сообщения (история и realtime-канал).
// Имена полей фиксированы серверной схемой.
type Record struct {
	ID              string `json:"id"`
	SenderID        string `json:"sender_id"`
	SenderName      string `json:"sender_name"`
	SenderAvatarURL string `json:"sender_avatar_url,omitempty"`
	Message         string `json:"message,omitempty"`
	Type            string `json:"type"`
	FileURL         string `json:"file_url,omitempty"`
	Duration        int64  `json:"duration,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// createdAtLayouts — варианты точности таймстампа, которые присылают разные
// бэкенды (с таймзоной и без, с долями секунды и без).
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseCreatedAt разбирает ISO-8601 строку; при пустом значении или нераспознанном
// формате возвращает текущее время (поведение "показать как только что").
func ParseCreatedAt(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now().UTC()
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// ToMessage конвертирует проводную запись в доменную модель.
func (r Record) ToMessage() Message {
	kind := MessageKind(r.Type)
	switch kind {
	case KindText, KindImage, KindAudio:
	default:
		kind = KindText
	}
	return Message{
		ID:              r.ID,
		SenderID:        r.SenderID,
		SenderName:      r.SenderName,
		SenderAvatarURL: r.SenderAvatarURL,
		Body:            r.Message,
		Kind:            kind,
		MediaURL:        r.FileURL,
		DurationMs:      r.Duration,
		CreatedAt:       ParseCreatedAt(r.CreatedAt),
	}
}

// ToRecord конвертирует доменную модель в проводную запись.
func (m Message) ToRecord() Record {
	created := ""
	if !m.CreatedAt.IsZero() {
		created = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return Record{
		ID:              m.ID,
		SenderID:        m.SenderID,
		SenderName:      m.SenderName,
		SenderAvatarURL: m.SenderAvatarURL,
		Message:         m.Body,
		Type:            string(m.Kind),
		FileURL:         m.MediaURL,
		Duration:        m.DurationMs,
		CreatedAt:       created,
	}
}
