package ws

import "github.com/globalchat/internal/model"

type EventType string

const (
	EventNewMessage EventType = "new_message"
	EventError      EventType = "error"
)

// Incoming — событие от клиента: единственная операция — публикация записи.
type Incoming struct {
	Type   EventType    `json:"type"`
	Record model.Record `json:"record"`
}

// Outgoing — событие сервера. Payload — типизированная структура
// (model.Record для вставок, string для ошибок).
type Outgoing struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}
