// Package storage — хранилище истории глобальной беседы.
// Реализации: postgres (основная), redisstore (capped-список), memory
// (тесты и запуск без внешних зависимостей).
package storage

import (
	"context"
	"errors"

	"github.com/globalchat/internal/model"
)

// ErrNotFound возвращается реализациями при отсутствии записи.
var ErrNotFound = errors.New("storage: not found")

// MessageStore — упорядоченное append-only хранилище записей беседы.
type MessageStore interface {
	// Append добавляет запись в конец истории.
	Append(ctx context.Context, rec model.Record) error
	// History возвращает последние limit записей по created_at по возрастанию.
	History(ctx context.Context, limit int) ([]model.Record, error)
	Close() error
}
