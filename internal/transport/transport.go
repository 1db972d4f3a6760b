// Package transport — контракты внешних коллабораторов клиентского ядра:
// канал доставки сообщений (история + realtime), загрузка файлов и локальная
// идентичность. Ядро (stream, playback, presenter) зависит только от этих
// интерфейсов.
package transport

import (
	"context"
	"errors"

	"github.com/globalchat/internal/model"
)

// ErrNotSubscribed возвращается из Send, когда realtime-канал ещё не открыт.
var ErrNotSubscribed = errors.New("transport: not subscribed")

// Handle — открытая realtime-подписка. Close останавливает доставку.
type Handle interface {
	Close()
}

// Transport — канал доставки сообщений одной беседы.
//
// Subscribe не переподключается сам: при обрыве канала onError вызывается один
// раз и доставка прекращается. Восстановление связи — ответственность вызывающего.
type Transport interface {
	// FetchHistory возвращает снапшот истории, упорядоченный по server timestamp
	// по возрастанию.
	FetchHistory(ctx context.Context) ([]model.Record, error)
	// Subscribe открывает realtime-канал; каждая вставка доставляется в onInsert.
	Subscribe(onInsert func(model.Record), onError func(error)) (Handle, error)
	// Send отправляет запись fire-and-forget; итоговая запись с серверным id
	// придёт через realtime-канал.
	Send(ctx context.Context, rec model.Record) error
}

// Uploader — загрузка байтов в хранилище объектов; возвращает публичный URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, filename string, data []byte) (string, error)
}

// Identity — локальная идентичность пользователя. Пустая строка = не авторизован.
type Identity interface {
	LocalUserID() string
}
