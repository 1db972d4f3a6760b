// Package stream — согласование потока сообщений одной беседы: слияние
// одноразовой выборки истории с realtime-каналом вставок в единую
// упорядоченную коллекцию без дублей.
package stream

import (
	"context"
	"sort"
	"time"

	"github.com/globalchat/internal/logger"
	"github.com/globalchat/internal/model"
	"github.com/globalchat/internal/runloop"
	"github.com/globalchat/internal/transport"
)

// Hooks — уведомления потока. Вызываются строго на цикле событий, по одному,
// в порядке завершения операций (Replaced и последующие Appended не переставляются).
type Hooks struct {
	// OnReplaced — история загружена, коллекция заменена целиком.
	OnReplaced func(msgs []model.Message)
	// OnAppended — новая запись из realtime-канала добавлена в конец.
	OnAppended func(msg model.Message)
	// OnError — ошибка выборки истории или realtime-канала.
	OnError func(err error)
}

// Stream владеет упорядоченной коллекцией сообщений беседы.
// Всё состояние мутируется только на цикле событий.
type Stream struct {
	loop  *runloop.Loop
	tr    transport.Transport
	hooks Hooks

	// Состояние ниже — только с горутины цикла.
	messages   []model.Message
	seen       map[string]int // id -> индекс в messages, O(1) дедупликация
	subscribed bool
	handle     transport.Handle
}

func New(loop *runloop.Loop, tr transport.Transport, hooks Hooks) *Stream {
	return &Stream{
		loop:  loop,
		tr:    tr,
		hooks: hooks,
		seen:  make(map[string]int),
	}
}

// LoadHistory запускает одноразовую выборку истории. Выборка идёт на фоновой
// горутине; результат возвращается на цикл. Успех заменяет коллекцию целиком
// (полный снапшот); ошибка оставляет прежнее состояние нетронутым и один раз
// репортится в OnError. Повторная попытка — повторный вызов LoadHistory.
func (s *Stream) LoadHistory(ctx context.Context) {
	go func() {
		records, err := s.tr.FetchHistory(ctx)
		s.loop.Post(func() {
			if err != nil {
				logger.Errorf("stream: history fetch: %v", err)
				if s.hooks.OnError != nil {
					s.hooks.OnError(err)
				}
				return
			}
			s.replaceAll(records)
		})
	}()
}

func (s *Stream) replaceAll(records []model.Record) {
	msgs := make([]model.Message, 0, len(records))
	seen := make(map[string]int, len(records))
	for _, rec := range records {
		m := rec.ToMessage()
		if idx, dup := seen[m.ID]; dup {
			// Сервер не гарантирует отсутствие повторов в снапшоте.
			msgs[idx] = model.MoreComplete(msgs[idx], m)
			continue
		}
		seen[m.ID] = len(msgs)
		msgs = append(msgs, m)
	}
	// created_at по возрастанию; равные — в порядке прихода (stable).
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	for i := range msgs {
		seen[msgs[i].ID] = i
	}
	s.messages = msgs
	s.seen = seen
	if s.hooks.OnReplaced != nil {
		s.hooks.OnReplaced(s.Snapshot())
	}
}

// SubscribeLive открывает realtime-подписку. Повторный вызов — no-op:
// две подписки доставляли бы каждую вставку дважды.
func (s *Stream) SubscribeLive() {
	s.loop.Post(func() {
		if s.subscribed {
			return
		}
		s.subscribed = true
		// Открытие канала — блокирующий I/O, уводим с цикла.
		go func() {
			handle, err := s.tr.Subscribe(
				func(rec model.Record) {
					s.loop.Post(func() { s.applyInsert(rec) })
				},
				func(err error) {
					s.loop.Post(func() {
						logger.Errorf("stream: live channel: %v", err)
						// Подписка не самовосстанавливается: флаг остаётся взведён,
						// переподключение после потери связи — на вызывающем коде.
						if s.hooks.OnError != nil {
							s.hooks.OnError(err)
						}
					})
				},
			)
			s.loop.Post(func() {
				if err != nil {
					s.subscribed = false
					logger.Errorf("stream: subscribe: %v", err)
					if s.hooks.OnError != nil {
						s.hooks.OnError(err)
					}
					return
				}
				s.handle = handle
			})
		}()
	})
}

// applyInsert — одна запись из realtime-канала. Дубликат (optimistic add,
// replay) молча отбрасывается; фид append-only, вставок в середину нет.
func (s *Stream) applyInsert(rec model.Record) {
	m := rec.ToMessage()
	if m.ID == "" {
		return
	}
	if idx, dup := s.seen[m.ID]; dup {
		// Побеждает более полная запись (известная длительность аудио),
		// но повторного события рендера нет.
		s.messages[idx] = model.MoreComplete(s.messages[idx], m)
		return
	}
	s.seen[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
	if s.hooks.OnAppended != nil {
		s.hooks.OnAppended(m)
	}
}

// SendText отправляет текстовое сообщение fire-and-forget. Локальной
// optimistic-вставки нет: отправитель увидит своё сообщение, когда оно
// вернётся через realtime-канал с серверным id.
func (s *Stream) SendText(ctx context.Context, sender Sender, body string) {
	s.send(ctx, model.Record{
		SenderID:        sender.ID,
		SenderName:      sender.Name,
		SenderAvatarURL: sender.AvatarURL,
		Message:         body,
		Type:            string(model.KindText),
	})
}

// SendImage отправляет сообщение-изображение по уже загруженному URL.
func (s *Stream) SendImage(ctx context.Context, sender Sender, fileURL string) {
	s.send(ctx, model.Record{
		SenderID:        sender.ID,
		SenderName:      sender.Name,
		SenderAvatarURL: sender.AvatarURL,
		Type:            string(model.KindImage),
		FileURL:         fileURL,
	})
}

// SendAudio отправляет голосовое сообщение; durationMs может быть 0 (длина
// ещё не известна — получатели определят её best-effort probe).
func (s *Stream) SendAudio(ctx context.Context, sender Sender, fileURL string, durationMs int64) {
	s.send(ctx, model.Record{
		SenderID:        sender.ID,
		SenderName:      sender.Name,
		SenderAvatarURL: sender.AvatarURL,
		Type:            string(model.KindAudio),
		FileURL:         fileURL,
		Duration:        durationMs,
	})
}

func (s *Stream) send(ctx context.Context, rec model.Record) {
	go func() {
		if err := s.tr.Send(ctx, rec); err != nil {
			s.loop.Post(func() {
				logger.Errorf("stream: send: %v", err)
				if s.hooks.OnError != nil {
					s.hooks.OnError(err)
				}
			})
		}
	}()
}

// Sender — поля локального профиля, уходящие в каждую отправку.
type Sender struct {
	ID        string
	Name      string
	AvatarURL string
}

// Snapshot возвращает копию коллекции. С горутины цикла — напрямую,
// с внешних — через синхронный Call.
func (s *Stream) Snapshot() []model.Message {
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SnapshotSync — снапшот для внешних горутин (маршалится через цикл).
func (s *Stream) SnapshotSync() []model.Message {
	var out []model.Message
	s.loop.Call(func() { out = s.Snapshot() })
	return out
}

// Close закрывает realtime-подписку (если была). Сам поток переиспользуем:
// повторный SubscribeLive после Close не предусмотрен — создавайте новый Stream.
func (s *Stream) Close() {
	done := make(chan struct{})
	s.loop.Post(func() {
		if s.handle != nil {
			s.handle.Close()
			s.handle = nil
		}
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
