// Package presenter — привязка сообщения к строке списка. Строки —
// переиспользуемые визуальные слоты: один и тот же слот в разное время
// показывает разные сообщения, поэтому всё сопоставление с активной
// сессией воспроизведения идёт по стабильному id сообщения.
package presenter

import (
	"context"
	"fmt"
	"time"

	"github.com/globalchat/internal/logger"
	"github.com/globalchat/internal/model"
	"github.com/globalchat/internal/playback"
	"github.com/globalchat/internal/runloop"
)

type Icon string

const (
	IconPlay  Icon = "play"
	IconPause Icon = "pause"
)

const probeTimeout = 10 * time.Second

// RowState — всё, что нужно отрисовать в одной строке. Видима ровно одна
// форма содержимого (текст / изображение / аудио-контролы) по Kind.
type RowState struct {
	MessageID  string
	Kind       model.MessageKind
	Body       string
	SenderName string
	AvatarURL  string
	MediaURL   string
	// IsOwn вычисляется при каждом bind сравнением sender_id с локальной
	// идентичностью; в данных не хранится.
	IsOwn bool

	// Аудио-презентация.
	Icon       Icon
	PositionMs int64
	TotalMs    int64
	Clock      string
}

// FormatClock — подпись таймера: "mm:ss / mm:ss", либо "00:00" пока
// длительность неизвестна.
func FormatClock(positionMs, totalMs int64) string {
	if totalMs <= 0 {
		return "00:00"
	}
	return fmt.Sprintf("%s / %s", mmss(positionMs), mmss(totalMs))
}

func mmss(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	sec := ms / 1000
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}

// Row — презентер одного визуального слота. Методы вызываются на цикле событий.
type Row struct {
	loop   *runloop.Loop
	coord  *playback.Coordinator
	prober playback.Prober
	render func(RowState)

	msg   model.Message
	bound bool
	st    RowState
}

func NewRow(loop *runloop.Loop, coord *playback.Coordinator, prober playback.Prober, render func(RowState)) *Row {
	return &Row{loop: loop, coord: coord, prober: prober, render: render}
}

// Bind привязывает сообщение к слоту. Аудио-строка сбрасывается к виду
// покоя, затем синхронизируется с координатором, если именно это сообщение
// активно — включая случай, когда воспроизведение стартовала другая
// физическая строка, позже переиспользованная под другие данные.
func (r *Row) Bind(msg model.Message, localUserID string) {
	r.msg = msg
	r.bound = true
	r.st = RowState{
		MessageID:  msg.ID,
		Kind:       msg.Kind,
		Body:       msg.Body,
		SenderName: msg.SenderName,
		AvatarURL:  msg.SenderAvatarURL,
		MediaURL:   msg.MediaURL,
		IsOwn:      localUserID != "" && msg.SenderID == localUserID,
	}
	if msg.Kind == model.KindAudio {
		r.st.Icon = IconPlay
		r.st.PositionMs = 0
		r.st.TotalMs = msg.DurationMs
		r.st.Clock = FormatClock(0, msg.DurationMs)
		if cur, ok := r.coord.Current(); ok && cur.MessageID == msg.ID {
			// Слот становится текущей целью рассылки — не прежние
			// (возможно, устаревшие) значения этой строки.
			r.applyLocked(cur)
		} else if msg.DurationMs == 0 && msg.MediaURL != "" {
			r.probeDuration(msg.ID, msg.MediaURL)
		}
	}
	r.render(r.st)
}

// probeDuration — best-effort определение длительности для подписи.
// Ошибки молча игнорируются: подпись остаётся "00:00".
func (r *Row) probeDuration(messageID, url string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		ms, err := r.prober.ProbeDurationMs(ctx, url)
		if err != nil {
			logger.Debugf("presenter: duration probe %s: %v", url, err)
			return
		}
		r.loop.Post(func() {
			// Слот могли перепривязать, а сессия — узнать длительность точнее.
			if !r.bound || r.msg.ID != messageID || r.st.TotalMs > 0 {
				return
			}
			r.st.TotalMs = ms
			r.st.Clock = FormatClock(r.st.PositionMs, ms)
			r.render(r.st)
		})
	}()
}

// PlayTapped — нажатие play/pause на аудио-строке.
func (r *Row) PlayTapped() {
	if !r.bound || r.msg.Kind != model.KindAudio || r.msg.MediaURL == "" {
		return
	}
	r.coord.Request(r.msg.ID, r.msg.MediaURL)
}

// SeekStart/SeekEnd — перемотка жестом по слайдеру этой строки.
func (r *Row) SeekStart() { r.coord.BeginSeek() }
func (r *Row) SeekEnd(positionMs int64) {
	r.coord.EndSeek(positionMs)
}

// Apply применяет событие рассылки. Чужие id игнорируются: адресация только
// по сообщению, координатор ничего не знает о физических слотах.
func (r *Row) Apply(u playback.Update) {
	if !r.bound || u.MessageID != r.msg.ID {
		return
	}
	r.applyLocked(u)
	r.render(r.st)
}

func (r *Row) applyLocked(u playback.Update) {
	switch u.State {
	case playback.StatePlaying:
		r.st.Icon = IconPause
		r.st.PositionMs = u.PositionMs
		r.st.TotalMs = u.TotalMs
	case playback.StatePaused:
		r.st.Icon = IconPlay
		r.st.PositionMs = u.PositionMs
		r.st.TotalMs = u.TotalMs
	case playback.StateLoading:
		r.st.Icon = IconPlay
		r.st.PositionMs = 0
	default:
		// Idle / Completed / Error — сброс к виду покоя.
		r.st.Icon = IconPlay
		r.st.PositionMs = 0
		if u.TotalMs > 0 {
			r.st.TotalMs = u.TotalMs
		}
	}
	r.st.Clock = FormatClock(r.st.PositionMs, r.st.TotalMs)
}

// Unbind освобождает слот: события рассылки больше не применяются.
func (r *Row) Unbind() {
	r.bound = false
	r.msg = model.Message{}
	r.st = RowState{}
}

// State — текущее состояние строки (для тестов и отладочной отрисовки).
func (r *Row) State() RowState { return r.st }

// MessageID — id привязанного сообщения ("" если слот пуст).
func (r *Row) MessageID() string {
	if !r.bound {
		return ""
	}
	return r.msg.ID
}
