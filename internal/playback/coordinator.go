// Package playback — координатор воспроизведения голосовых сообщений.
// Владеет единственным декодером и единственной сессией; строки списка
// никогда не держат ссылку на декодер — только id сообщения и подписку
// на рассылку позиции.
package playback

import (
	"context"
	"time"

	"github.com/globalchat/internal/logger"
	"github.com/globalchat/internal/runloop"
)

type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// broadcastPeriod — каденс рассылки позиции во время воспроизведения.
const broadcastPeriod = 100 * time.Millisecond

// prepareTimeout ограничивает подготовку источника.
const prepareTimeout = 15 * time.Second

// Update — событие рассылки: строки находят "своё" по MessageID,
// а не по ссылке на конкретный визуальный слот.
type Update struct {
	MessageID  string
	PositionMs int64
	TotalMs    int64
	State      State
}

// session — сессия воспроизведения. Одновременно жива максимум одна.
type session struct {
	messageID   string
	sourceURL   string
	state       State
	positionMs  int64
	totalMs     int64
	userSeeking bool
	dec         Decoder
	stopTick    func()
	seq         uint64
}

// Coordinator — state machine Idle → Loading → Playing ⇄ Paused → Completed
// (+ Error из Loading/Playing). Все поля сессии мутируются только на цикле.
type Coordinator struct {
	loop       *runloop.Loop
	newDecoder Factory
	onUpdate   func(Update)

	// Только с горутины цикла.
	sess   *session
	reqSeq uint64
}

// New создаёт координатор. onUpdate вызывается на цикле событий.
func New(loop *runloop.Loop, newDecoder Factory, onUpdate func(Update)) *Coordinator {
	return &Coordinator{loop: loop, newDecoder: newDecoder, onUpdate: onUpdate}
}

// SetOnUpdate подменяет получателя рассылки. Только с цикла: вызывающий
// создан позже координатора и сам на него подписывается (binder).
func (c *Coordinator) SetOnUpdate(fn func(Update)) {
	c.onUpdate = fn
}

func (c *Coordinator) emit(u Update) {
	if c.onUpdate != nil {
		c.onUpdate(u)
	}
}

// Request — нажатие play на сообщении. Тот же id в Playing/Paused — toggle
// с сохранением позиции; другой id — полный релиз прежней сессии до
// захвата декодера под новую (двух живых сессий не бывает даже мгновенно).
func (c *Coordinator) Request(messageID, sourceURL string) {
	c.loop.Post(func() { c.request(messageID, sourceURL) })
}

func (c *Coordinator) request(messageID, sourceURL string) {
	if s := c.sess; s != nil && s.messageID == messageID {
		switch s.state {
		case StatePlaying:
			s.dec.Pause()
			s.positionMs = s.dec.PositionMs()
			s.state = StatePaused
			s.stopTicker()
			c.emit(Update{MessageID: s.messageID, PositionMs: s.positionMs, TotalMs: s.totalMs, State: StatePaused})
			return
		case StatePaused:
			s.dec.Start()
			s.state = StatePlaying
			c.startTicker()
			c.emit(Update{MessageID: s.messageID, PositionMs: s.positionMs, TotalMs: s.totalMs, State: StatePlaying})
			return
		case StateCompleted:
			// Декодер остался подготовленным на нуле — стартуем без prepare.
			s.positionMs = 0
			s.dec.Start()
			s.state = StatePlaying
			c.startTicker()
			c.emit(Update{MessageID: s.messageID, PositionMs: 0, TotalMs: s.totalMs, State: StatePlaying})
			return
		}
	}

	// Новая цель: сперва полностью освобождаем прежнюю сессию.
	c.release()

	c.reqSeq++
	s := &session{
		messageID: messageID,
		sourceURL: sourceURL,
		state:     StateLoading,
		dec:       c.newDecoder(),
		seq:       c.reqSeq,
	}
	c.sess = s
	c.emit(Update{MessageID: messageID, State: StateLoading})

	seq := s.seq
	dec := s.dec
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), prepareTimeout)
		defer cancel()
		total, err := dec.Prepare(ctx, sourceURL)
		c.loop.Post(func() { c.prepared(seq, dec, total, err) })
	}()
}

// prepared — результат асинхронной подготовки. Запоздавший результат
// вытесненного запроса отбрасывается, его декодер освобождается.
func (c *Coordinator) prepared(seq uint64, dec Decoder, total int64, err error) {
	s := c.sess
	if s == nil || s.seq != seq {
		dec.Release()
		return
	}
	if err != nil {
		logger.Errorf("playback: prepare %s: %v", s.sourceURL, err)
		s.state = StateError
		// Сигнал сброса строке: иконка play, позиция 0, "00:00".
		c.emit(Update{MessageID: s.messageID, PositionMs: 0, TotalMs: 0, State: StateError})
		c.release()
		return
	}
	s.totalMs = total
	s.state = StatePlaying
	s.dec.Start()
	c.startTicker()
	c.emit(Update{MessageID: s.messageID, PositionMs: 0, TotalMs: total, State: StatePlaying})
}

func (c *Coordinator) startTicker() {
	s := c.sess
	if s == nil || s.stopTick != nil {
		return
	}
	s.stopTick = c.loop.Every(broadcastPeriod, c.tick)
}

func (s *session) stopTicker() {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
}

// tick — один такт рассылки позиции. Во время пользовательского seek
// рассылка подавлена, чтобы не драться с жестом за слайдер.
func (c *Coordinator) tick() {
	s := c.sess
	if s == nil || s.state != StatePlaying || s.userSeeking {
		return
	}
	pos := s.dec.PositionMs()
	if s.totalMs > 0 && pos >= s.totalMs {
		// Естественное завершение: презентация сбрасывается, декодер
		// остаётся подготовленным на нуле до следующего Request/Release.
		s.dec.Pause()
		s.dec.SeekTo(0)
		s.positionMs = 0
		s.state = StateCompleted
		s.stopTicker()
		c.emit(Update{MessageID: s.messageID, PositionMs: 0, TotalMs: s.totalMs, State: StateCompleted})
		return
	}
	s.positionMs = pos
	c.emit(Update{MessageID: s.messageID, PositionMs: pos, TotalMs: s.totalMs, State: StatePlaying})
}

// BeginSeek помечает начало жеста перемотки: рассылка позиции подавляется
// до EndSeek. Без активной сессии — no-op.
func (c *Coordinator) BeginSeek() {
	c.loop.Post(func() {
		if c.sess != nil {
			c.sess.userSeeking = true
		}
	})
}

// EndSeek применяет перемотку по завершении жеста и снимает подавление.
func (c *Coordinator) EndSeek(positionMs int64) {
	c.loop.Post(func() {
		s := c.sess
		if s == nil {
			return
		}
		s.userSeeking = false
		if s.state != StatePlaying && s.state != StatePaused {
			return
		}
		if positionMs < 0 {
			positionMs = 0
		}
		if s.totalMs > 0 && positionMs > s.totalMs {
			positionMs = s.totalMs
		}
		s.dec.SeekTo(positionMs)
		s.positionMs = positionMs
		c.emit(Update{MessageID: s.messageID, PositionMs: positionMs, TotalMs: s.totalMs, State: s.state})
	})
}

// Release освобождает текущую сессию: стоп, релиз декодера, отмена таймера.
// Безопасен без сессии (no-op). Обязателен при разрушении владеющего view.
func (c *Coordinator) Release() {
	c.loop.Post(c.release)
}

func (c *Coordinator) release() {
	s := c.sess
	if s == nil {
		return
	}
	s.stopTicker()
	s.dec.Release()
	c.sess = nil
	c.emit(Update{MessageID: s.messageID, PositionMs: 0, TotalMs: 0, State: StateIdle})
}

// ActiveMessageID — id активной сессии ("" если её нет). Только с цикла.
func (c *Coordinator) ActiveMessageID() string {
	if c.sess == nil {
		return ""
	}
	return c.sess.messageID
}

// Current — снапшот сессии для синхронизации строки при bind. Только с цикла.
func (c *Coordinator) Current() (Update, bool) {
	s := c.sess
	if s == nil {
		return Update{State: StateIdle}, false
	}
	pos := s.positionMs
	if s.state == StatePlaying {
		pos = s.dec.PositionMs()
	}
	return Update{MessageID: s.messageID, PositionMs: pos, TotalMs: s.totalMs, State: s.state}, true
}
