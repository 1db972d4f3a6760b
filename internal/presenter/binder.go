package presenter

import (
	"github.com/globalchat/internal/model"
	"github.com/globalchat/internal/playback"
	"github.com/globalchat/internal/runloop"
)

// Binder — пул из N визуальных слотов над хвостом коллекции сообщений.
// Слоты переиспользуются по мере движения окна: Bind перепривязывает тот же
// Row к другим данным, поэтому события воспроизведения маршрутизируются
// поиском по id сообщения при каждой доставке, а не запомненным слотом.
type Binder struct {
	loop    *runloop.Loop
	rows    []*Row
	localID string

	window []model.Message
}

// RenderFunc — отрисовка одного слота (номер слота + состояние строки).
type RenderFunc func(slot int, st RowState)

func NewBinder(loop *runloop.Loop, coord *playback.Coordinator, prober playback.Prober, slots int, localID string, render RenderFunc) *Binder {
	b := &Binder{loop: loop, localID: localID}
	b.rows = make([]*Row, slots)
	for i := range b.rows {
		i := i
		b.rows[i] = NewRow(loop, coord, prober, func(st RowState) { render(i, st) })
	}
	return b
}

// SetWindow показывает последние len(rows) сообщений коллекции.
// Вызывается на цикле событий (из хуков потока).
func (b *Binder) SetWindow(msgs []model.Message) {
	n := len(b.rows)
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	b.window = msgs
	for i, m := range msgs {
		b.rows[i].Bind(m, b.localID)
	}
	for i := len(msgs); i < n; i++ {
		b.rows[i].Unbind()
	}
}

// Append сдвигает окно на одно сообщение и перепривязывает слоты.
func (b *Binder) Append(msg model.Message) {
	b.window = append(b.window, msg)
	b.SetWindow(b.window)
}

// HandleUpdate доставляет событие рассылки строке с соответствующим id.
// Строки с чужим id молча игнорируют событие сами.
func (b *Binder) HandleUpdate(u playback.Update) {
	for _, r := range b.rows {
		r.Apply(u)
	}
}

// RowAt — слот по номеру (nil за пределами окна).
func (b *Binder) RowAt(slot int) *Row {
	if slot < 0 || slot >= len(b.rows) || slot >= len(b.window) {
		return nil
	}
	return b.rows[slot]
}

// Window — текущее окно сообщений.
func (b *Binder) Window() []model.Message { return b.window }
