package presenter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/globalchat/internal/model"
	"github.com/globalchat/internal/playback"
	"github.com/globalchat/internal/runloop"
)

// staticDecoder — декодер с неподвижной позицией: тестам презентера
// не нужно реальное время, только состояния сессии.
type staticDecoder struct {
	mu      sync.Mutex
	totalMs int64
	pos     int64
}

func (d *staticDecoder) Prepare(ctx context.Context, url string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalMs, nil
}
func (d *staticDecoder) Start() {}
func (d *staticDecoder) Pause() {}
func (d *staticDecoder) SeekTo(ms int64) {
	d.mu.Lock()
	d.pos = ms
	d.mu.Unlock()
}
func (d *staticDecoder) PositionMs() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}
func (d *staticDecoder) Release() {}

type fakeProber struct {
	mu    sync.Mutex
	ms    int64
	err   error
	delay time.Duration
}

func (p *fakeProber) ProbeDurationMs(ctx context.Context, url string) (int64, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ms, p.err
}

func audioMsg(id string, durationMs int64) model.Message {
	return model.Message{
		ID: id, SenderID: "u2", SenderName: "bob",
		Kind: model.KindAudio, MediaURL: "http://x/" + id + ".ogg",
		DurationMs: durationMs, CreatedAt: time.Now(),
	}
}

func waitPlaying(t *testing.T, updates chan playback.Update, id string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.MessageID == id && u.State == playback.StatePlaying {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s to start playing", id)
		}
	}
}

func TestFormatClock(t *testing.T) {
	cases := []struct {
		pos, total int64
		want       string
	}{
		{0, 0, "00:00"},
		{5000, 0, "00:00"},
		{0, 61000, "00:00 / 01:01"},
		{4200, 10000, "00:04 / 00:10"},
		{-100, 10000, "00:00 / 00:10"},
		{3_600_000, 3_600_000, "60:00 / 60:00"},
	}
	for _, c := range cases {
		if got := FormatClock(c.pos, c.total); got != c.want {
			t.Fatalf("FormatClock(%d, %d) = %q, want %q", c.pos, c.total, got, c.want)
		}
	}
}

func TestBindSyncsWithActiveSession(t *testing.T) {
	loop := runloop.New()
	defer loop.Stop()

	dec := &staticDecoder{totalMs: 8000, pos: 2500}
	updates := make(chan playback.Update, 64)
	coord := playback.New(loop, func() playback.Decoder { return dec }, func(u playback.Update) { updates <- u })

	coord.Request("m1", "http://x/m1.ogg")
	waitPlaying(t, updates, "m1")

	row := NewRow(loop, coord, &fakeProber{}, func(RowState) {})
	var st RowState
	loop.Call(func() {
		row.Bind(audioMsg("m1", 0), "me")
		st = row.State()
	})
	if st.Icon != IconPause {
		t.Fatalf("bind of the active message must show pause, got %s", st.Icon)
	}
	if st.TotalMs != 8000 || st.PositionMs != 2500 {
		t.Fatalf("bind must sync live position: %+v", st)
	}

	// Перепривязка того же слота на другое сообщение — вид покоя.
	loop.Call(func() {
		row.Bind(audioMsg("m2", 5000), "me")
		st = row.State()
	})
	if st.Icon != IconPlay || st.PositionMs != 0 {
		t.Fatalf("rebinding must reset audio presentation: %+v", st)
	}
	if st.Clock != "00:00 / 00:05" {
		t.Fatalf("want clock from known duration, got %q", st.Clock)
	}
}

func TestRowIgnoresForeignUpdates(t *testing.T) {
	loop := runloop.New()
	defer loop.Stop()
	coord := playback.New(loop, func() playback.Decoder { return &staticDecoder{} }, nil)

	row := NewRow(loop, coord, &fakeProber{}, func(RowState) {})
	loop.Call(func() {
		row.Bind(audioMsg("m1", 3000), "")
		row.Apply(playback.Update{MessageID: "other", PositionMs: 1500, TotalMs: 9000, State: playback.StatePlaying})
	})
	var st RowState
	loop.Call(func() { st = row.State() })
	if st.Icon != IconPlay || st.PositionMs != 0 || st.TotalMs != 3000 {
		t.Fatalf("foreign update must not touch the row: %+v", st)
	}
}

func TestProbeFillsUnknownDuration(t *testing.T) {
	loop := runloop.New()
	defer loop.Stop()
	coord := playback.New(loop, func() playback.Decoder { return &staticDecoder{} }, nil)

	rendered := make(chan RowState, 16)
	row := NewRow(loop, coord, &fakeProber{ms: 4200}, func(st RowState) { rendered <- st })
	loop.Call(func() { row.Bind(audioMsg("m1", 0), "") })

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-rendered:
			if st.TotalMs == 4200 {
				if st.Clock != "00:00 / 00:04" {
					t.Fatalf("want probed clock, got %q", st.Clock)
				}
				return
			}
		case <-deadline:
			t.Fatalf("probe result never reached the row")
		}
	}
}

func TestProbeFailureLeavesZeroClock(t *testing.T) {
	loop := runloop.New()
	defer loop.Stop()
	coord := playback.New(loop, func() playback.Decoder { return &staticDecoder{} }, nil)

	row := NewRow(loop, coord, &fakeProber{err: errors.New("no header")}, func(RowState) {})
	loop.Call(func() { row.Bind(audioMsg("m1", 0), "") })
	time.Sleep(50 * time.Millisecond)

	var st RowState
	loop.Call(func() { st = row.State() })
	if st.TotalMs != 0 || st.Clock != "00:00" {
		t.Fatalf("failed probe must keep resting view: %+v", st)
	}
}

func TestStaleProbeDiscardedAfterRebind(t *testing.T) {
	loop := runloop.New()
	defer loop.Stop()
	coord := playback.New(loop, func() playback.Decoder { return &staticDecoder{} }, nil)

	row := NewRow(loop, coord, &fakeProber{ms: 9999, delay: 100 * time.Millisecond}, func(RowState) {})
	loop.Call(func() { row.Bind(audioMsg("m1", 0), "") })
	loop.Call(func() { row.Bind(audioMsg("m2", 5000), "") })

	time.Sleep(250 * time.Millisecond)
	var st RowState
	loop.Call(func() { st = row.State() })
	if st.MessageID != "m2" || st.TotalMs != 5000 {
		t.Fatalf("stale probe must not overwrite the rebound row: %+v", st)
	}
}

func TestBinderWindowAndRouting(t *testing.T) {
	loop := runloop.New()
	defer loop.Stop()

	dec := &staticDecoder{totalMs: 8000}
	coord := playback.New(loop, func() playback.Decoder { return dec }, nil)

	type frame struct {
		slot int
		st   RowState
	}
	var mu sync.Mutex
	var frames []frame
	b := NewBinder(loop, coord, &fakeProber{}, 2, "me", func(slot int, st RowState) {
		mu.Lock()
		frames = append(frames, frame{slot, st})
		mu.Unlock()
	})

	msgs := []model.Message{
		{ID: "a", SenderID: "me", Kind: model.KindText, Body: "one"},
		{ID: "b", SenderID: "u2", Kind: model.KindText, Body: "two"},
		{ID: "c", SenderID: "u2", Kind: model.KindText, Body: "three"},
	}
	loop.Call(func() { b.SetWindow(msgs) })

	// Окно из двух слотов показывает хвост: b и c.
	var ids []string
	loop.Call(func() {
		ids = []string{b.RowAt(0).MessageID(), b.RowAt(1).MessageID()}
	})
	if ids[0] != "b" || ids[1] != "c" {
		t.Fatalf("window must keep the tail, got %v", ids)
	}

	// IsOwn вычисляется по sender_id при bind.
	var own bool
	loop.Call(func() { own = b.RowAt(0).State().IsOwn })
	if own {
		t.Fatalf("message from u2 must not be own")
	}

	// Append сдвигает окно, события маршрутизируются по id в новый слот.
	audio := audioMsg("d", 8000)
	loop.Call(func() {
		b.Append(audio)
		b.HandleUpdate(playback.Update{MessageID: "d", PositionMs: 1000, TotalMs: 8000, State: playback.StatePlaying})
	})
	var st RowState
	loop.Call(func() { st = b.RowAt(1).State() })
	if st.MessageID != "d" || st.Icon != IconPause || st.PositionMs != 1000 {
		t.Fatalf("update must reach the reused slot by message id: %+v", st)
	}
}
