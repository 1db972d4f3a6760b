package runloop

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New()
	defer l.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Call(func() {})

	if len(got) != 100 {
		t.Fatalf("expected 100 tasks, ran %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task order broken at %d: got %d", i, v)
		}
	}
}

func TestPostFromLoopDoesNotDeadlock(t *testing.T) {
	l := New()
	defer l.Stop()

	ran := make(chan struct{})
	l.Post(func() {
		// Колбэк планирует следующую задачу с самой горутины цикла.
		l.Post(func() { close(ran) })
	})
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("nested Post did not run")
	}
}

func TestEveryTicksAndStops(t *testing.T) {
	l := New()
	defer l.Stop()

	var ticks atomic.Int64
	stop := l.Every(10*time.Millisecond, func() { ticks.Add(1) })

	time.Sleep(120 * time.Millisecond)
	stop()
	n := ticks.Load()
	if n < 2 {
		t.Fatalf("expected at least 2 ticks, got %d", n)
	}

	time.Sleep(50 * time.Millisecond)
	if after := ticks.Load(); after > n+1 {
		t.Fatalf("timer kept ticking after stop: %d -> %d", n, after)
	}
	stop() // повторный вызов безопасен
}

func TestStopIdempotent(t *testing.T) {
	l := New()
	l.Post(func() {})
	l.Stop()
	l.Stop()
	// Post после Stop — no-op, паники быть не должно.
	l.Post(func() { t.Fatal("task ran after Stop") })
	time.Sleep(20 * time.Millisecond)
}
