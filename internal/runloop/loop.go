// Package runloop — однопоточный кооперативный цикл событий. Все мутации
// состояния потока сообщений и координатора воспроизведения выполняются
// только на горутине цикла, поэтому им не нужны блокировки.
package runloop

import (
	"sync"
	"time"
)

// Loop исполняет задачи последовательно на одной горутине.
// Очередь не ограничена: Post никогда не блокирует и безопасен из любой
// горутины, включая саму горутину цикла (колбэки могут планировать задачи).
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	exited  chan struct{}
	stopped bool
}

func New() *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.exited)
	for {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			task := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			task()
		}
		select {
		case <-l.wake:
		case <-l.done:
			// Дорабатываем то, что успело попасть в очередь до Stop.
			l.mu.Lock()
			rest := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, task := range rest {
				task()
			}
			return
		}
	}
}

// Post ставит задачу в очередь цикла. После Stop — no-op.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call ставит задачу и ждёт её выполнения. Вызывать с горутины цикла нельзя
// (самоблокировка); для синхронных чтений состояния из внешних горутин.
func (l *Loop) Call(fn func()) {
	ran := make(chan struct{})
	l.Post(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
	case <-l.exited:
	}
}

// Every запускает периодическую задачу: fn исполняется на цикле каждые d.
// Возвращённая функция останавливает таймер; повторный вызов безопасен.
func (l *Loop) Every(d time.Duration, fn func()) (stop func()) {
	cancel := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Post(fn)
			case <-cancel:
				return
			case <-l.done:
				return
			}
		}
	}()
	return func() {
		once.Do(func() { close(cancel) })
	}
}

// Stop завершает цикл, выполнив уже поставленные задачи. Идемпотентен.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		<-l.exited
		return
	}
	l.stopped = true
	l.mu.Unlock()
	close(l.done)
	<-l.exited
}
