// Package logger — асинхронное логирование с префиксом сервиса: запись идёт
// через буферизованный канал и не блокирует вызывающий код.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

const queueSize = 4096

var (
	prefix   string
	logLevel = levelInfo
	queue    chan string
	once     sync.Once
)

type level int

const (
	levelDebug level = iota
	levelInfo
)

func start() {
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "trace":
		logLevel = levelDebug
	}
	queue = make(chan string, queueSize)
	go func() {
		for msg := range queue {
			log.Print(msg)
		}
	}()
}

func enqueue(msg string) {
	once.Do(start)
	select {
	case queue <- msg:
	default:
		// Буфер полон — строку теряем, но вызывающий код не блокируем
	}
}

// SetPrefix задаёт префикс всех последующих записей (например "api", "client").
func SetPrefix(p string) {
	prefix = p
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

// Info пишет строку с префиксом (асинхронно).
func Info(v ...any) {
	enqueue(tag() + fmt.Sprint(v...))
}

// Infof форматирует и пишет строку с префиксом (асинхронно).
func Infof(format string, v ...any) {
	enqueue(tag() + fmt.Sprintf(format, v...))
}

// Debugf пишет строку только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	once.Do(start)
	if logLevel != levelDebug {
		return
	}
	enqueue(tag() + fmt.Sprintf(format, v...))
}

// Error пишет ошибку с префиксом (асинхронно).
func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

// Errorf форматирует и пишет ошибку с префиксом (асинхронно).
func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// DeferLogDuration возвращает функцию для defer: логирует имя операции и её
// длительность. При LOG_LEVEL=info пишутся только вызовы дольше 100ms.
func DeferLogDuration(fn string, startAt time.Time) func() {
	return func() {
		elapsed := time.Since(startAt)
		if logLevel == levelDebug || elapsed >= 100*time.Millisecond {
			enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
		}
	}
}
