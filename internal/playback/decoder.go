package playback

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Decoder — единственный эксклюзивный ресурс системы. API pull-based:
// позицию декодер не пушит, её опрашивает координатор.
// Всеми методами, кроме Prepare, владеет цикл событий координатора.
type Decoder interface {
	// Prepare готовит источник и возвращает полную длительность.
	// Блокирующий вызов — координатор зовёт его с фоновой горутины.
	Prepare(ctx context.Context, url string) (totalMs int64, err error)
	Start()
	Pause()
	SeekTo(ms int64)
	PositionMs() int64
	// Release останавливает и освобождает ресурс. Идемпотентен.
	Release()
}

// Factory создаёт декодер под новую сессию.
type Factory func() Decoder

// Prober определяет длительность источника best-effort (для подписи строки).
type Prober interface {
	ProbeDurationMs(ctx context.Context, url string) (int64, error)
}

// HTTPProber читает длительность из заголовка X-Audio-Duration-Ms,
// который аудио-сервис отдаёт на HEAD/GET файла.
type HTTPProber struct {
	Client *http.Client
}

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *HTTPProber) ProbeDurationMs(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("probe request: %w", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
	}
	raw := resp.Header.Get("X-Audio-Duration-Ms")
	if raw == "" {
		return 0, fmt.Errorf("probe %s: no duration header", url)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("probe %s: bad duration %q", url, raw)
	}
	return ms, nil
}

// HTTPDecoder — декодер с воспроизведением по настенным часам: источник
// проверяется probe-ом, позиция движется вместе с реальным временем.
// Терминальный клиент не декодирует аудио аппаратно, но семантика сессии
// (подготовка, пауза, seek, завершение) полностью совпадает.
type HTTPDecoder struct {
	prober Prober

	mu        sync.Mutex
	totalMs   int64
	basePos   int64
	startedAt time.Time
	playing   bool
}

// NewHTTPFactory возвращает фабрику HTTP-декодеров на общем prober.
func NewHTTPFactory(prober Prober) Factory {
	return func() Decoder { return &HTTPDecoder{prober: prober} }
}

func (d *HTTPDecoder) Prepare(ctx context.Context, url string) (int64, error) {
	total, err := d.prober.ProbeDurationMs(ctx, url)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.totalMs = total
	d.basePos = 0
	d.playing = false
	d.mu.Unlock()
	return total, nil
}

func (d *HTTPDecoder) Start() {
	d.mu.Lock()
	if !d.playing {
		d.playing = true
		d.startedAt = time.Now()
	}
	d.mu.Unlock()
}

func (d *HTTPDecoder) Pause() {
	d.mu.Lock()
	if d.playing {
		d.basePos = d.positionLocked()
		d.playing = false
	}
	d.mu.Unlock()
}

func (d *HTTPDecoder) SeekTo(ms int64) {
	d.mu.Lock()
	if ms < 0 {
		ms = 0
	}
	if d.totalMs > 0 && ms > d.totalMs {
		ms = d.totalMs
	}
	d.basePos = ms
	d.startedAt = time.Now()
	d.mu.Unlock()
}

func (d *HTTPDecoder) PositionMs() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionLocked()
}

func (d *HTTPDecoder) positionLocked() int64 {
	pos := d.basePos
	if d.playing {
		pos += time.Since(d.startedAt).Milliseconds()
	}
	if d.totalMs > 0 && pos > d.totalMs {
		pos = d.totalMs
	}
	return pos
}

func (d *HTTPDecoder) Release() {
	d.mu.Lock()
	d.playing = false
	d.basePos = 0
	d.totalMs = 0
	d.mu.Unlock()
}
