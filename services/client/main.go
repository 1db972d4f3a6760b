package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/globalchat/internal/config"
	"github.com/globalchat/internal/identity"
	"github.com/globalchat/internal/logger"
	"github.com/globalchat/internal/model"
	"github.com/globalchat/internal/playback"
	"github.com/globalchat/internal/presenter"
	"github.com/globalchat/internal/runloop"
	"github.com/globalchat/internal/stream"
	"github.com/globalchat/internal/transport"
)

const windowSlots = 20

func main() {
	logger.SetPrefix("client")
	name := flag.String("name", "", "display name (default: profile or $USER)")
	profilePath := flag.String("profile", defaultProfilePath(), "path to profile file")
	flag.Parse()

	cfg := config.Load()

	defaultName := *name
	if defaultName == "" {
		defaultName = os.Getenv("USER")
	}
	if defaultName == "" {
		defaultName = "anonymous"
	}
	profile, err := identity.EnsureProfile(*profilePath, defaultName)
	if err != nil {
		logger.Errorf("profile: %v", err)
		os.Exit(1)
	}
	if *name != "" {
		profile.Name = *name
	}
	sender := stream.Sender{ID: profile.UserID, Name: profile.Name, AvatarURL: profile.AvatarURL}

	loop := runloop.New()
	defer loop.Stop()

	client := transport.NewClient(cfg.APIBaseURL)
	prober := playback.NewHTTPProber()

	ui := newTerminalUI(windowSlots)

	coord := playback.New(loop, playback.NewHTTPFactory(prober), nil)
	binder := presenter.NewBinder(loop, coord, prober, windowSlots, profile.LocalUserID(), ui.Render)

	st := stream.New(loop, client, stream.Hooks{
		OnReplaced: func(msgs []model.Message) {
			binder.SetWindow(tail(msgs, windowSlots))
		},
		OnAppended: func(msg model.Message) {
			binder.Append(msg)
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "\r! %v\n", err)
		},
	})
	defer st.Close()

	// Координатор создаётся до binder, подписка подключается на цикле.
	loop.Call(func() { coord.SetOnUpdate(binder.HandleUpdate) })

	ctx := context.Background()
	st.LoadHistory(ctx)
	st.SubscribeLive()

	fmt.Printf("connected to %s as %s\n", cfg.APIBaseURL, profile.Name)
	fmt.Println("commands: <text> | /audio <file> [seconds] | /image <url> | /play <slot> | /seek <slot> <seconds> | /stop | /quit")

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			st.SendText(ctx, sender, line)
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return
		case "/stop":
			coord.Release()
		case "/image":
			if len(fields) < 2 {
				fmt.Println("usage: /image <url>")
				continue
			}
			st.SendImage(ctx, sender, fields[1])
		case "/audio":
			if len(fields) < 2 {
				fmt.Println("usage: /audio <file> [seconds]")
				continue
			}
			durationMs := int64(0)
			if len(fields) >= 3 {
				if sec, err := strconv.ParseFloat(fields[2], 64); err == nil && sec > 0 {
					durationMs = int64(sec * 1000)
				}
			}
			sendAudio(ctx, client, st, sender, fields[1], durationMs)
		case "/play":
			slot, ok := parseSlot(fields, 2)
			if !ok {
				fmt.Println("usage: /play <slot>")
				continue
			}
			loop.Post(func() {
				if row := binder.RowAt(slot); row != nil {
					row.PlayTapped()
				}
			})
		case "/seek":
			slot, ok := parseSlot(fields, 3)
			if !ok || len(fields) < 3 {
				fmt.Println("usage: /seek <slot> <seconds>")
				continue
			}
			sec, err := strconv.ParseFloat(fields[2], 64)
			if err != nil || sec < 0 {
				fmt.Println("usage: /seek <slot> <seconds>")
				continue
			}
			loop.Post(func() {
				if row := binder.RowAt(slot); row != nil {
					row.SeekStart()
					row.SeekEnd(int64(sec * 1000))
				}
			})
		default:
			fmt.Printf("unknown command %s\n", fields[0])
		}
	}
}

func sendAudio(ctx context.Context, client *transport.Client, st *stream.Stream, sender stream.Sender, path string, durationMs int64) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "! read %s: %v\n", path, err)
		return
	}
	upCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	url, err := client.UploadAudio(upCtx, filepath.Base(path), data, durationMs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "! upload: %v\n", err)
		return
	}
	st.SendAudio(ctx, sender, url, durationMs)
}

func parseSlot(fields []string, want int) (int, bool) {
	if len(fields) < want {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func tail(msgs []model.Message, n int) []model.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

func defaultProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".globalchat.yaml"
	}
	return filepath.Join(home, ".globalchat", "profile.yaml")
}

// terminalUI печатает строки окна беседы. Повторные кадры с тем же текстом
// не печатаются, иначе рассылка позиции (10 раз/с) заспамит терминал.
type terminalUI struct {
	last []string
}

func newTerminalUI(slots int) *terminalUI {
	return &terminalUI{last: make([]string, slots)}
}

// Render реализует presenter.RenderFunc.
func (t *terminalUI) Render(slot int, st presenter.RowState) {
	line := formatRow(st)
	if slot < len(t.last) && t.last[slot] == line {
		return
	}
	if slot < len(t.last) {
		t.last[slot] = line
	}
	fmt.Printf("\r[%2d] %s\n", slot, line)
}

func formatRow(st presenter.RowState) string {
	who := st.SenderName
	if st.IsOwn {
		who = "me"
	}
	switch st.Kind {
	case model.KindAudio:
		return fmt.Sprintf("%s: %s voice %s", who, st.Icon, st.Clock)
	case model.KindImage:
		return fmt.Sprintf("%s: [image] %s", who, st.MediaURL)
	default:
		return fmt.Sprintf("%s: %s", who, st.Body)
	}
}
