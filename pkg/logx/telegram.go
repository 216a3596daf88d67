package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender delivers a plain-text log line to a Telegram chat.
type Sender interface {
	SendLog(ctx context.Context, chatID int64, threadID int, text string) error
}

const (
	tgQueueSize = 256
	tgMaxLen    = 3500
)

type tgItem struct {
	chatID   int64
	threadID int
	text     string
}

// telegramSink is a zerolog LevelWriter that forwards JSON events to a chat
// through a bounded queue. It never blocks the caller; excess lines are dropped.
type telegramSink struct {
	mu       sync.Mutex
	sender   Sender
	chatID   int64
	threadID int
	minLevel Level
	limiter  *rate.Limiter

	queue  chan tgItem
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTelegramSink(sender Sender) *telegramSink {
	return &telegramSink{sender: sender, queue: make(chan tgItem, tgQueueSize), minLevel: LevelWarn}
}

func (t *telegramSink) setSender(s Sender) {
	t.mu.Lock()
	t.sender = s
	t.mu.Unlock()
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	t.mu.Lock()
	t.chatID = cfg.ChatID
	t.threadID = cfg.ThreadID
	t.minLevel = ParseLevel(cfg.MinLevel, LevelWarn)
	rps := max(1, cfg.RatePerSec)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	t.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	t.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.mu.Lock()
		t.cancel = cancel
		t.mu.Unlock()
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.run(ctx)
		}()
	})
}

func (t *telegramSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-t.queue:
			t.mu.Lock()
			sender := t.sender
			t.mu.Unlock()
			if sender != nil {
				_ = sender.SendLog(ctx, it.chatID, it.threadID, it.text)
			}
		}
	}
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) Write(p []byte) (int, error) { return t.WriteLevel(LevelInfo, p) }

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	chatID, threadID, min, lim, sender := t.chatID, t.threadID, t.minLevel, t.limiter, t.sender
	t.mu.Unlock()

	if chatID == 0 || sender == nil || lim == nil || level < min || !lim.Allow() {
		return len(p), nil
	}
	text := renderEvent(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case t.queue <- tgItem{chatID: chatID, threadID: threadID, text: text}:
	default:
	}
	return len(p), nil
}

// renderEvent turns a zerolog JSON line into "[LEVEL] message" followed by
// sorted "- key=value" lines.
func renderEvent(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return clip(strings.TrimSpace(string(p)), tgMaxLen)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=" + clip(fmt.Sprint(m[k]), 600))
	}
	return clip(b.String(), tgMaxLen)
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
