// Package adapter wraps telebot for sending notifications and operator logs.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	rtsup "watchbot/internal/runtime/supervisor"
	kit "watchbot/internal/transport"
	"watchbot/pkg/logx"
	"watchbot/pkg/tgui"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (self-hosted bot API servers).
	APIURL string
	// Poll enables long polling so users can ask the bot for their chat id
	// with /start or /id.
	Poll        bool
	PollTimeout time.Duration
}

var ErrNoToken = errors.New("telegram: token is empty")

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	mu      sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNoToken
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		URL:    strings.TrimSpace(cfg.APIURL),
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	b.Handle("/start", a.handleWhoAmI)
	b.Handle("/id", a.handleWhoAmI)
	return a, nil
}

func (a *Adapter) handleWhoAmI(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	to := kit.ChatTarget{ChatID: chat.ID}
	if m := c.Message(); m != nil {
		to.ThreadID = m.ThreadID
	}
	text := tgui.JoinH("\n",
		tgui.B("watchbot"),
		tgui.Line("Chat ID", tgui.Code(to.String())),
		tgui.Esc("Use this id as your Telegram recipient."),
	)
	return c.Send(text.String(), &tele.SendOptions{ParseMode: tele.ModeHTML, ThreadID: to.ThreadID})
}

// Supervisor returns the polling supervisor, nil when not polling.
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sup
}

// Start begins long polling when enabled. Sending works without Start.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.cfg.Poll {
		return nil
	}
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))))
	sup := a.sup
	a.mu.Unlock()

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// telebot's Start blocks until Stop; restart it if it returns early.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithRestartOnCleanExit(true),
		rtsup.WithPublishError(true),
	)
	return nil
}

// Stop ends polling, waiting at most a short grace period.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.mu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}

	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		a.log.Debug("telegram stop", logx.Err(err))
	}
	return nil
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt != nil {
		so.ParseMode = opt.ParseMode
		so.DisableWebPagePreview = opt.DisablePreview
	}
	return so
}

// SendText sends text, split into chunks below Telegram's message limit.
// The returned ref points at the first chunk.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range SplitText(text, TextLimit, parseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOptions(to, opt))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// SendPhoto sends a photo by URL with a caption. Captions over Telegram's
// limit are rejected so callers can fall back to SendText.
func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	if captionLen(caption, opt) > tgui.MaxCaptionLen {
		return kit.MessageRef{}, ErrCaptionTooLong
	}
	p := &tele.Photo{File: tele.FromURL(photoURL), Caption: caption}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, p, sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// captionLen counts what Telegram counts: the rendered text, not the markup.
func captionLen(caption string, opt *kit.SendOptions) int {
	if opt != nil && strings.EqualFold(opt.ParseMode, kit.ParseModeHTML) {
		return utf8.RuneCountInString(tgui.Plain(tgui.Raw(caption)))
	}
	return utf8.RuneCountInString(caption)
}

// SendLog implements logx.Sender.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, threadID int, text string) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// Username returns the bot's @username once connected.
func (a *Adapter) Username() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

var ErrCaptionTooLong = errors.New("telegram: caption too long")

// IsParseError reports whether Telegram rejected the message markup.
func IsParseError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "can't parse entities") || strings.Contains(s, "unsupported start tag")
}

// IsRetryable reports whether a send error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil || IsParseError(err) || errors.Is(err, ErrCaptionTooLong) {
		return false
	}
	var te *tele.Error
	if errors.As(err, &te) {
		return te.Code == 429 || te.Code >= 500
	}
	return true
}
