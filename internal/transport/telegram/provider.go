// Package telegram delivers notifications to Telegram chats as HTML messages.
package telegram

import (
	"context"
	"errors"
	"fmt"

	"watchbot/internal/format"
	kit "watchbot/internal/transport"
	"watchbot/internal/transport/telegram/adapter"
	"watchbot/pkg/logx"
)

const Name = "telegram"

type Options struct {
	// SendAvatar sends the user's avatar as a photo captioned with the
	// message when the caption fits.
	SendAvatar     bool
	DisablePreview bool
}

// Provider renders requests with format.Telegram and sends them through a
// kit.Sender, falling back to plain text when Telegram rejects the markup.
type Provider struct {
	sender kit.Sender
	opt    Options
	log    logx.Logger
}

func NewProvider(sender kit.Sender, opt Options, log logx.Logger) *Provider {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Provider{sender: sender, opt: opt, log: log.With(logx.String("comp", "telegram"))}
}

func (p *Provider) Name() string { return Name }

// Send delivers req to the chat in recipient ("chat_id" or "chat_id:thread_id").
func (p *Provider) Send(ctx context.Context, recipient string, req format.Request) error {
	to, err := kit.ParseChatTarget(recipient)
	if err != nil {
		return kit.Permanent(err)
	}
	msg := format.Telegram(req)
	if len(msg.Stripped) > 0 {
		p.log.Warn("unsupported tags stripped", logx.Strings("tags", msg.Stripped), logx.String("action", string(msg.Action)))
	}
	htmlOpt := &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: p.opt.DisablePreview}

	if p.opt.SendAvatar && msg.PhotoURL != "" {
		_, err := p.sender.SendPhoto(ctx, to, msg.PhotoURL, msg.HTML.String(), htmlOpt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Photo delivery is best effort; the text path below still runs.
		p.log.Debug("avatar send failed, sending text", logx.String("chat", to.String()), logx.Err(err))
	}

	_, err = p.sender.SendText(ctx, to, msg.HTML.String(), htmlOpt)
	if err == nil {
		return nil
	}
	if !adapter.IsParseError(err) {
		return wrap(to, err)
	}
	p.log.Warn("html rejected, sending plain text", logx.String("chat", to.String()), logx.Err(err))
	plainOpt := &kit.SendOptions{DisablePreview: p.opt.DisablePreview}
	if _, err := p.sender.SendText(ctx, to, msg.Plain, plainOpt); err != nil {
		return wrap(to, err)
	}
	return nil
}

func wrap(to kit.ChatTarget, err error) error {
	err = fmt.Errorf("telegram: send to %s: %w", to, err)
	if !adapter.IsRetryable(err) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return kit.Permanent(err)
	}
	return err
}
