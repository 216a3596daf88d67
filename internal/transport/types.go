// Package transport holds the platform-neutral types shared by delivery
// adapters.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ChatTarget addresses a Telegram chat and optional forum thread.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) String() string {
	if t.ThreadID != 0 {
		return fmt.Sprintf("%d:%d", t.ChatID, t.ThreadID)
	}
	return strconv.FormatInt(t.ChatID, 10)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

const ParseModeHTML = "HTML"

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the send-only surface of the Telegram adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photoURL, caption string, opt *SendOptions) (MessageRef, error)
}

var ErrBadRecipient = errors.New("transport: bad recipient")

// ParseChatTarget parses "chat_id" or "chat_id:thread_id".
func ParseChatTarget(s string) (ChatTarget, error) {
	s = strings.TrimSpace(s)
	chat, thread, hasThread := strings.Cut(s, ":")
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, fmt.Errorf("%w: %q", ErrBadRecipient, s)
	}
	t := ChatTarget{ChatID: id}
	if hasThread {
		tid, err := strconv.Atoi(thread)
		if err != nil || tid < 0 {
			return ChatTarget{}, fmt.Errorf("%w: thread in %q", ErrBadRecipient, s)
		}
		t.ThreadID = tid
	}
	return t, nil
}

// ParseSnowflake parses a Discord id. Zero is rejected.
func ParseSnowflake(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadRecipient, s)
	}
	return id, nil
}

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() []error {
	return []error{ErrPermanent, e.err}
}

// Permanent wraps err so errors.Is(err, ErrPermanent) holds. Nil stays nil.
func Permanent(err error) error {
	if err == nil || errors.Is(err, ErrPermanent) {
		return err
	}
	return permanentError{err: err}
}
