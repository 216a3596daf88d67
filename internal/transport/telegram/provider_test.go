package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbot/internal/format"
	kit "watchbot/internal/transport"
	"watchbot/pkg/logx"
)

type call struct {
	kind, text, photo string
	to                kit.ChatTarget
	opt               kit.SendOptions
}

type fakeSender struct {
	calls    []call
	textErrs []error
	photoErr error
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.calls = append(f.calls, call{kind: "text", text: text, to: to, opt: *opt})
	if len(f.textErrs) > 0 {
		err := f.textErrs[0]
		f.textErrs = f.textErrs[1:]
		if err != nil {
			return kit.MessageRef{}, err
		}
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeSender) SendPhoto(_ context.Context, to kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.calls = append(f.calls, call{kind: "photo", text: caption, photo: photoURL, to: to, opt: *opt})
	if f.photoErr != nil {
		return kit.MessageRef{}, f.photoErr
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 2}, nil
}

func TestSendHTML(t *testing.T) {
	s := &fakeSender{}
	p := NewProvider(s, Options{}, logx.Nop())

	err := p.Send(context.Background(), "-100:7", format.Request{Message: "<b>bold</b> & <strong>x</strong>"})
	require.NoError(t, err)
	require.Len(t, s.calls, 1)
	c := s.calls[0]
	assert.Equal(t, "text", c.kind)
	assert.Equal(t, "<b>bold</b> &amp; x", c.text)
	assert.Equal(t, kit.ChatTarget{ChatID: -100, ThreadID: 7}, c.to)
	assert.Equal(t, kit.ParseModeHTML, c.opt.ParseMode)
}

func TestSendFallsBackToPlain(t *testing.T) {
	s := &fakeSender{textErrs: []error{errors.New("telegram: Bad Request: can't parse entities: unclosed tag (400)")}}
	p := NewProvider(s, Options{}, logx.Nop())

	require.NoError(t, p.Send(context.Background(), "5", format.Request{Message: "<b>oops"}))
	require.Len(t, s.calls, 2)
	assert.Equal(t, "oops", s.calls[1].text)
	assert.Empty(t, s.calls[1].opt.ParseMode)
}

func TestSendAvatarPhoto(t *testing.T) {
	s := &fakeSender{}
	p := NewProvider(s, Options{SendAvatar: true}, logx.Nop())
	req := format.Request{Message: "hi", User: &format.UserContext{UserID: "1", AvatarURL: "https://cdn/a.png"}}

	require.NoError(t, p.Send(context.Background(), "5", req))
	require.Len(t, s.calls, 1)
	assert.Equal(t, "photo", s.calls[0].kind)
	assert.Equal(t, "https://cdn/a.png", s.calls[0].photo)
	assert.Contains(t, s.calls[0].text, "<b>ID:</b> <code>1</code>")
}

func TestSendAvatarFailureFallsBackToText(t *testing.T) {
	s := &fakeSender{photoErr: errors.New("wrong file identifier")}
	p := NewProvider(s, Options{SendAvatar: true}, logx.Nop())
	req := format.Request{Message: "hi", User: &format.UserContext{AvatarURL: "https://cdn/a.png"}}

	require.NoError(t, p.Send(context.Background(), "5", req))
	require.Len(t, s.calls, 2)
	assert.Equal(t, "text", s.calls[1].kind)
}

func TestSendBadRecipient(t *testing.T) {
	p := NewProvider(&fakeSender{}, Options{}, logx.Nop())
	err := p.Send(context.Background(), "@someone", format.Request{Message: "x"})
	assert.ErrorIs(t, err, kit.ErrPermanent)
}

func TestSendTransientErrorIsRetryable(t *testing.T) {
	s := &fakeSender{textErrs: []error{errors.New("dial tcp: i/o timeout")}}
	p := NewProvider(s, Options{}, logx.Nop())
	err := p.Send(context.Background(), "5", format.Request{Message: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, kit.ErrPermanent)
}
