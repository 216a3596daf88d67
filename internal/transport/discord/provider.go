// Package discord delivers notifications as Discord direct messages.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"watchbot/internal/colors"
	"watchbot/internal/format"
	kit "watchbot/internal/transport"
	"watchbot/pkg/logx"
)

const Name = "discord"

var ErrNoToken = errors.New("discord: token is empty")

type Config struct {
	Token   string
	Timeout time.Duration
}

// api is the subset of *discordgo.Session the provider uses.
type api interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Provider sends embeds to users over DM. DM channel ids are cached per user.
type Provider struct {
	api    api
	colors *colors.Resolver
	log    logx.Logger

	mu  sync.Mutex
	dms map[string]string
}

func New(cfg Config, resolver *colors.Resolver, log logx.Logger) (*Provider, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, ErrNoToken
	}
	s, err := discordgo.New("Bot " + strings.TrimPrefix(token, "Bot "))
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	if cfg.Timeout > 0 {
		s.Client.Timeout = cfg.Timeout
	}
	return newProvider(s, resolver, log), nil
}

func newProvider(a api, resolver *colors.Resolver, log logx.Logger) *Provider {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Provider{api: a, colors: resolver, log: log.With(logx.String("comp", "discord")), dms: map[string]string{}}
}

func (p *Provider) Name() string { return Name }

// Send renders req as an embed and DMs it to the user id in recipient.
func (p *Provider) Send(ctx context.Context, recipient string, req format.Request) error {
	userID, err := kit.ParseSnowflake(recipient)
	if err != nil {
		return kit.Permanent(err)
	}
	uid := fmt.Sprint(userID)

	ch, err := p.dmChannel(ctx, uid)
	if err != nil {
		return classify(fmt.Errorf("discord: open dm with %s: %w", uid, err))
	}
	embed := toMessageEmbed(format.Discord(req, p.colors))
	if _, err := p.api.ChannelMessageSendEmbed(ch, embed, discordgo.WithContext(ctx)); err != nil {
		// A stale cached channel is dropped so the next attempt reopens it.
		p.forget(uid)
		return classify(fmt.Errorf("discord: send dm to %s: %w", uid, err))
	}
	p.log.Debug("dm sent", logx.String("user_id", uid), logx.String("action", embed.Footer.Text))
	return nil
}

func (p *Provider) dmChannel(ctx context.Context, userID string) (string, error) {
	p.mu.Lock()
	id, ok := p.dms[userID]
	p.mu.Unlock()
	if ok {
		return id, nil
	}
	ch, err := p.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.dms[userID] = ch.ID
	p.mu.Unlock()
	return ch.ID, nil
}

func (p *Provider) forget(userID string) {
	p.mu.Lock()
	delete(p.dms, userID)
	p.mu.Unlock()
}

// classify marks 4xx REST errors other than 429 as permanent.
func classify(err error) error {
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil {
		code := re.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return kit.Permanent(err)
		}
	}
	return err
}

func toMessageEmbed(e format.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		URL:         e.URL,
		Title:       e.Title,
		Description: e.Description,
		Timestamp:   e.Timestamp,
		Color:       e.Color,
	}
	if e.Footer != nil {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer.Text, IconURL: e.Footer.IconURL}
	}
	if e.Author != nil {
		out.Author = &discordgo.MessageEmbedAuthor{Name: e.Author.Name, URL: e.Author.URL, IconURL: e.Author.IconURL}
	}
	if e.Thumbnail != nil {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail.URL}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}
