package discord

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbot/internal/colors"
	"watchbot/internal/format"
	kit "watchbot/internal/transport"
	"watchbot/pkg/logx"
)

type fakeAPI struct {
	opened  []string
	sent    []*discordgo.MessageEmbed
	sendErr error
}

func (f *fakeAPI) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.opened = append(f.opened, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeAPI) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, embed)
	return &discordgo.Message{ID: "m1", ChannelID: channelID}, nil
}

func TestSendDM(t *testing.T) {
	api := &fakeAPI{}
	p := newProvider(api, colors.New(map[string]string{"DISCORD_COLOR_VOICE_LEAVE": "123456"}), logx.Nop())

	req := format.Request{
		Message: "🔇 User John left voice channel General in server Home",
		User:    &format.UserContext{UserID: "42", Username: "john", AvatarURL: "https://cdn/a.png"},
		Voice:   &format.Voice{ServerID: 1, ChannelID: 2},
	}
	require.NoError(t, p.Send(context.Background(), "123456789012345678", req))
	require.NoError(t, p.Send(context.Background(), "123456789012345678", req))

	assert.Equal(t, []string{"123456789012345678"}, api.opened, "dm channel is cached")
	require.Len(t, api.sent, 2)
	e := api.sent[0]
	assert.Equal(t, 0x123456, e.Color)
	assert.Equal(t, "Voice Leave", e.Title)
	assert.Equal(t, discordgo.EmbedTypeRich, e.Type)
	require.NotNil(t, e.Thumbnail)
	assert.Equal(t, "https://cdn/a.png", e.Thumbnail.URL)
	assert.Equal(t, "https://discord.com/channels/1/2", e.URL)
}

func TestSendBadRecipientIsPermanent(t *testing.T) {
	p := newProvider(&fakeAPI{}, nil, logx.Nop())
	err := p.Send(context.Background(), "not-a-user", format.Request{Message: "x"})
	assert.ErrorIs(t, err, kit.ErrPermanent)
	assert.ErrorIs(t, err, kit.ErrBadRecipient)
}

func TestSendClassifiesRESTErrors(t *testing.T) {
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	api := &fakeAPI{sendErr: forbidden}
	p := newProvider(api, nil, logx.Nop())

	err := p.Send(context.Background(), "42", format.Request{Message: "x"})
	assert.ErrorIs(t, err, kit.ErrPermanent)

	api.sendErr = &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
	err = p.Send(context.Background(), "42", format.Request{Message: "x"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, kit.ErrPermanent))
	// The failed send dropped the cached channel.
	assert.Len(t, api.opened, 2)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, nil, logx.Nop())
	assert.ErrorIs(t, err, ErrNoToken)
}
