// Package format renders notification requests for each delivery platform.
package format

import (
	"fmt"
	"strings"
	"time"

	"watchbot/internal/action"
)

// UserContext is optional metadata about the user a notification is about.
type UserContext struct {
	UserID      string    `json:"user_id,omitempty"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	JoinedAt    time.Time `json:"joined_at,omitzero"`
}

// Name returns the best human-readable name for the user.
func (u *UserContext) Name() string {
	if u == nil {
		return ""
	}
	switch {
	case strings.TrimSpace(u.DisplayName) != "":
		return strings.TrimSpace(u.DisplayName)
	case strings.TrimSpace(u.Username) != "":
		return strings.TrimSpace(u.Username)
	case u.UserID != "":
		return "User " + u.UserID
	}
	return ""
}

// Voice links a notification to a voice channel. Zero ids mean absent.
type Voice struct {
	ServerID    uint64 `json:"server_id,string,omitempty"`
	ChannelID   uint64 `json:"channel_id,string,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
}

// Link returns the channel deep link, if both ids are set.
func (v *Voice) Link() (string, bool) {
	if v == nil {
		return "", false
	}
	return VoiceChannelLink(v.ServerID, v.ChannelID)
}

// Request is a single notification to render.
type Request struct {
	Message string       `json:"message"`
	Action  action.Type  `json:"action,omitempty"`
	User    *UserContext `json:"user,omitempty"`
	Voice   *Voice       `json:"voice,omitempty"`
	At      time.Time    `json:"at,omitzero"`
}

// ResolvedAction returns the explicit action when it is known, otherwise the
// action inferred from the message.
func (r Request) ResolvedAction() action.Type {
	if t, ok := action.Parse(string(r.Action)); ok {
		return t
	}
	return action.Infer(r.Message)
}

const channelURLFormat = "https://discord.com/channels/%d/%d"

// VoiceChannelLink builds a Discord deep link to a channel. No link is produced
// when either id is zero.
func VoiceChannelLink(serverID, channelID uint64) (string, bool) {
	if serverID == 0 || channelID == 0 {
		return "", false
	}
	return fmt.Sprintf(channelURLFormat, serverID, channelID), true
}

const dateLayout = "2006-01-02"

func rolesText(roles []string) string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || r == "@everyone" {
			continue
		}
		out = append(out, r)
	}
	return strings.Join(out, ", ")
}
