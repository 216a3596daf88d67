package format

import (
	"strings"
	"time"
	"unicode/utf8"

	"watchbot/internal/action"
	"watchbot/internal/colors"
	"watchbot/pkg/tgui"
)

// Discord embed limits, in characters.
const (
	MaxEmbedTitle      = 256
	MaxEmbedDesc       = 4096
	MaxEmbedFieldName  = 256
	MaxEmbedFieldValue = 1024
	MaxEmbedFields     = 25
	MaxEmbedFooter     = 2048
	MaxEmbedAuthor     = 256
	MaxEmbedTotal      = 6000
)

// EmbedField is a single name/value pair of an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the footer line of an embed.
type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedAuthor is the author line of an embed.
type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedThumbnail is the small image in the embed's corner.
type EmbedThumbnail struct {
	URL string `json:"url"`
}

// Embed is a platform-neutral Discord embed.
type Embed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	URL         string          `json:"url,omitempty"`
	Color       int             `json:"color"`
	Timestamp   string          `json:"timestamp,omitempty"`
	Footer      *EmbedFooter    `json:"footer,omitempty"`
	Author      *EmbedAuthor    `json:"author,omitempty"`
	Fields      []EmbedField    `json:"fields,omitempty"`
	Thumbnail   *EmbedThumbnail `json:"thumbnail,omitempty"`
}

// Length counts the characters Discord applies to the 6000 total limit.
func (e Embed) Length() int {
	n := runes(e.Title) + runes(e.Description)
	for _, f := range e.Fields {
		n += runes(f.Name) + runes(f.Value)
	}
	if e.Footer != nil {
		n += runes(e.Footer.Text)
	}
	if e.Author != nil {
		n += runes(e.Author.Name)
	}
	return n
}

// Discord renders req as an embed colored by its action. A nil resolver uses
// the built-in palette.
func Discord(req Request, r *colors.Resolver) Embed {
	at := req.ResolvedAction()
	e := Embed{
		Title:       titleFor(at),
		Description: tgui.Plain(tgui.Raw(req.Message)),
		Color:       r.Resolve(at).Int(),
		Footer:      &EmbedFooter{Text: "Action: " + string(at)},
	}
	if !req.At.IsZero() {
		e.Timestamp = req.At.UTC().Format(time.RFC3339)
	}

	if u := req.User; u != nil {
		if name := u.Name(); name != "" {
			e.Author = &EmbedAuthor{Name: name, IconURL: strings.TrimSpace(u.AvatarURL)}
		}
		if avatar := strings.TrimSpace(u.AvatarURL); avatar != "" {
			e.Thumbnail = &EmbedThumbnail{URL: avatar}
		}
		if u.UserID != "" {
			e.Fields = append(e.Fields, field("User ID", u.UserID, true))
		}
		if len(u.Roles) > 0 {
			e.Fields = append(e.Fields, field("Roles", rolesText(u.Roles), false))
		}
		if !u.JoinedAt.IsZero() {
			e.Fields = append(e.Fields, field("Joined Server", u.JoinedAt.UTC().Format(dateLayout), true))
		}
	}
	if link, ok := req.Voice.Link(); ok {
		label := "Open voice channel"
		if n := strings.TrimSpace(req.Voice.ChannelName); n != "" {
			label = n
		}
		e.URL = link
		e.Fields = append(e.Fields, field("Voice Channel", "["+label+"]("+link+")", false))
	}
	return Clamp(e)
}

// Clamp truncates e to Discord's limits. Overflow of the total budget is taken
// from the description first, then from field values in reverse order.
func Clamp(e Embed) Embed {
	e.Title = tgui.TruncRunes(e.Title, MaxEmbedTitle)
	e.Description = tgui.TruncRunes(e.Description, MaxEmbedDesc)
	if e.Author != nil {
		a := *e.Author
		a.Name = tgui.TruncRunes(a.Name, MaxEmbedAuthor)
		e.Author = &a
	}
	if e.Footer != nil {
		f := *e.Footer
		f.Text = tgui.TruncRunes(f.Text, MaxEmbedFooter)
		e.Footer = &f
	}
	if len(e.Fields) > MaxEmbedFields {
		e.Fields = e.Fields[:MaxEmbedFields]
	}
	fields := make([]EmbedField, len(e.Fields))
	for i, f := range e.Fields {
		f.Name = tgui.TruncRunes(f.Name, MaxEmbedFieldName)
		f.Value = tgui.TruncRunes(f.Value, MaxEmbedFieldValue)
		fields[i] = f
	}
	e.Fields = fields

	over := e.Length() - MaxEmbedTotal
	if over <= 0 {
		return e
	}
	if d := runes(e.Description); d > 0 {
		e.Description = tgui.TruncRunes(e.Description, max(d-over, 1))
		over = e.Length() - MaxEmbedTotal
	}
	for i := len(e.Fields) - 1; i >= 0 && over > 0; i-- {
		v := runes(e.Fields[i].Value)
		e.Fields[i].Value = tgui.TruncRunes(e.Fields[i].Value, max(v-over, 1))
		over = e.Length() - MaxEmbedTotal
	}
	return e
}

// field substitutes "N/A" for blank values; Discord rejects empty ones.
func field(name, value string, inline bool) EmbedField {
	if strings.TrimSpace(value) == "" {
		value = "N/A"
	}
	return EmbedField{Name: name, Value: value, Inline: inline}
}

func titleFor(t action.Type) string {
	if t == action.Default {
		return "Notification"
	}
	words := strings.Fields(t.Label())
	for i, w := range words {
		if w == "dnd" {
			words[i] = "DND"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func runes(s string) int { return utf8.RuneCountInString(s) }
