package format

import (
	"strings"

	"watchbot/internal/action"
	"watchbot/pkg/tgui"
)

// TelegramMessage is a request rendered for Telegram HTML parse mode.
type TelegramMessage struct {
	Action action.Type `json:"action"`
	HTML   tgui.H      `json:"html"`
	// Plain is sent when Telegram rejects HTML.
	Plain    string `json:"plain"`
	PhotoURL string `json:"photo_url,omitempty"`
	// Stripped lists tags the sanitizer dropped from the message.
	Stripped []string `json:"stripped,omitempty"`
}

type detail struct {
	label string
	html  tgui.H
	plain string
}

// Telegram renders req as sanitized HTML followed by a user details block and
// the voice channel link.
func Telegram(req Request) TelegramMessage {
	body, stripped := tgui.SanitizeReport(strings.TrimSpace(req.Message), tgui.TelegramTags)

	var details []detail
	if u := req.User; u != nil {
		if name := u.Name(); name != "" {
			if u.Username != "" && u.Username != name {
				name += " (@" + u.Username + ")"
			}
			details = append(details, detail{"User", tgui.Esc(name), name})
		}
		if u.UserID != "" {
			details = append(details, detail{"ID", tgui.Code(u.UserID), u.UserID})
		}
		if roles := rolesText(u.Roles); roles != "" {
			details = append(details, detail{"Roles", tgui.Esc(roles), roles})
		}
		if !u.JoinedAt.IsZero() {
			d := u.JoinedAt.UTC().Format(dateLayout)
			details = append(details, detail{"Joined", tgui.Esc(d), d})
		}
	}
	if link, ok := req.Voice.Link(); ok {
		label := "Open voice channel"
		plain := link
		if n := strings.TrimSpace(req.Voice.ChannelName); n != "" {
			label = n
			plain = n + " " + link
		}
		details = append(details, detail{"Voice", tgui.Link(label, link), plain})
	}

	html := body
	plain := tgui.Plain(body)
	if len(details) > 0 {
		hs := make([]tgui.H, 0, len(details))
		ps := make([]string, 0, len(details))
		for _, d := range details {
			hs = append(hs, tgui.Line(d.label, d.html))
			ps = append(ps, d.label+": "+d.plain)
		}
		html = tgui.JoinH("\n\n", body, tgui.JoinH("\n", hs...))
		plain = strings.TrimSpace(plain + "\n\n" + strings.Join(ps, "\n"))
	}

	msg := TelegramMessage{
		Action:   req.ResolvedAction(),
		HTML:     html,
		Plain:    plain,
		Stripped: stripped,
	}
	if req.User != nil {
		msg.PhotoURL = strings.TrimSpace(req.User.AvatarURL)
	}
	return msg
}
