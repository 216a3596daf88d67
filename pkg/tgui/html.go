package tgui

import (
	"fmt"
	"html"
	"strings"
)

// H is HTML that is safe to pass to Telegram with ParseMode="HTML".
// Values of type H are treated as already-escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw marks a string as already-safe HTML.
// Use sparingly; prefer Sanitize for untrusted input.
func Raw(s string) H { return H(s) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func U(s string) H    { return wrap("u", Esc(s)) }
func S(s string) H    { return wrap("s", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// Pre renders a preformatted block.
func Pre(s string) H { return wrap("pre", Esc(s)) }

// Link builds an HTML anchor. Empty url yields the escaped text alone.
func Link(text, url string) H {
	if strings.TrimSpace(url) == "" {
		return Esc(text)
	}
	return H(fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(text)))
}

// Line joins a bold label and a value: "<b>label:</b> value".
func Line(label string, value H) H {
	return H(B(label+":").String() + " " + value.String())
}

// JoinH joins non-blank safe HTML parts with sep.
func JoinH(sep string, parts ...H) H {
	if len(parts) == 0 {
		return ""
	}
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, sep))
}
