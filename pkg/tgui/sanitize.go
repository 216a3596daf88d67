package tgui

import (
	"html"
	"strconv"
	"strings"
	"unicode/utf8"
)

// TagSet is a set of lower-case tag names.
type TagSet map[string]struct{}

// NewTagSet builds a TagSet from names (case-insensitive).
func NewTagSet(names ...string) TagSet {
	s := make(TagSet, len(names))
	for _, n := range names {
		s[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s TagSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// TelegramTags is the subset of HTML Telegram renders in ParseMode=HTML that
// Sanitize passes through.
var TelegramTags = NewTagSet("b", "i", "u", "s", "code", "pre", "a")

// escapeText escapes &, < and > once. An & that already starts one of the
// entities Telegram understands (&amp; &lt; &gt; &quot; or a numeric
// reference, each terminated by ';') is kept as is.
func escapeText(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			if _, n := entityAt(s[i:]); n > 0 {
				b.WriteString(s[i : i+n])
				i += n - 1
				continue
			}
			b.WriteString("&amp;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var namedEntities = []struct{ name, text string }{
	{"&amp;", "&"},
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", `"`},
}

// entityAt decodes the entity at the start of s (s[0] == '&') and returns it
// with its length in bytes. n is 0 when s does not start with a complete
// supported entity.
func entityAt(s string) (text string, n int) {
	for _, e := range namedEntities {
		if strings.HasPrefix(s, e.name) {
			return e.text, len(e.name)
		}
	}
	if !strings.HasPrefix(s, "&#") {
		return "", 0
	}
	i, base, maxDigits := 2, 10, 7
	if i < len(s) && (s[i] == 'x' || s[i] == 'X') {
		i, base, maxDigits = 3, 16, 6
	}
	start := i
	for i < len(s) && i-start < maxDigits && isBaseDigit(s[i], base) {
		i++
	}
	if i == start || i >= len(s) || s[i] != ';' {
		return "", 0
	}
	v, err := strconv.ParseUint(s[start:i], base, 32)
	if err != nil || v == 0 || v > utf8.MaxRune || !utf8.ValidRune(rune(v)) {
		return "", 0
	}
	return string(rune(v)), i + 1
}

// unescapeEntities decodes only the entities escapeText preserves. Other
// '&' sequences are left untouched.
func unescapeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '&' {
			if text, n := entityAt(s[i:]); n > 0 {
				b.WriteString(text)
				i += n - 1
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isBaseDigit(c byte, base int) bool {
	if isDigit(c) {
		return true
	}
	return base == 16 && ((c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F'))
}

// Sanitize escapes message for HTML parse mode, keeping only allowed tags.
func Sanitize(message string, allowed TagSet) H {
	out, _ := SanitizeReport(message, allowed)
	return out
}

// SanitizeReport is Sanitize that also returns the distinct names of tags it
// dropped, in order of first appearance.
//
// Allowed tags are emitted lower-case without attributes; "a" keeps its href.
// An anchor without href is dropped together with its closing tag. Anything
// that does not parse as a tag is text.
func SanitizeReport(message string, allowed TagSet) (H, []string) {
	var (
		b        strings.Builder
		stripped []string
		anchors  []bool // open <a> tags; true when emitted
	)
	b.Grow(len(message) + len(message)/8)

	drop := func(name string) {
		for _, s := range stripped {
			if s == name {
				return
			}
		}
		stripped = append(stripped, name)
	}

	last := 0
	for i := 0; i < len(message); {
		j := strings.IndexByte(message[i:], '<')
		if j < 0 {
			break
		}
		start := i + j
		tg, n, ok := parseTag(message[start:])
		if !ok {
			i = start + 1
			continue
		}
		b.WriteString(escapeText(message[last:start]))
		i = start + n
		last = i

		if !allowed.Has(tg.name) || tg.selfClosing {
			drop(tg.name)
			continue
		}
		if tg.name != "a" {
			if tg.closing {
				b.WriteString("</" + tg.name + ">")
			} else {
				b.WriteString("<" + tg.name + ">")
			}
			continue
		}

		if tg.closing {
			if len(anchors) == 0 {
				drop("a")
				continue
			}
			emitted := anchors[len(anchors)-1]
			anchors = anchors[:len(anchors)-1]
			if emitted {
				b.WriteString("</a>")
			}
			continue
		}
		href := strings.TrimSpace(attrValue(tg.attrs, "href"))
		if href == "" {
			anchors = append(anchors, false)
			drop("a")
			continue
		}
		anchors = append(anchors, true)
		b.WriteString(`<a href="` + html.EscapeString(href) + `">`)
	}
	b.WriteString(escapeText(message[last:]))
	return H(b.String()), stripped
}

type tag struct {
	name        string
	attrs       string
	closing     bool
	selfClosing bool
}

// parseTag parses the tag at the start of s (s[0] == '<') and returns it with
// its length in bytes. A tag name must start with an ASCII letter; quoted
// attribute values may contain '>'.
func parseTag(s string) (tag, int, bool) {
	var t tag
	i := 1
	if i < len(s) && s[i] == '/' {
		t.closing = true
		i++
	}
	if i >= len(s) || !isASCIILetter(s[i]) {
		return t, 0, false
	}
	nameStart := i
	for i < len(s) && (isASCIILetter(s[i]) || isDigit(s[i]) || s[i] == '-' || s[i] == ':') {
		i++
	}
	t.name = strings.ToLower(s[nameStart:i])
	if i < len(s) && !isSpace(s[i]) && s[i] != '>' && s[i] != '/' {
		return t, 0, false
	}

	attrStart := i
	var quote byte
	for ; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '<':
			return t, 0, false
		case '>':
			attrs := strings.TrimSpace(s[attrStart:i])
			if strings.HasSuffix(attrs, "/") {
				t.selfClosing = true
				attrs = strings.TrimSpace(strings.TrimSuffix(attrs, "/"))
			}
			t.attrs = attrs
			return t, i + 1, true
		}
	}
	return t, 0, false
}

// attrValue returns the entity-decoded value of attribute key in attrs.
func attrValue(attrs, key string) string {
	i := 0
	for i < len(attrs) {
		for i < len(attrs) && isSpace(attrs[i]) {
			i++
		}
		nameStart := i
		for i < len(attrs) && !isSpace(attrs[i]) && attrs[i] != '=' {
			i++
		}
		name := strings.ToLower(attrs[nameStart:i])
		for i < len(attrs) && isSpace(attrs[i]) {
			i++
		}
		val := ""
		if i < len(attrs) && attrs[i] == '=' {
			i++
			for i < len(attrs) && isSpace(attrs[i]) {
				i++
			}
			if i < len(attrs) && (attrs[i] == '"' || attrs[i] == '\'') {
				q := attrs[i]
				i++
				vs := i
				for i < len(attrs) && attrs[i] != q {
					i++
				}
				val = attrs[vs:i]
				if i < len(attrs) {
					i++
				}
			} else {
				vs := i
				for i < len(attrs) && !isSpace(attrs[i]) {
					i++
				}
				val = attrs[vs:i]
			}
		}
		if name == key {
			return unescapeEntities(val)
		}
		if name == "" && i == nameStart {
			i++
		}
	}
	return ""
}

func isASCIILetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool       { return c >= '0' && c <= '9' }
func isSpace(c byte) bool       { return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' }
