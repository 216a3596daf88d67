package adapter

import (
	"strings"
	"unicode/utf8"
)

// TextLimit keeps chunks below Telegram's 4096 limit with room for entities.
const TextLimit = 4000

// SplitText splits s into chunks of at most limit runes. It prefers newline
// boundaries. For HTML it never cuts inside a tag or an entity, and every
// chunk is balanced: tags still open at a cut are closed at the end of the
// chunk and reopened at the start of the next one.
func SplitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = TextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	if strings.EqualFold(parseMode, "HTML") {
		return splitHTML(rs, limit)
	}

	var out []string
	for start := 0; start < len(rs); {
		end := cutPoint(rs, start, limit, false)
		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = skipNewlines(rs, end)
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

type openTag struct {
	name string
	raw  string // opening tag as written, attributes included
}

func splitHTML(rs []rune, limit int) []string {
	var (
		out   []string
		stack []openTag
	)
	for start := 0; start < len(rs); {
		prefix := openingTags(stack)
		fixed := utf8.RuneCountInString(prefix)

		budget := limit - fixed
		var (
			end  int
			next []openTag
		)
		for {
			budget = max(budget, 1)
			end = cutPoint(rs, start, budget, true)
			next = trackTags(stack, rs[start:end])
			over := fixed + (end - start) + utf8.RuneCountInString(closingTags(next)) - limit
			if over <= 0 || budget == 1 {
				break
			}
			budget -= over
		}

		body := strings.TrimRight(string(rs[start:end]), "\n")
		if strings.TrimSpace(stripTags(body)) != "" {
			out = append(out, prefix+body+closingTags(next))
		}
		stack = next
		start = skipNewlines(rs, end)
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

// cutPoint picks the end of the chunk starting at start with at most budget
// runes, preferring the last newline unless that leaves a tiny chunk.
func cutPoint(rs []rune, start, budget int, html bool) int {
	end := min(start+budget, len(rs))
	if end == len(rs) {
		return end
	}
	for i := end - 1; i-start >= budget/3; i-- {
		if rs[i] == '\n' {
			return i + 1
		}
	}
	if !html {
		return end
	}

	open, closed := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			open = i
		case '>':
			closed = i
		}
	}
	if open > closed {
		if open > start {
			return open
		}
		// A single tag longer than the budget stays whole.
		for i := end; i < len(rs); i++ {
			if rs[i] == '>' {
				return i + 1
			}
		}
		return len(rs)
	}

	// Entities are short; only the tail of the window can hold a cut one.
	for i := end - 1; i > start && i >= end-10; i-- {
		if rs[i] == ';' || rs[i] == '>' {
			break
		}
		if rs[i] == '&' {
			return i
		}
	}
	return end
}

// trackTags returns the open-tag stack after the tags in chunk are applied
// to stack. stack is not modified.
func trackTags(stack []openTag, chunk []rune) []openTag {
	next := append([]openTag(nil), stack...)
	for i := 0; i < len(chunk); i++ {
		if chunk[i] != '<' {
			continue
		}
		j := i + 1
		for j < len(chunk) && chunk[j] != '>' {
			j++
		}
		if j == len(chunk) {
			break
		}
		raw := string(chunk[i : j+1])
		i = j

		closing := strings.HasPrefix(raw, "</")
		name := tagName(strings.TrimPrefix(strings.TrimPrefix(raw, "<"), "/"))
		switch {
		case name == "":
		case closing:
			for k := len(next) - 1; k >= 0; k-- {
				if next[k].name == name {
					next = append(next[:k], next[k+1:]...)
					break
				}
			}
		case !strings.HasSuffix(raw, "/>"):
			next = append(next, openTag{name: name, raw: raw})
		}
	}
	return next
}

func tagName(s string) string {
	i := 0
	for i < len(s) && (s[i] >= 'a' && s[i] <= 'z' || s[i] >= 'A' && s[i] <= 'Z' || s[i] >= '0' && s[i] <= '9') {
		i++
	}
	return strings.ToLower(s[:i])
}

func openingTags(stack []openTag) string {
	var b strings.Builder
	for _, t := range stack {
		b.WriteString(t.raw)
	}
	return b.String()
}

func closingTags(stack []openTag) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteString("</" + stack[i].name + ">")
	}
	return b.String()
}

func stripTags(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>' && in:
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func skipNewlines(rs []rune, i int) int {
	for i < len(rs) && rs[i] == '\n' {
		i++
	}
	return i
}
