package tgui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name, in, want string
		stripped       []string
	}{
		{"allowed and stripped", "<b>bold</b> & <strong>x</strong>", "<b>bold</b> &amp; x", []string{"strong"}},
		{"plain text", "1 < 2 and 3 > 2", "1 &lt; 2 and 3 &gt; 2", nil},
		{"already escaped", "a &amp; b &lt;c&gt;", "a &amp; b &lt;c&gt;", nil},
		{"upper case and attributes", `<B CLASS="x">hi</B>`, "<b>hi</b>", nil},
		{"script content kept as text", `<script>alert("x")</script>`, `alert("x")`, []string{"script"}},
		{"unterminated tag", "x <b unterminated", "x &lt;b unterminated", nil},
		{"stray angle brackets", "<<b>>", "&lt;<b>&gt;", nil},
		{"code keeps no attributes", `<pre><code class="language-go">x := 1</code></pre>`, "<pre><code>x := 1</code></pre>", nil},
		{"anchor keeps href only", `<a href="https://x.com/?a=1&b=2" target="_blank">go</a>`, `<a href="https://x.com/?a=1&amp;b=2">go</a>`, nil},
		{"anchor quoted gt", `<a href='x>y'>z</a>`, `<a href="x&gt;y">z</a>`, nil},
		{"anchor without href", `<a name="top">t</a> rest`, "t rest", []string{"a"}},
		{"self closing dropped", "line<br/>next", "linenext", []string{"br"}},
		{"nested disallowed", "<div><span>a</span> <i>b</i></div>", "a <i>b</i>", []string{"div", "span"}},
		{"empty", "", "", nil},
		{"entity-like words kept", "Tom&notes", "Tom&amp;notes", nil},
		{"legacy entity without semicolon", "size 5&times3", "size 5&amp;times3", nil},
		{"leading legacy entity", "&copy2024 Foo", "&amp;copy2024 Foo", nil},
		{"bare ampersands", "R&D fish&chips", "R&amp;D fish&amp;chips", nil},
		{"named entity outside telegram set", "&copy; 2024", "&amp;copy; 2024", nil},
		{"numeric references kept", "&#39;q&#x27; &quot;x&quot;", "&#39;q&#x27; &quot;x&quot;", nil},
		{"incomplete numeric reference", "&#12 and &#x;", "&amp;#12 and &amp;#x;", nil},
		{"href keeps entity-like query", `<a href="https://x.com/?a=1&copy=2">c</a>`, `<a href="https://x.com/?a=1&amp;copy=2">c</a>`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, stripped := SanitizeReport(tc.in, TelegramTags)
			assert.Equal(t, tc.want, got.String())
			assert.Equal(t, tc.stripped, stripped)
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"<b>bold</b> & <strong>x</strong>",
		"a &amp; b",
		"Tom & Jerry <3",
		`<a href="https://example.com/?q=a&b">link</a>`,
		`quote "x" and 'y'`,
		"&amp;amp;",
		"Tom&notes",
		"size 5&times3",
		"&copy2024 Foo",
		"&#169; &#xA9; &#12",
	}
	for _, in := range inputs {
		once := Sanitize(in, TelegramTags)
		twice := Sanitize(once.String(), TelegramTags)
		assert.Equal(t, once, twice, in)
	}
	assert.Equal(t, H("&amp;"), Sanitize("&amp;", TelegramTags))
}

func TestSanitizeNoRawMarkup(t *testing.T) {
	got := Sanitize(`<img src=x onerror="alert(1)"><iframe>`, TelegramTags)
	assert.NotContains(t, got.String(), "<img")
	assert.NotContains(t, got.String(), "<iframe")
}

func TestSanitizeCustomAllowList(t *testing.T) {
	got := Sanitize("<b>x</b><i>y</i>", NewTagSet("I"))
	assert.Equal(t, H("x<i>y</i>"), got)
}

func TestPlain(t *testing.T) {
	assert.Equal(t, "bold & x < y", Plain(H("<b>bold</b> &amp; x &lt; y")))
	assert.Equal(t, "go", Plain(H(`<a href="https://x.com">go</a>`)))
	assert.Equal(t, "Tom&notes 5&times3 'x'", Plain(Sanitize("Tom&notes 5&times3 &#39;x&#39;", TelegramTags)))
}

func TestTruncRunes(t *testing.T) {
	assert.Equal(t, "héllo", TruncRunes("héllo", 5))
	assert.Equal(t, "hé…", TruncRunes("héllo", 3))
	assert.Equal(t, "…", TruncRunes("héllo", 1))
	assert.Equal(t, "", TruncRunes("héllo", 0))
}

func TestBuilders(t *testing.T) {
	assert.Equal(t, H("<b>a &amp; b</b>"), B("a & b"))
	assert.Equal(t, H(`<a href="https://x.com/?a=1&amp;b=2">x</a>`), Link("x", "https://x.com/?a=1&b=2"))
	assert.Equal(t, H("plain"), Link("plain", ""))
	assert.Equal(t, H("<b>ID:</b> <code>42</code>"), Line("ID", Code("42")))
	assert.Equal(t, H("a\nb"), JoinH("\n", "a", " ", "b"))
}
