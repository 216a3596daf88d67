package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbot/internal/colors"
	"watchbot/internal/format"
	"watchbot/internal/notifier"
	rtsup "watchbot/internal/runtime/supervisor"
	"watchbot/internal/storage"
	"watchbot/pkg/logx"
)

type stubNotifier struct {
	providers []string
	history   []notifier.HistoryItem
	fail      map[string]error

	gotTargets map[string]string
	gotReq     format.Request
}

func (n *stubNotifier) Enabled() bool                   { return true }
func (n *stubNotifier) Providers() []string             { return n.providers }
func (n *stubNotifier) History() []notifier.HistoryItem { return append([]notifier.HistoryItem(nil), n.history...) }

func (n *stubNotifier) NotifyAll(_ context.Context, targets map[string]string, req format.Request) map[string]notifier.Result {
	n.gotTargets, n.gotReq = targets, req
	out := map[string]notifier.Result{}
	for name := range targets {
		out[name] = notifier.Result{ID: "id-" + name, Err: n.fail[name]}
	}
	return out
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	sup := rtsup.New(context.Background())
	defer sup.Cancel()

	s := New(Config{}, Deps{
		Notifier:    &stubNotifier{providers: []string{"discord", "telegram"}},
		Supervisors: func() map[string]*rtsup.Supervisor { return map[string]*rtsup.Supervisor{"app": sup} },
		Version:     "test",
		Log:         logx.Nop(),
	})
	rec, out := do(t, s.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "test", out["version"])
	n := out["notifier"].(map[string]any)
	assert.Equal(t, []any{"discord", "telegram"}, n["providers"])
	assert.Contains(t, out["supervisors"], "app")
}

func TestHealthDegradedWithoutProviders(t *testing.T) {
	s := New(Config{}, Deps{Notifier: &stubNotifier{}})
	_, out := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, "degraded", out["status"])
}

func TestColors(t *testing.T) {
	res := colors.New(map[string]string{"DISCORD_COLOR_VOICE_JOIN": "FF6B6B", "DISCORD_COLOR_ADMIN": "nope"})
	s := New(Config{}, Deps{Colors: res})
	rec, out := do(t, s.Handler(), http.MethodGet, "/api/colors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	list := out["colors"].([]any)
	require.Len(t, list, 18)
	first := list[0].(map[string]any)
	assert.Equal(t, "voice_join", first["action"])
	assert.Equal(t, "#FF6B6B", first["hex"])
	assert.Equal(t, true, first["overridden"])

	warns := out["warnings"].([]any)
	require.Len(t, warns, 1)
	assert.Equal(t, "DISCORD_COLOR_ADMIN", warns[0].(map[string]any)["key"])
}

func TestPreview(t *testing.T) {
	s := New(Config{}, Deps{Colors: colors.New(nil)})
	body := `{"message":"🎙️ <b>John</b> joined voice channel <script>x</script>","voice":{"server_id":"123456789012345678","channel_id":"987654321098765432","channel_name":"General"}}`
	rec, out := do(t, s.Handler(), http.MethodPost, "/api/preview", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "voice_join", out["action"])
	tg := out["telegram"].(map[string]any)
	assert.Contains(t, tg["html"], "<b>John</b>")
	assert.NotContains(t, tg["html"], "<script>")
	assert.Contains(t, tg["html"], `https://discord.com/channels/123456789012345678/987654321098765432`)
	assert.Equal(t, []any{"script"}, tg["stripped"])

	dc := out["discord"].(map[string]any)
	assert.EqualValues(t, 0x00FF00, dc["color"])
}

func TestPreviewRejectsBadBody(t *testing.T) {
	s := New(Config{}, Deps{})
	rec, _ := do(t, s.Handler(), http.MethodPost, "/api/preview", `{"message":"x","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s.Handler(), http.MethodPost, "/api/preview", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifyUsesDefaultRecipients(t *testing.T) {
	n := &stubNotifier{providers: []string{"telegram"}}
	s := New(Config{}, Deps{
		Notifier:   n,
		Recipients: func() map[string]string { return map[string]string{"telegram": "-100"} },
	})
	rec, out := do(t, s.Handler(), http.MethodPost, "/api/notify", `{"message":"User John is now online"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]string{"telegram": "-100"}, n.gotTargets)
	assert.Equal(t, "status_online", out["action"])
	res := out["results"].(map[string]any)["telegram"].(map[string]any)
	assert.Equal(t, "id-telegram", res["id"])
}

func TestNotifyExplicitTargetsAndFailures(t *testing.T) {
	n := &stubNotifier{fail: map[string]error{"discord": errors.New("down")}}
	s := New(Config{}, Deps{Notifier: n})
	rec, out := do(t, s.Handler(), http.MethodPost, "/api/notify", `{"message":"hi","targets":{"discord":"1"}}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	res := out["results"].(map[string]any)["discord"].(map[string]any)
	assert.Equal(t, "down", res["error"])

	rec, _ = do(t, s.Handler(), http.MethodPost, "/api/notify", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryFromMemory(t *testing.T) {
	now := time.Now()
	n := &stubNotifier{history: []notifier.HistoryItem{
		{ID: "a", At: now.Add(-2 * time.Second), Status: storage.StatusSent},
		{ID: "b", At: now.Add(-time.Second), Status: storage.StatusFailed},
		{ID: "c", At: now, Status: storage.StatusSent},
	}}
	s := New(Config{}, Deps{Notifier: n})
	rec, out := do(t, s.Handler(), http.MethodGet, "/api/history?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "memory", out["source"])
	items := out["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].(map[string]any)["id"])
	assert.Equal(t, "b", items[1].(map[string]any)["id"])

	rec, _ = do(t, s.Handler(), http.MethodGet, "/api/history?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryFromStore(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "h.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.AppendDelivery(context.Background(), storage.Delivery{
		ID: "x", At: time.Now(), Provider: "discord", Recipient: "1", Action: "admin", Status: storage.StatusSent,
	}))

	s := New(Config{}, Deps{Store: st})
	_, out := do(t, s.Handler(), http.MethodGet, "/api/history", "")
	assert.Equal(t, "sqlite", out["source"])
	require.Len(t, out["items"], 1)

	_, out = do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, map[string]any{"enabled": true, "driver": "sqlite"}, out["storage"])
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestPprofMountedOnlyWhenEnabled(t *testing.T) {
	off := New(Config{}, Deps{})
	rec, _ := do(t, off.Handler(), http.MethodGet, "/debug/pprof/cmdline", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	on := New(Config{Pprof: true}, Deps{})
	rec, _ = do(t, on.Handler(), http.MethodGet, "/debug/pprof/cmdline", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
