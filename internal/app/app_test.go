package app

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbot/internal/config"
	"watchbot/internal/eventbus"
	"watchbot/internal/format"
	"watchbot/internal/notifier"
	"watchbot/internal/storage"
	"watchbot/pkg/logx"
)

type countingProvider struct{ calls atomic.Int32 }

func (p *countingProvider) Name() string { return "fake" }
func (p *countingProvider) Send(context.Context, string, format.Request) error {
	p.calls.Add(1)
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestMapNotifierDefaults(t *testing.T) {
	nc, err := mapNotifier(&config.Config{})
	require.NoError(t, err)
	assert.True(t, nc.Enabled)

	nc, err = mapNotifier(&config.Config{Notifier: &config.NotifierConfig{
		Enabled:     true,
		Workers:     4,
		RetryBase:   "250ms",
		DedupWindow: "1m",
	}})
	require.NoError(t, err)
	assert.Equal(t, 4, nc.Workers)
	assert.Equal(t, 250*time.Millisecond, nc.RetryBase)
	assert.Equal(t, time.Minute, nc.DedupWindow)

	_, err = mapNotifier(&config.Config{Notifier: &config.NotifierConfig{RetryBase: "soon"}})
	assert.Error(t, err)
}

func TestMapStorage(t *testing.T) {
	_, enabled, err := mapStorage(&config.Config{})
	require.NoError(t, err)
	assert.False(t, enabled)

	_, enabled, err = mapStorage(&config.Config{Storage: &config.StorageConfig{Driver: "none"}})
	require.NoError(t, err)
	assert.False(t, enabled)

	sc, enabled, err := mapStorage(&config.Config{Storage: &config.StorageConfig{
		Driver: " Redis ",
		Redis:  &config.RedisConfig{Addr: "localhost:6379", Prefix: "wb"},
	}})
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "redis", sc.Driver)
	assert.Equal(t, time.Second, sc.BusyTimeout)
	assert.Equal(t, "wb", sc.Redis.Prefix)
}

func TestMapLoggingParsesLogChat(t *testing.T) {
	lc := mapLogging(&config.Config{Telegram: config.TelegramConfig{LogChat: "-100123"}})
	assert.Equal(t, int64(-100123), lc.Telegram.ChatID)

	lc = mapLogging(&config.Config{Telegram: config.TelegramConfig{LogChat: "@channel"}})
	assert.Zero(t, lc.Telegram.ChatID)
}

func TestMapHealth(t *testing.T) {
	_, enabled, err := mapHealth(&config.Config{})
	require.NoError(t, err)
	assert.False(t, enabled)

	hc, enabled, err := mapHealth(&config.Config{Health: config.HealthConfig{Enabled: true, RequestTimeout: "5s"}})
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, 5*time.Second, hc.RequestTimeout)
}

func TestPruneSchedule(t *testing.T) {
	assert.Equal(t, "@every 10m", pruneSchedule(&config.Config{}))
	assert.Equal(t, "", pruneSchedule(&config.Config{Maintenance: config.MaintenanceConfig{PruneSchedule: "OFF"}}))
	assert.Equal(t, "0 3 * * *", pruneSchedule(&config.Config{Maintenance: config.MaintenanceConfig{PruneSchedule: " 0 3 * * * "}}))
}

func TestRecipientsNormalizes(t *testing.T) {
	got := recipients(&config.Config{Recipients: map[string]string{
		"Telegram": " 42 ",
		"discord":  "",
		" ":        "x",
	}})
	assert.Equal(t, map[string]string{"telegram": "42"}, got)
}

func TestDeliveryFromEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := notifier.Event{ID: "n1", Provider: "discord", Recipient: "7", Action: "voice_join", At: at, Attempts: 2, TookMS: 40}

	d, ok := deliveryFromEvent(eventbus.Event{Type: notifier.EventSent, Data: ev})
	require.True(t, ok)
	assert.Equal(t, storage.StatusSent, d.Status)
	assert.Equal(t, "n1", d.ID)
	assert.Equal(t, at, d.At)
	assert.Equal(t, 2, d.Attempts)

	_, ok = deliveryFromEvent(eventbus.Event{Type: notifier.EventQueued, Data: ev})
	assert.False(t, ok)
	_, ok = deliveryFromEvent(eventbus.Event{Type: notifier.EventFailed, Data: "junk"})
	assert.False(t, ok)
}

func TestRecordDeliveries(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "wb.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	events := make(chan eventbus.Event, 4)
	events <- eventbus.Event{Type: notifier.EventQueued, Data: notifier.Event{ID: "a"}}
	events <- eventbus.Event{Type: notifier.EventFailed, Data: notifier.Event{ID: "a", Error: "boom"}}
	events <- eventbus.Event{Type: notifier.EventDeduped, Data: notifier.Event{ID: "b"}}
	close(events)

	recordDeliveries(context.Background(), events, st, logx.Nop())

	got, err := st.RecentDeliveries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, storage.StatusDeduped, got[0].Status)
	assert.Equal(t, "boom", got[1].Error)
}

func TestMaintenanceApply(t *testing.T) {
	m := newMaintenance(logx.Nop(), nil, nil)
	require.NoError(t, m.Apply("@every 1h", "UTC"))
	first := m.c
	require.NotNil(t, first)

	// Unchanged schedule keeps the running cron.
	require.NoError(t, m.Apply("@every 1h", "UTC"))
	assert.Same(t, first, m.c)

	require.NoError(t, m.Apply("", ""))
	assert.Nil(t, m.c)

	assert.Error(t, m.Apply("@every 1h", "Mars/Olympus"))
	assert.Error(t, m.Apply("not a cron", ""))
	m.Stop(context.Background())
}

func TestMaintenancePrune(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "wb.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.PutDedup(ctx, "old", time.Now().Add(-time.Minute)))
	require.NoError(t, st.PutDedup(ctx, "new", time.Now().Add(time.Hour)))

	newMaintenance(logx.Nop(), st, nil).prune()

	_, ok, err := st.GetDedup(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = st.GetDedup(ctx, "new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: file\n")
	_, err := New(path, Options{})
	assert.Error(t, err)
}

func TestAppRecordsDeliveries(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
logging:
  level: error
storage:
  driver: file
  path: `+filepath.Join(dir, "state.db")+`
maintenance:
  prune_schedule: "@every 1h"
recipients:
  fake: "u1"
`)
	a, err := New(path, Options{Version: "test"})
	require.NoError(t, err)

	p := &countingProvider{}
	require.NoError(t, a.Notifier().Register(p))
	assert.Equal(t, map[string]string{"fake": "u1"}, a.Recipients())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	_, err = a.Notifier().Notify(ctx, "fake", "u1", format.Request{Message: "User John joined voice channel General"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := a.store.RecentDeliveries(ctx, 10)
		return err == nil && len(got) == 1 && got[0].Status == storage.StatusSent
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), p.calls.Load())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopCommand))
	assert.NoError(t, a.Err())
}
