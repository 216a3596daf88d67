package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"watchbot/internal/notifier"
	"watchbot/internal/storage"
	"watchbot/pkg/logx"
)

// maintenance runs housekeeping on a cron schedule. Apply restarts the cron
// when the schedule or timezone changes.
type maintenance struct {
	log   logx.Logger
	store storage.Store
	notif *notifier.Service

	mu   sync.Mutex
	c    *cron.Cron
	spec string
	tz   string
}

func newMaintenance(log logx.Logger, store storage.Store, notif *notifier.Service) *maintenance {
	return &maintenance{log: log.With(logx.String("comp", "maintenance")), store: store, notif: notif}
}

func (m *maintenance) Apply(spec, tz string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c != nil && spec == m.spec && tz == m.tz {
		return nil
	}
	loc := time.Local
	if tz = strings.TrimSpace(tz); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("maintenance.timezone: %w", err)
		}
		loc = l
	}
	m.stopLocked(context.Background())
	m.spec, m.tz = spec, tz
	if spec == "" {
		m.log.Info("dedup pruning disabled")
		return nil
	}

	clog := cronLogger{log: m.log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := c.AddFunc(spec, m.prune); err != nil {
		return fmt.Errorf("maintenance.prune_schedule: %w", err)
	}
	c.Start()
	m.c = c
	m.log.Info("maintenance scheduled", logx.String("prune", spec), logx.String("tz", loc.String()))
	return nil
}

func (m *maintenance) prune() {
	now := time.Now()
	mem := 0
	if m.notif != nil {
		mem = m.notif.PruneDedup(now)
	}
	stored := 0
	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := m.store.PruneDedup(ctx, now)
		cancel()
		if err != nil {
			m.log.Warn("dedup prune failed", logx.String("driver", m.store.Driver()), logx.Err(err))
		}
		stored = n
	}
	m.log.Debug("dedup pruned", logx.Int("memory", mem), logx.Int("stored", stored))
}

func (m *maintenance) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(ctx)
}

func (m *maintenance) stopLocked(ctx context.Context) {
	if m.c == nil {
		return
	}
	select {
	case <-m.c.Stop().Done():
	case <-ctx.Done():
	}
	m.c = nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
