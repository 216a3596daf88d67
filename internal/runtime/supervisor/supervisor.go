// Package supervisor runs named goroutines under a shared context with panic
// recovery, first-error tracking and optional restart with backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"watchbot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	started atomic.Uint64
	active  atomic.Int64

	errOnce  sync.Once
	firstErr atomic.Value // error

	wg       sync.WaitGroup
	doneOnce sync.Once
	done     chan struct{}

	mu    sync.Mutex
	tasks map[string]*taskStats
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels the shared context on the first task error.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, done: make(chan struct{}), tasks: map[string]*taskStats{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first recorded task error.
func (s *Supervisor) Err() error {
	if err, ok := s.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

func (s *Supervisor) setErr(err error) {
	if err != nil {
		s.errOnce.Do(func() { s.firstErr.Store(err) })
	}
}

func (s *Supervisor) fail(err error) {
	s.setErr(err)
	if s.cancelOnErr {
		s.cancel()
	}
}

// Go runs fn in a goroutine. Panics are recovered and recorded as errors;
// context.Canceled is a clean exit.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.started.Add(1)
	s.active.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)

		st := s.stat(name)
		st.begin(false)
		err := s.call(name, st, fn)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
			s.fail(err)
		}
		st.end(err)
	}()
}

// Go0 is Go for functions without an error result.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error { fn(ctx); return nil })
}

// call runs fn once, converting a panic into an error.
func (s *Supervisor) call(name string, st *taskStats, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			st.panicked(r)
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

type restartCfg struct {
	minBackoff  time.Duration
	maxBackoff  time.Duration
	maxRestarts int
	restartNil  bool
	publishErr  bool
}

type RestartOption func(*restartCfg)

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRestarts gives up after n restarts; n <= 0 means unlimited.
func WithMaxRestarts(n int) RestartOption { return func(c *restartCfg) { c.maxRestarts = n } }

// WithRestartOnCleanExit restarts fn even when it returns nil.
func WithRestartOnCleanExit(enabled bool) RestartOption {
	return func(c *restartCfg) { c.restartNil = enabled }
}

// WithPublishError records each failure as the supervisor error.
func WithPublishError(enabled bool) RestartOption {
	return func(c *restartCfg) { c.publishErr = enabled }
}

// GoRestart runs fn and restarts it after errors or panics with jittered
// exponential backoff until the context is cancelled.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.maxBackoff = max(cfg.maxBackoff, cfg.minBackoff)

	s.Go0(name+".loop", func(ctx context.Context) {
		st := s.stat(name)
		backoff := cfg.minBackoff
		for restarts := 0; ; restarts++ {
			at := st.begin(restarts > 0)
			err := s.call(name, st, fn)
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || (err == nil && !cfg.restartNil) {
				st.end(nil)
				return
			}
			if err == nil {
				err = errors.New("exited")
			}
			err = fmt.Errorf("%s: %w", name, err)
			st.end(err)
			if cfg.publishErr {
				s.setErr(err)
			}
			if cfg.maxRestarts > 0 && restarts >= cfg.maxRestarts {
				s.log.Error("goroutine gave up", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(err)
				return
			}
			if time.Since(at) >= 30*time.Second {
				backoff = cfg.minBackoff
			}
			wait := min(backoff, cfg.maxBackoff)
			if j := int64(wait) / 5; j > 0 {
				wait += time.Duration(rand.Int64N(j + 1))
			}
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff = min(backoff*2, cfg.maxBackoff)
		}
	})
}

// Stop cancels the context and waits for every goroutine.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until all goroutines exit or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.Err()
	}
}

// ---- stats ----

type taskStats struct {
	mu        sync.Mutex
	name      string
	active    int64
	started   uint64
	restarts  uint64
	panics    uint64
	lastStart time.Time
	lastStop  time.Time
	lastErr   string
	lastPanic string
}

func (s *Supervisor) stat(name string) *taskStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[name]
	if !ok {
		st = &taskStats{name: name}
		s.tasks[name] = st
	}
	return st
}

func (t *taskStats) begin(restart bool) time.Time {
	now := time.Now()
	t.mu.Lock()
	t.started++
	t.active++
	if restart {
		t.restarts++
	}
	t.lastStart = now
	t.mu.Unlock()
	return now
}

func (t *taskStats) end(err error) {
	t.mu.Lock()
	if t.active > 0 {
		t.active--
	}
	t.lastStop = time.Now()
	if err != nil {
		t.lastErr = err.Error()
	}
	t.mu.Unlock()
}

func (t *taskStats) panicked(p any) {
	t.mu.Lock()
	t.panics++
	t.lastPanic = fmt.Sprint(p)
	t.mu.Unlock()
}

// TaskSnapshot describes one named task.
type TaskSnapshot struct {
	Name      string    `json:"name"`
	Active    int64     `json:"active"`
	Started   uint64    `json:"started"`
	Restarts  uint64    `json:"restarts"`
	Panics    uint64    `json:"panics"`
	LastStart time.Time `json:"last_start,omitzero"`
	LastStop  time.Time `json:"last_stop,omitzero"`
	LastErr   string    `json:"last_err,omitempty"`
	LastPanic string    `json:"last_panic,omitempty"`
}

// Snapshot is a point-in-time view for health output.
type Snapshot struct {
	Active     int64          `json:"active"`
	Started    uint64         `json:"started"`
	FirstError string         `json:"first_error,omitempty"`
	Tasks      []TaskSnapshot `json:"tasks"`
}

func (s *Supervisor) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap := Snapshot{Active: s.active.Load(), Started: s.started.Load()}
	if err := s.Err(); err != nil {
		snap.FirstError = err.Error()
	}
	s.mu.Lock()
	for _, t := range s.tasks {
		t.mu.Lock()
		snap.Tasks = append(snap.Tasks, TaskSnapshot{
			Name: t.name, Active: t.active, Started: t.started, Restarts: t.restarts, Panics: t.panics,
			LastStart: t.lastStart, LastStop: t.lastStop, LastErr: t.lastErr, LastPanic: t.lastPanic,
		})
		t.mu.Unlock()
	}
	s.mu.Unlock()
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].Name < snap.Tasks[j].Name })
	return snap
}
