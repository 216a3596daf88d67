package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"watchbot/internal/eventbus"
	"watchbot/internal/format"
	rtsup "watchbot/internal/runtime/supervisor"
	"watchbot/internal/storage"
	kit "watchbot/internal/transport"
	"watchbot/pkg/logx"
	"watchbot/pkg/tgui"
)

var (
	ErrDisabled          = errors.New("notifier disabled")
	ErrQueueFull         = errors.New("notifier queue full")
	ErrStopped           = errors.New("notifier stopped")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrDuplicateProvider = errors.New("provider already registered")
	ErrNoRecipient       = errors.New("no recipient")
)

const previewRunes = 120

type job struct {
	id        string
	provider  Provider
	recipient string
	req       format.Request
	action    string
	preview   string
	// key is computed at enqueue time; empty when dedup is off.
	key string
}

// Service implements the async pipeline:
// queue + worker pool + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store

	providers map[string]Provider

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	persistCh chan dedupWrite

	hmu     sync.Mutex
	history []HistoryItem
}

type dedupWrite struct {
	key   string
	until time.Time
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:       log.With(logx.String("comp", "notifier")),
		bus:       bus,
		store:     store,
		providers: map[string]Provider{},
		dedup:     map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

// Register adds p under p.Name(). Names are case-insensitive.
func (s *Service) Register(p Provider) error {
	if p == nil {
		return errors.New("nil provider")
	}
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	if name == "" {
		return errors.New("provider has no name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	s.providers[name] = p
	return nil
}

// Providers lists registered provider names, sorted.
func (s *Service) Providers() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.providers))
	for name := range s.providers {
		out = append(out, name)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

func (s *Service) provider(name string) (Provider, error) {
	s.mu.Lock()
	p, ok := s.providers[strings.ToLower(strings.TrimSpace(name))]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Supervisor returns the worker supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Config returns the effective configuration with defaults filled in.
func (s *Service) Config() Config {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	return cfg
}

// Apply swaps the configuration. Rate, retry and dedup settings take effect
// on the next send; Workers and QueueSize apply on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}

	s.cfg = cfg
	// Burst equals the per-second rate so short spikes pass.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the workers. It is idempotent and a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 1024)
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup, q, pch, st := s.sup, s.queue, s.persistCh, s.store
	s.mu.Unlock()

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch, st)
			return s.exitErr(c, "persist loop")
		}, rtsup.WithPublishError(true))
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return s.exitErr(c, "worker")
		}, rtsup.WithPublishError(true))
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Strings("providers", s.Providers()))
}

// exitErr classifies a loop return: clean during shutdown, an error otherwise
// so the supervisor restarts it.
func (s *Service) exitErr(ctx context.Context, what string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping {
		return context.Canceled
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("notifier %s exited unexpectedly", what)
}

// Stop stops intake and drains the queue best-effort until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q, pch, sup := s.queue, s.persistCh, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight enqueues finish before the queue closes.
		s.sendWG.Wait()
		if pch != nil {
			close(pch)
		}
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}

		s.mu.Lock()
		s.queue = nil
		s.persistCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify queues req for recipient on the named provider and returns the
// delivery id. A suppressed duplicate returns the new id and a nil error; the
// deduped event carries it.
func (s *Service) Notify(ctx context.Context, providerName, recipient string, req format.Request) (string, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", ErrNoRecipient
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return "", ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return "", ErrStopped
	}
	q := s.queue
	cfg := s.cfg
	pch := s.persistCh
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	j := s.newJob(p, recipient, req)
	if cfg.DedupWindow > 0 {
		j.key = dedupKey(j)
		if !s.dedupAllow(ctx, j.key, cfg, pch) {
			s.publish(EventDeduped, j, 0, 0, nil)
			s.appendHistory(j, storage.StatusDeduped, 0, nil)
			return j.id, nil
		}
	}

	s.publish(EventQueued, j, 0, 0, nil)
	select {
	case q <- j:
		return j.id, nil
	default:
		s.publish(EventDropped, j, 0, 0, ErrQueueFull)
		s.appendHistory(j, storage.StatusDropped, 0, ErrQueueFull)
		return j.id, ErrQueueFull
	}
}

// NotifyAll queues req once per provider in targets (provider name to
// recipient). Each provider gets its own Result.
func (s *Service) NotifyAll(ctx context.Context, targets map[string]string, req format.Request) map[string]Result {
	out := make(map[string]Result, len(targets))
	for name, recipient := range targets {
		id, err := s.Notify(ctx, name, recipient, req)
		out[name] = Result{ID: id, Err: err}
	}
	return out
}

// SendNow delivers req synchronously with the same rate limit and retry
// policy as the workers. Dedup is skipped. It works whether or not the
// service is started.
func (s *Service) SendNow(ctx context.Context, providerName, recipient string, req format.Request) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", ErrNoRecipient
	}
	j := s.newJob(p, recipient, req)
	return j.id, s.sendWithRetry(ctx, j)
}

func (s *Service) newJob(p Provider, recipient string, req format.Request) job {
	if req.At.IsZero() {
		req.At = time.Now()
	}
	return job{
		id:        uuid.NewString(),
		provider:  p,
		recipient: recipient,
		req:       req,
		action:    string(req.ResolvedAction()),
		preview:   tgui.TruncRunes(tgui.Plain(tgui.Raw(req.Message)), previewRunes),
	}
}

// History returns recent outcomes, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(j job, status string, attempts int, err error) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	it := HistoryItem{
		ID:        j.id,
		At:        time.Now(),
		Provider:  j.provider.Name(),
		Recipient: j.recipient,
		Action:    j.action,
		Status:    status,
		Attempts:  attempts,
		Preview:   j.preview,
	}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > size {
		s.history = append(s.history[:0:0], s.history[len(s.history)-size:]...)
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, j job, attempts int, took time.Duration, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := Event{
		ID:        j.id,
		Provider:  j.provider.Name(),
		Recipient: j.recipient,
		Action:    j.action,
		Key:       j.key,
		At:        now,
		Attempts:  attempts,
		TookMS:    took.Milliseconds(),
		Preview:   j.preview,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite, st storage.Store) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := st.PutDedup(cctx, w.key, w.until); err != nil {
				s.log.Debug("dedup persist failed", logx.Err(err))
			}
			cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			_ = s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, j job) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	log := s.log.With(logx.String("id", j.id), logx.String("provider", j.provider.Name()))
	maxAttempts := 1 + cfg.RetryMax
	start := time.Now()

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if err := lim.Wait(runCtx); err != nil {
			lastErr = err
			break
		}

		callCtx, cancel := context.WithTimeout(runCtx, cfg.SendTimeout)
		err := j.provider.Send(callCtx, j.recipient, j.req)
		cancel()
		if err == nil {
			s.appendHistory(j, storage.StatusSent, attempt, nil)
			s.publish(EventSent, j, attempt, time.Since(start), nil)
			log.Debug("notification sent", logx.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		log.Debug("notification send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if errors.Is(err, kit.ErrPermanent) || attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			lastErr = errors.Join(lastErr, runCtx.Err())
			attempt = maxAttempts
		}
	}

	s.appendHistory(j, storage.StatusFailed, attempt, lastErr)
	s.publish(EventFailed, j, attempt, time.Since(start), lastErr)
	log.Warn("notification failed", logx.Int("attempts", attempt), logx.Err(lastErr))
	return lastErr
}

func dedupKey(j job) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(j.provider.Name()))
	_, _ = h.Write([]byte("|" + j.recipient + "|" + j.action + "|"))
	_, _ = h.Write([]byte(j.req.Message))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(ctx context.Context, key string, cfg Config, pch chan dedupWrite) bool {
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	// Survives restarts when persisted.
	if cfg.PersistDedup && s.store != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		cctx, cancel := context.WithTimeout(ctx, 25*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(cfg.DedupWindow)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	// Evict earliest expiries past the cap.
	for len(s.dedup) > cfg.DedupMaxEntries {
		var (
			minKey string
			minT   time.Time
		)
		for k, u := range s.dedup {
			if minKey == "" || u.Before(minT) {
				minKey, minT = k, u
			}
		}
		delete(s.dedup, minKey)
	}
	s.dmu.Unlock()

	if pch != nil {
		select {
		case pch <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}

// PruneDedup drops expired in-memory entries and returns how many went.
func (s *Service) PruneDedup(now time.Time) int {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	n := 0
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
			n++
		}
	}
	return n
}

// retryDelay is the wait before attempt+1: base*2^(attempt-1), capped, with
// 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(min(d, cfg.RetryMaxDelay)) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
