// Package app wires configuration, logging, storage, the notifier and its
// providers, the health server and maintenance jobs into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"watchbot/internal/colors"
	"watchbot/internal/config"
	"watchbot/internal/eventbus"
	"watchbot/internal/health"
	"watchbot/internal/notifier"
	rtsup "watchbot/internal/runtime/supervisor"
	"watchbot/internal/storage"
	"watchbot/internal/transport/discord"
	"watchbot/internal/transport/telegram"
	tgadapter "watchbot/internal/transport/telegram/adapter"
	"watchbot/pkg/logx"
)

type Options struct {
	Version string
	// NoServe skips the Telegram poller and the health server. One-shot CLI
	// commands use it.
	NoServe bool
}

type App struct {
	opt  Options
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log    logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	store  storage.Store
	colors *colors.Resolver

	tg     *tgadapter.Adapter
	notif  *notifier.Service
	health *health.Server
	maint  *maintenance
}

func New(cfgPath string, opt Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogging(cfg), nil)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	// The env snapshot is taken once; overrides need a restart.
	res, err := colors.FromEnv()
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings() {
		log.Warn("color override ignored", logx.String("key", w.Key), logx.String("value", w.Value), logx.String("reason", w.Reason))
	}

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorage(cfg); err != nil {
		return nil, err
	} else if enabled {
		if store, err = storage.Open(sc, root); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		log.Info("storage enabled", logx.String("driver", store.Driver()))
	}

	ncfg, err := mapNotifier(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, root, bus, store)

	a := &App{
		opt:    opt,
		cfgm:   cfgm,
		log:    log,
		logs:   logs,
		bus:    bus,
		store:  store,
		colors: res,
		notif:  notif,
	}
	if err := a.registerProviders(cfg, root); err != nil {
		a.closeStore()
		return nil, err
	}
	if len(notif.Providers()) == 0 {
		log.Warn("no providers configured; set telegram.token or discord.token")
	}

	if hc, enabled, err := mapHealth(cfg); err != nil {
		a.closeStore()
		return nil, err
	} else if enabled && !opt.NoServe {
		a.health = health.New(hc, health.Deps{
			Notifier:    notif,
			Store:       store,
			Colors:      res,
			Supervisors: a.supervisors,
			Recipients:  func() map[string]string { return recipients(cfgm.Get()) },
			Version:     opt.Version,
			Log:         root,
		})
	}
	a.maint = newMaintenance(root, store, notif)
	return a, nil
}

func (a *App) registerProviders(cfg *config.Config, root logx.Logger) error {
	if token := strings.TrimSpace(cfg.Telegram.Token); token != "" {
		pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return err
		}
		ad, err := tgadapter.New(tgadapter.Config{
			Token:       token,
			APIURL:      cfg.Telegram.APIURL,
			Poll:        cfg.Telegram.Poll && !a.opt.NoServe,
			PollTimeout: pollTimeout,
		}, root.With(logx.String("comp", "telegram.adapter")))
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		a.tg = ad
		a.logs.SetSender(ad)
		p := telegram.NewProvider(ad, telegram.Options{
			SendAvatar:     cfg.Telegram.SendAvatar,
			DisablePreview: cfg.Telegram.DisablePreview,
		}, root)
		if err := a.notif.Register(p); err != nil {
			return err
		}
	}

	if token := strings.TrimSpace(cfg.Discord.Token); token != "" {
		timeout, err := config.DurationOr("discord.timeout", cfg.Discord.Timeout, 20*time.Second)
		if err != nil {
			return err
		}
		p, err := discord.New(discord.Config{Token: token, Timeout: timeout}, a.colors, root)
		if err != nil {
			return err
		}
		if err := a.notif.Register(p); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Notifier() *notifier.Service { return a.notif }
func (a *App) Colors() *colors.Resolver    { return a.colors }
func (a *App) Logger() logx.Logger         { return a.log }

// Recipients returns the configured default recipients.
func (a *App) Recipients() map[string]string { return recipients(a.cfgm.Get()) }

func (a *App) supervisors() map[string]*rtsup.Supervisor {
	out := map[string]*rtsup.Supervisor{}
	if a.sup != nil {
		out["app"] = a.sup
	}
	if sup := a.notif.Supervisor(); sup != nil {
		out["notifier"] = sup
	}
	if a.tg != nil {
		if sup := a.tg.Supervisor(); sup != nil {
			out["telegram"] = sup
		}
	}
	return out
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapNotifier(cfg); err != nil {
			return err
		}
		if _, _, err := mapHealth(cfg); err != nil {
			return err
		}
		_, _, err := mapStorage(cfg)
		return err
	})

	if a.tg != nil {
		if err := a.tg.Start(a.sup.Context()); err != nil {
			return err
		}
	}
	a.notif.Start(a.sup.Context())

	if a.store != nil {
		events, unsub := a.bus.Subscribe("notifier.", 256)
		a.sup.Go0("deliveries.record", func(c context.Context) {
			defer unsub()
			recordDeliveries(c, events, a.store, a.log)
		})
	}

	cfg := a.cfgm.Get()
	if err := a.maint.Apply(pruneSchedule(cfg), cfg.Maintenance.Timezone); err != nil {
		return err
	}
	if a.health != nil {
		a.sup.Go("health.http", a.health.Run)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						next = newer
					default:
						drained = true
					}
				}
				a.applyReload(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.Strings("providers", a.notif.Providers()),
		logx.Bool("health", a.health != nil),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

// applyReload applies the live-reloadable sections: logging, notifier and
// maintenance. Other sections are reported as needing a restart.
func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		switch s {
		case "telegram", "discord", "storage", "health":
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogging(newCfg))

	ncfg, err := mapNotifier(newCfg)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		was := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case was && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !was && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(a.sup.Context())
		}
	}

	if err := a.maint.Apply(pruneSchedule(newCfg), newCfg.Maintenance.Timezone); err != nil {
		a.log.Warn("invalid maintenance config; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in dependency order. Each step is bounded so a
// stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		stepCtx, cancel := context.WithTimeout(ctx, max(limit, 0))
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("maintenance", time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.tg != nil {
		step("telegram", 2*time.Second, a.tg.Stop)
	}
	if a.sup != nil {
		step("supervisor", 2*time.Second, a.sup.Wait)
	}
	step("storage", time.Second, func(context.Context) error { return a.closeStore() })

	a.log.Info("stopped")
	if err := a.logs.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	st := a.store
	a.store = nil
	return st.Close()
}
