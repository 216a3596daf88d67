// Package health serves the diagnostics HTTP API: liveness, the resolved
// color table, delivery history, render previews and a notify endpoint for
// the gateway process.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"watchbot/internal/colors"
	"watchbot/internal/format"
	"watchbot/internal/notifier"
	rtsup "watchbot/internal/runtime/supervisor"
	"watchbot/internal/storage"
	"watchbot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8080"

type Config struct {
	Addr           string
	RequestTimeout time.Duration
	// CORSOrigins enables CORS for these origins when non-empty.
	CORSOrigins []string
	// Pprof mounts net/http/pprof under /debug/pprof/. Keep the server on
	// loopback when enabled.
	Pprof bool
}

// Notifier is the part of notifier.Service the API uses.
type Notifier interface {
	Enabled() bool
	Providers() []string
	History() []notifier.HistoryItem
	NotifyAll(ctx context.Context, targets map[string]string, req format.Request) map[string]notifier.Result
}

type Deps struct {
	Notifier Notifier
	Store    storage.Store
	Colors   *colors.Resolver
	// Supervisors returns the runtime supervisors by name.
	Supervisors func() map[string]*rtsup.Supervisor
	// Recipients returns the default provider to recipient map.
	Recipients func() map[string]string
	Version    string
	Log        logx.Logger
}

type Server struct {
	cfg     Config
	deps    Deps
	log     logx.Logger
	started time.Time
	router  chi.Router
	srv     *http.Server
}

func New(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "health")), started: time.Now()}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		if len(s.cfg.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: s.cfg.CORSOrigins,
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type"},
				MaxAge:         300,
			}))
		}

		r.Get("/health", s.handleHealth)
		r.Route("/api", func(r chi.Router) {
			r.Get("/colors", s.handleColors)
			r.Get("/history", s.handleHistory)
			r.Post("/preview", s.handlePreview)
			r.Post("/notify", s.handleNotify)
		})
	})

	// CPU profiles outlive the request timeout, so pprof sits outside the group.
	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr is the configured listen address.
func (s *Server) Addr() string { return s.cfg.Addr }

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.log.Info("health server listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(sctx)
		<-errCh
		return nil
	}
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
