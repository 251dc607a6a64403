// Package httpapi is the admission and diagnostic HTTP surface.
//
// Admission validates synchronously and hands the task to the queue; it never
// waits for the publish. The check endpoint probes credentials without ever
// touching the queue.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"threadq/internal/publisher"
	"threadq/internal/queue"
	"threadq/internal/task"
	"threadq/pkg/logx"
)

const (
	DefaultAddr       = ":3000"
	defaultCheckRate  = 1.0
	defaultCheckBurst = 3
	maxBodyBytes      = 1 << 20
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequireProxy makes proxyDescriptor mandatory at admission.
	RequireProxy bool

	// CheckRate and CheckBurst limit /api/check across all callers.
	CheckRate  float64
	CheckBurst int

	Pprof      bool
	PprofToken string
}

// Queue is the part of queue.Service the surface needs.
type Queue interface {
	Enqueue(t task.Task) (int, error)
	Len() int
	Snapshot() queue.Snapshot
}

type Server struct {
	cfg    Config
	log    logx.Logger
	queue  Queue
	prober publisher.Prober
	egress queue.Egress

	mu      sync.Mutex
	limiter *rate.Limiter

	handler http.Handler
}

// New builds the router. prober and egress may be nil; /api/check then
// reports that probing is unavailable.
func New(cfg Config, q Queue, prober publisher.Prober, egress queue.Egress, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:    cfg,
		log:    log,
		queue:  q,
		prober: prober,
		egress: egress,
	}
	s.limiter = newLimiter(cfg.CheckRate, cfg.CheckBurst)
	s.handler = s.routes()
	return s
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = defaultCheckRate
	}
	if burst <= 0 {
		burst = defaultCheckBurst
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// SetCheckRate swaps the /api/check limit (hot reload).
func (s *Server) SetCheckRate(rps float64, burst int) {
	l := newLimiter(rps, burst)
	s.mu.Lock()
	s.limiter = l
	s.mu.Unlock()
}

func (s *Server) allowCheck() bool {
	s.mu.Lock()
	l := s.limiter
	s.mu.Unlock()
	return l.Allow()
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	// Bodies are decoded as JSON whatever the Content-Type says; script
	// clients often send JSON as text/plain or without a header.
	r.Route("/api", func(r chi.Router) {
		r.Post("/enqueue", s.handleEnqueue)
		r.Post("/check", s.handleCheck)
		r.Get("/status", s.handleStatus)
	})

	if s.cfg.Pprof {
		r.Mount("/debug/pprof", pprofRouter(s.cfg.PprofToken))
	}
	return r
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
			logx.Int("bytes", ww.BytesWritten()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
			logx.String("remote", r.RemoteAddr),
		)
	})
}

// Run listens on cfg.Addr and serves until ctx is done, then shuts down
// gracefully. It returns nil after a ctx-initiated shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		_ = srv.Close()
		s.log.Warn("http shutdown incomplete", logx.Err(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("http stopped")
	return nil
}
