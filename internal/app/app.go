// Package app wires the transcriberd subsystems into a running
// application.
//
// New creates and connects every subsystem from a config.Config. Run
// executes the HTTP server, the inference worker(s), and the idle-expiry
// sweep until ctx is cancelled. Shutdown tears everything down in reverse
// init order.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/johnsnewby/transcriberd/internal/audit"
	"github.com/johnsnewby/transcriberd/internal/config"
	"github.com/johnsnewby/transcriberd/internal/health"
	"github.com/johnsnewby/transcriberd/internal/jobqueue"
	"github.com/johnsnewby/transcriberd/internal/observe"
	"github.com/johnsnewby/transcriberd/internal/server"
	"github.com/johnsnewby/transcriberd/internal/session"
	"github.com/johnsnewby/transcriberd/internal/worker"
	"github.com/johnsnewby/transcriberd/internal/worker/remote"
	"golang.org/x/sync/errgroup"
)

// expirySweepInterval is how often the idle-session reaper runs.
const expirySweepInterval = time.Minute

// App owns every subsystem's lifetime and orchestrates the transcription
// pipeline: HTTP/websocket ingest, the job queue, one or both inference
// workers, and the audit ledger.
type App struct {
	cfg *config.Config

	registry *session.Registry
	queue    *jobqueue.Queue
	ledger   audit.Ledger
	metrics  *observe.Metrics
	pool     *worker.Pool
	remote   *remote.Worker
	srv      *server.Server
	httpSrv  *http.Server

	// closers are called in reverse init order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New, used to inject test doubles.
type Option func(*App)

// WithMetrics injects a Metrics instance instead of observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New wires every subsystem from cfg: the session registry, job queue,
// audit ledger, local and (optionally) remote inference workers, and the
// HTTP server. Initialisation is synchronous and fails fast; nothing is
// started until Run is called.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.registry = session.NewRegistry()
	a.queue = jobqueue.New()
	a.closers = append(a.closers, func() error { a.queue.Close(); return nil })

	// ── 1. Audit ledger ──────────────────────────────────────────────────
	if err := a.initLedger(ctx); err != nil {
		return nil, fmt.Errorf("app: init audit ledger: %w", err)
	}

	// ── 2. Delivery adapter shared by both inference workers ────────────
	delivery := server.NewDelivery(a.registry, a.ledger)

	// ── 3. Local inference pool ──────────────────────────────────────────
	if err := a.initPool(delivery); err != nil {
		return nil, fmt.Errorf("app: init worker pool: %w", err)
	}

	// ── 4. Remote worker (optional) ──────────────────────────────────────
	a.initRemote(delivery)

	// ── 5. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// initLedger constructs the audit ledger from cfg.AuditDSN, falling back to
// a no-op ledger when unset.
func (a *App) initLedger(ctx context.Context) error {
	if a.cfg.AuditDSN == "" {
		a.ledger = audit.NewNoop()
		return nil
	}
	ledger, err := audit.New(ctx, a.cfg.AuditDSN)
	if err != nil {
		return err
	}
	a.ledger = ledger
	a.closers = append(a.closers, func() error { ledger.Close(); return nil })
	return nil
}

// initPool loads the whisper.cpp model and constructs the local worker
// pool. The pool's goroutines are not started until Run.
func (a *App) initPool(delivery *server.Delivery) error {
	pool, err := worker.New(a.cfg.ModelPath(), delivery, a.metrics)
	if err != nil {
		return err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	return nil
}

// initRemote constructs the remote HTTP worker when cfg.WhisperServer is
// configured. Audio reaching the remote worker is resampled to 16kHz
// unconditionally by the worker itself; sourceRate 0 here means "use the
// rate embedded in each request's session", which the remote package
// resolves per-call.
func (a *App) initRemote(delivery *server.Delivery) {
	if a.cfg.WhisperServer == "" {
		return
	}
	a.remote = remote.New(a.cfg.WhisperServer, delivery, a.metrics, 0)
}

// initServer constructs the HTTP server with every configured option,
// including the /healthz and /readyz checks tied to worker liveness and
// the audit ledger.
func (a *App) initServer() {
	healthHandler := health.New(a.readinessCheckers()...)

	opts := []server.Option{
		server.WithLedger(a.ledger),
		server.WithMetrics(a.metrics),
		server.WithIdleTimeout(a.cfg.IdleTimeout),
		server.WithHealth(healthHandler),
	}
	if a.cfg.RecordingsDir != "" {
		opts = append(opts, server.WithRecordingsDir(a.cfg.RecordingsDir))
	}
	a.srv = server.New(a.registry, a.queue, opts...)
}

// readinessCheckers builds the /readyz checks: the local worker pool must
// have at least one live worker, and a configured audit DB must respond to
// a ping.
func (a *App) readinessCheckers() []health.Checker {
	checkers := []health.Checker{
		{
			Name: "worker_pool",
			Check: func(context.Context) error {
				if a.pool.Workers() == 0 {
					return fmt.Errorf("no live worker")
				}
				return nil
			},
		},
	}
	if pinger, ok := a.ledger.(audit.Pinger); ok {
		checkers = append(checkers, health.Checker{
			Name:  "audit_db",
			Check: pinger.Ping,
		})
	}
	return checkers
}

// Run starts the HTTP server, the local worker pool, the remote worker (if
// configured), and the idle-session expiry sweep. It blocks until ctx is
// cancelled or a subsystem fails; on cancellation it stops the HTTP
// listener and closes the job queue, and returns once the workers have
// drained it.
func (a *App) Run(ctx context.Context) error {
	validator := server.NewValidator(a.registry)

	g, gctx := errgroup.WithContext(ctx)

	a.httpSrv = &http.Server{
		Addr:    a.cfg.Listen,
		Handler: a.srv.Handler(),
	}
	g.Go(func() error {
		slog.Info("app: http server listening", "addr", a.cfg.Listen)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	poolWG := a.pool.Start(gctx, a.queue, validator, a.cfg.WhisperProcesses)
	g.Go(func() error {
		<-gctx.Done()
		poolWG.Wait()
		return nil
	})

	if a.remote != nil {
		g.Go(func() error {
			a.remote.Run(gctx, a.queue, validator)
			return nil
		})
	}

	g.Go(func() error {
		a.runExpirySweep(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		// Unblock ListenAndServe and the queue subscribers so the goroutines
		// above return; Shutdown repeats both calls harmlessly.
		_ = a.httpSrv.Shutdown(gctx)
		a.queue.Close()
		return gctx.Err()
	})

	return g.Wait()
}

// runExpirySweep removes idle sessions every expirySweepInterval until ctx
// is cancelled, per the 24-hour idle-session lifecycle contract.
func (a *App) runExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := a.registry.Expire()
			if n == 0 {
				continue
			}
			slog.Info("app: idle-expiry sweep removed sessions", "count", n)
			if a.metrics != nil {
				for i := 0; i < n; i++ {
					a.metrics.SessionsExpired.Add(ctx, 1)
				}
			}
		}
	}
}

// Shutdown stops the HTTP server and tears down every other subsystem in
// reverse init order, respecting ctx's deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("app: http server shutdown error", "error", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("app: closer error", "index", i, "error", err)
			}
		}
	})
	return shutdownErr
}
