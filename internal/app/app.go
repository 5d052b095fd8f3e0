// Package app wires all formscribe subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the host bridge and probes until the context ends,
// Replay drives an ambient session from a transcript file, and Shutdown tears
// everything down in order.
//
// For testing, inject test doubles via functional options (WithStore,
// WithSurface, WithWriter, WithOracle). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/formscribe/internal/bridge"
	"github.com/MrWong99/formscribe/internal/config"
	"github.com/MrWong99/formscribe/internal/discovery/htmlform"
	"github.com/MrWong99/formscribe/internal/health"
	"github.com/MrWong99/formscribe/internal/normalize"
	"github.com/MrWong99/formscribe/internal/observe"
	"github.com/MrWong99/formscribe/internal/oracle"
	"github.com/MrWong99/formscribe/internal/reconcile"
	"github.com/MrWong99/formscribe/internal/registry"
	"github.com/MrWong99/formscribe/internal/resilience"
	"github.com/MrWong99/formscribe/internal/session"
	"github.com/MrWong99/formscribe/internal/store"
	"github.com/MrWong99/formscribe/pkg/provider/llm"
	"github.com/MrWong99/formscribe/pkg/provider/stt"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider

	// Breakers are the per-provider circuit breakers of failover chains.
	// They are reported by the readiness probe.
	Breakers []*resilience.CircuitBreaker
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	hub        *bridge.Hub
	surface    registry.Surface
	writer     registry.Writer
	registry   *registry.Registry
	oracle     oracle.Oracle
	store      store.Store
	controller *session.Controller
	sessions   *SessionManager
	checkers   []health.Checker

	// last is the confirmation restored from the store at start-up.
	last    store.Confirmation
	hasLast bool

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHub uses h as the host bridge. main shares it with the "host" speech
// recognizer factory.
func WithHub(h *bridge.Hub) Option {
	return func(a *App) { a.hub = h }
}

// WithStore injects a state store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSurface injects a discovery surface instead of the host bridge or the
// configured form file.
func WithSurface(s registry.Surface) Option {
	return func(a *App) { a.surface = s }
}

// WithWriter injects a field writer instead of the host bridge.
func WithWriter(w registry.Writer) Option {
	return func(a *App) { a.writer = w }
}

// WithOracle injects a mapping oracle instead of building one on the LLM
// provider.
func WithOracle(o oracle.Oracle) Option {
	return func(a *App) { a.oracle = o }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New opens and migrates the state store and restores the last confirmed
// dictation from it. Discovery is deferred to Run, Replay, or the host's
// first surface report.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.hub == nil {
		a.hub = bridge.New(bridge.WithOriginPatterns(cfg.Server.AllowedOrigins...))
	}

	// ── 1. Discovery surface and writer ──────────────────────────────────
	a.initSurface()
	a.registry = registry.New(a.surface, registry.WithMetrics(a.metrics))

	// ── 2. State store ───────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 3. Mapping oracle ────────────────────────────────────────────────
	a.initOracle()

	// ── 4. Capture sessions ──────────────────────────────────────────────
	a.initSessions()

	// ── 5. Readiness checks ──────────────────────────────────────────────
	a.initChecks()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSurface picks the discovery surface and the field writer. A configured
// form file replaces the host's controls; its values are then kept in memory
// and mirrored to a connected host.
func (a *App) initSurface() {
	form := a.cfg.Surface.Form
	if a.surface == nil {
		if form != "" {
			a.surface = htmlform.Open(form)
		} else {
			a.surface = a.hub
		}
	}
	if a.writer == nil {
		if form != "" {
			a.writer = mirrorWriter{primary: registry.NewMemoryWriter(), mirror: a.hub}
		} else {
			a.writer = a.hub
		}
	}
}

// initStore opens the configured state backend and restores the last
// confirmation.
func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		switch a.cfg.Store.Backend {
		case config.StoreFile:
			a.store = store.NewFileStore(a.cfg.Store.Path)
		case config.StorePostgres:
			pool, err := pgxpool.New(ctx, a.cfg.Store.PostgresDSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			ps := store.NewPostgresStore(pool)
			if err := ps.Migrate(ctx); err != nil {
				pool.Close()
				return err
			}
			a.store = ps
			a.closers = append(a.closers, func() error {
				pool.Close()
				return nil
			})
		default:
			slog.Info("state store disabled")
			return nil
		}
	}

	c, ok, err := a.store.Load(ctx)
	switch {
	case errors.Is(err, store.ErrCorrupt):
		slog.Warn("ignoring unreadable state", "err", err)
	case err != nil:
		return err
	case ok:
		a.last, a.hasLast = c, true
		slog.Info("restored last confirmed dictation", "label", c.Label, "confidence", c.Confidence)
	}
	return nil
}

// initOracle builds the LLM oracle behind a circuit breaker unless one was
// injected. Without an LLM provider ambient mode is unavailable.
func (a *App) initOracle() {
	if a.oracle != nil {
		return
	}
	if a.providers.LLM == nil {
		slog.Warn("no llm provider configured, ambient mode disabled")
		return
	}
	oc := a.cfg.Oracle
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "oracle",
		MaxFailures:  oc.Breaker.MaxFailures,
		ResetTimeout: oc.Breaker.ResetTimeout,
		HalfOpenMax:  oc.Breaker.HalfOpenMax,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Info("oracle breaker state changed", "name", name, "from", from, "to", to)
		},
	})
	a.oracle = oracle.NewLLM(a.providers.LLM,
		oracle.WithBreaker(breaker),
		oracle.WithMinConfidence(oc.MinConfidence),
		oracle.WithTimeout(oc.Timeout),
		oracle.WithTemperature(oc.Temperature),
		oracle.WithMaxTokens(oc.MaxTokens),
		oracle.WithMetrics(a.metrics),
	)
}

// initSessions builds both capture modes, the controller that owns the
// recognizer, and the host command handler.
func (a *App) initSessions() {
	norm := normalize.New(
		normalize.WithCorrections(a.cfg.Normalize.Corrections),
		normalize.WithEmailProviders(a.cfg.Normalize.EmailProviders...),
	)
	a.sessions = NewSessionManager(SessionManagerConfig{
		Registry: a.registry,
		Hub:      a.hub,
		Store:    a.store,
		Static:   a.cfg.Surface.Form != "",
	})

	dictation := session.NewDictation(session.DictationConfig{
		Registry:   a.registry,
		Writer:     a.writer,
		Normalizer: norm,
		Silence:    a.cfg.Session.DictationSilence,
		OnFinal:    a.sessions.dictationFinished,
		Metrics:    a.metrics,
	})

	var ambient *session.Ambient
	if a.oracle != nil {
		ambient = session.NewAmbient(session.AmbientConfig{
			Registry:   a.registry,
			Oracle:     a.oracle,
			Engine:     reconcile.New(a.registry, a.writer, reconcile.WithMetrics(a.metrics)),
			Normalizer: norm,
			Pause:      a.cfg.Session.AmbientPause,
			OnUpdate:   a.sessions.ambientUpdated,
			OnError:    a.sessions.oracleFailed,
		})
	}

	a.controller = session.NewController(session.ControllerConfig{
		Recognizer: a.providers.STT,
		Stream: stt.StreamConfig{
			SampleRate: a.cfg.Session.SampleRate,
			Channels:   1,
			Language:   a.cfg.Session.Language,
		},
		Dictation:    dictation,
		Ambient:      ambient,
		RestartDelay: a.cfg.Session.RestartDelay,
		OnError:      a.sessions.recognitionFailed,
		OnStatus:     a.sessions.statusChanged,
		Metrics:      a.metrics,
	})
	a.sessions.controller = a.controller
	a.sessions.ambient = ambient
	a.hub.SetHandler(a.sessions)
}

// initChecks collects the readiness checks: the oracle breaker, the
// provider failover breakers and the state store.
func (a *App) initChecks() {
	if o, ok := a.oracle.(*oracle.LLMOracle); ok && o.Breaker() != nil {
		a.checkers = append(a.checkers, health.Breaker(o.Breaker()))
	}
	for _, cb := range a.providers.Breakers {
		a.checkers = append(a.checkers, health.Breaker(cb))
	}
	if a.store != nil {
		a.checkers = append(a.checkers, health.Ping("store", a.store))
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Registry returns the field registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Controller returns the capture controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Sessions returns the host command handler.
func (a *App) Sessions() *SessionManager { return a.sessions }

// LastConfirmed returns the confirmation restored from the store at start-up.
func (a *App) LastConfirmed() (store.Confirmation, bool) { return a.last, a.hasLast }

// Handler returns the HTTP handler serving the host bridge, the probes and
// the metrics endpoint.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", a.hub)
	health.New(a.checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and, with a static form, polls it for changes. It blocks
// until ctx is cancelled and the server has shut down, then returns nil; any
// other failure is returned.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if form := a.cfg.Surface.Form; form != "" {
		if _, err := a.registry.Discover(ctx); err != nil {
			return fmt.Errorf("app: discover %s: %w", form, err)
		}
		slog.Info("form discovered", "path", form, "fields", a.registry.Len())
		g.Go(func() error {
			htmlform.Watch(ctx, form, a.cfg.Surface.PollInterval, func() {
				if _, err := a.registry.Discover(ctx); err != nil {
					slog.Warn("rediscovery failed", "path", form, "err", err)
					return
				}
				slog.Info("form rediscovered", "path", form, "fields", a.registry.Len())
			})
			return nil
		})
	}

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops any active capture, waits for in-flight oracle calls, and
// runs the closers in order. It respects the context deadline: if ctx expires
// before all closers finish, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		done := make(chan struct{})
		go func() {
			a.controller.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded while stopping capture")
			shutdownErr = ctx.Err()
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// mirrorWriter writes to primary and copies successful writes to mirror on a
// best-effort basis.
type mirrorWriter struct {
	primary registry.Writer
	mirror  registry.Writer
}

func (w mirrorWriter) Write(ctx context.Context, f registry.Field, value string) bool {
	if !w.primary.Write(ctx, f, value) {
		return false
	}
	w.mirror.Write(ctx, f, value)
	return true
}
