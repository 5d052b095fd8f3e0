// Command formscribe is the entry point for the formscribe voice form-filling
// server.
//
// In server mode it serves the host bridge on /ws together with /healthz,
// /readyz and /metrics until SIGINT or SIGTERM. With -replay it instead runs
// an ambient session over a transcript file against a static form and
// prints the resulting field values.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/formscribe/internal/app"
	"github.com/MrWong99/formscribe/internal/bridge"
	"github.com/MrWong99/formscribe/internal/config"
	"github.com/MrWong99/formscribe/internal/observe"
	"github.com/MrWong99/formscribe/internal/registry"
	"github.com/MrWong99/formscribe/internal/resilience"
	"github.com/MrWong99/formscribe/pkg/provider/llm"
	"github.com/MrWong99/formscribe/pkg/provider/llm/anyllm"
	"github.com/MrWong99/formscribe/pkg/provider/llm/openai"
	"github.com/MrWong99/formscribe/pkg/provider/stt"
	"github.com/MrWong99/formscribe/pkg/provider/stt/deepgram"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	formPath := flag.String("form", "", "discover fields from this HTML file instead of a connected host")
	replayPath := flag.String("replay", "", "run an ambient session over this transcript file (one chunk per line) and print the field values")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath, flagSet("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "formscribe: %v\n", err)
		return 1
	}
	if *formPath != "" {
		cfg.Surface.Form = *formPath
	}
	if *replayPath != "" {
		if cfg.Surface.Form == "" {
			fmt.Fprintln(os.Stderr, "formscribe: -replay needs a form; pass -form or set surface.form")
			return 2
		}
		// Replays never touch the persisted state.
		cfg.Store.Backend = config.StoreNone
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	surface := "host"
	switch {
	case *replayPath != "":
		surface = "replay"
	case cfg.Surface.Form != "":
		surface = "form"
	}
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "formscribe",
		Surface:     surface,
		Recognizer:  cfg.Providers.STT.Name,
		Oracle:      cfg.Providers.LLM.Name,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	hub := bridge.New(bridge.WithOriginPatterns(cfg.Server.AllowedOrigins...))
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg, hub)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	opts := []app.Option{app.WithHub(hub)}
	if *replayPath != "" {
		opts = append(opts, app.WithWriter(registry.NewMemoryWriter()))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *replayPath != "" {
		code := replay(ctx, application, *replayPath, os.Stdout)
		if err := application.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
		return code
	}

	slog.Info("formscribe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"llm", cfg.Providers.LLM.Name,
		"stt", cfg.Providers.STT.Name,
		"form", cfg.Surface.Form,
		"store", cfg.Store.Backend,
	)

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path. A missing file at the default path is not an
// error: the built-in defaults are used instead.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	return nil, err
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// replay runs the transcript at path through application and prints one
// "label: value" line per field, sorted by label.
func replay(ctx context.Context, application *app.App, path string, out io.Writer) int {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("failed to open transcript", "err", err)
		return 1
	}
	defer f.Close()

	values, err := application.Replay(ctx, f)
	if err != nil {
		slog.Error("replay failed", "err", err)
		return 1
	}
	for _, label := range slices.Sorted(maps.Keys(values)) {
		fmt.Fprintf(out, "%s: %s\n", label, values[label])
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMProviders are the LLM backends reached through any-llm-go. They all
// take an optional API key and base URL.
var anyLLMProviders = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "ollama"}

// registerBuiltinProviders wires all built-in provider factories into reg.
// The "host" recognizer is the bridge hub itself.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config, hub *bridge.Hub) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if cfg.Oracle.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(cfg.Oracle.Timeout))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyLLMProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithSampleRate(cfg.Session.SampleRate)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		lang := cfg.Session.Language
		if l := optString(entry.Options, "language"); l != "" {
			lang = l
		}
		if lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT(config.HostRecognizer, func(config.ProviderEntry) (stt.Provider, error) {
		return hub, nil
	})

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// buildProviders instantiates the providers named in cfg. A chain with
// fallbacks is wrapped in a failover group whose breakers are handed to the
// readiness probe.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	fb := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Oracle.Breaker.MaxFailures,
		ResetTimeout: cfg.Oracle.Breaker.ResetTimeout,
		HalfOpenMax:  cfg.Oracle.Breaker.HalfOpenMax,
	}}

	if chain := cfg.Providers.LLM; chain.Name != "" {
		primary, err := reg.CreateLLM(chain.ProviderEntry)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", chain.Name, err)
		}
		ps.LLM = primary
		if len(chain.Fallbacks) > 0 {
			group := resilience.NewLLMFallback(primary, chain.Name, fb)
			for _, entry := range chain.Fallbacks {
				p, err := reg.CreateLLM(entry)
				if err != nil {
					return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
				}
				group.AddFallback(entry.Name, p)
			}
			ps.LLM = group
			ps.Breakers = append(ps.Breakers, group.Breakers()...)
		}
		slog.Info("provider created", "kind", "llm", "name", chain.Name, "fallbacks", len(chain.Fallbacks))
	}

	if chain := cfg.Providers.STT; chain.Name != "" {
		primary, err := reg.CreateSTT(chain.ProviderEntry)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", chain.Name, err)
		}
		ps.STT = primary
		if len(chain.Fallbacks) > 0 {
			group := resilience.NewSTTFallback(primary, chain.Name, fb)
			for _, entry := range chain.Fallbacks {
				p, err := reg.CreateSTT(entry)
				if err != nil {
					return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
				}
				group.AddFallback(entry.Name, p)
			}
			ps.STT = group
			ps.Breakers = append(ps.Breakers, group.Breakers()...)
		}
		slog.Info("provider created", "kind", "stt", "name", chain.Name, "fallbacks", len(chain.Fallbacks))
	}

	return ps, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
