package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultDictationSilence = 2 * time.Second
	DefaultAmbientPause     = 5 * time.Second
	DefaultRestartDelay     = 500 * time.Millisecond
	DefaultLanguage         = "en-US"
	DefaultSampleRate       = 16000
	DefaultMinConfidence    = 0.8
	DefaultOracleTimeout    = 30 * time.Second
	DefaultMaxTokens        = 1024
	DefaultStatePath        = "formscribe-state.yaml"
	DefaultPollInterval     = 2 * time.Second
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp"},
	"stt": {"deepgram", HostRecognizer},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = HostRecognizer
	}

	s := &cfg.Session
	if s.DictationSilence == 0 {
		s.DictationSilence = DefaultDictationSilence
	}
	if s.AmbientPause == 0 {
		s.AmbientPause = DefaultAmbientPause
	}
	if s.RestartDelay == 0 {
		s.RestartDelay = DefaultRestartDelay
	}
	if s.Language == "" {
		s.Language = DefaultLanguage
	}
	if s.SampleRate == 0 {
		s.SampleRate = DefaultSampleRate
	}

	o := &cfg.Oracle
	if o.MinConfidence == 0 {
		o.MinConfidence = DefaultMinConfidence
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultOracleTimeout
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreFile
	}
	if cfg.Store.Backend == StoreFile && cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStatePath
	}
	if cfg.Surface.PollInterval == 0 {
		cfg.Surface.PollInterval = DefaultPollInterval
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	errs = append(errs, validateChain("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateChain("stt", cfg.Providers.STT)...)
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; ambient mode will be unavailable")
	}

	s := cfg.Session
	for name, d := range map[string]time.Duration{
		"session.dictation_silence": s.DictationSilence,
		"session.ambient_pause":     s.AmbientPause,
		"session.restart_delay":     s.RestartDelay,
		"oracle.timeout":            cfg.Oracle.Timeout,
		"surface.poll_interval":     cfg.Surface.PollInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if s.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("session.sample_rate must not be negative, got %d", s.SampleRate))
	}

	o := cfg.Oracle
	if o.MinConfidence < 0 || o.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("oracle.min_confidence %.2f is out of range [0, 1]", o.MinConfidence))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("oracle.temperature %.2f is out of range [0, 2]", o.Temperature))
	}
	if o.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("oracle.max_tokens must not be negative, got %d", o.MaxTokens))
	}
	if o.Breaker.MaxFailures < 0 || o.Breaker.HalfOpenMax < 0 || o.Breaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("oracle.breaker values must not be negative"))
	}

	for spoken := range cfg.Normalize.Corrections {
		if spoken == "" {
			errs = append(errs, errors.New("normalize.corrections contains an empty phrase"))
			break
		}
	}

	switch st := cfg.Store; {
	case st.Backend != "" && !st.Backend.IsValid():
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: file, postgres, none", st.Backend))
	case st.Backend == StorePostgres && st.PostgresDSN == "":
		errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
	case st.Backend == StoreFile && st.Path == "":
		errs = append(errs, errors.New("store.path is required when store.backend is file"))
	}

	return errors.Join(errs...)
}

func validateChain(kind string, chain ProviderChain) []error {
	var errs []error
	validateProviderName(kind, chain.Name)
	for i, fb := range chain.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			continue
		}
		if kind == "stt" && fb.Name == HostRecognizer {
			errs = append(errs, fmt.Errorf("providers.stt.fallbacks[%d]: the host recognizer cannot be a fallback", i))
		}
		validateProviderName(kind, fb.Name)
	}
	if len(chain.Fallbacks) > 0 && chain.Name == "" {
		errs = append(errs, fmt.Errorf("providers.%s.fallbacks require a primary provider name", kind))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" || slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
