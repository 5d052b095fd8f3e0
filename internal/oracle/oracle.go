// Package oracle infers which form fields a conversation fills in.
//
// [Oracle] is the port the ambient session calls with the running
// conversation history and the current label→value snapshot. [LLMOracle] is
// the production adapter: it prompts an [llm.Provider] through a circuit
// breaker and parses the reply with [ParseMapping].
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/formscribe/internal/observe"
	"github.com/MrWong99/formscribe/internal/resilience"
	"github.com/MrWong99/formscribe/pkg/provider/llm"
	"github.com/MrWong99/formscribe/pkg/types"
)

// Oracle maps free conversation text onto form fields.
type Oracle interface {
	// Infer returns field values implied by history. fields is the current
	// label→value snapshot. Keys of the result are not guaranteed to match
	// any label. Transport failures are returned as *InferenceError; a reply
	// that cannot be parsed yields an empty mapping and a nil error.
	Infer(ctx context.Context, history string, fields map[string]string) (types.FieldUpdateMapping, error)
}

// InferenceError reports a failed oracle call. The registry is never touched
// when an inference fails.
type InferenceError struct {
	Err error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("oracle: inference failed: %v", e.Err)
}

// Unwrap returns the underlying transport error.
func (e *InferenceError) Unwrap() error { return e.Err }

// Defaults for [LLMOracle].
const (
	DefaultMinConfidence = 0.8
	DefaultTimeout       = 30 * time.Second
	DefaultMaxTokens     = 1024
)

// LLMOracle implements [Oracle] on top of an [llm.Provider].
type LLMOracle struct {
	provider      llm.Provider
	breaker       *resilience.CircuitBreaker
	metrics       *observe.Metrics
	minConfidence float64
	timeout       time.Duration
	temperature   float64
	maxTokens     int
}

var _ Oracle = (*LLMOracle)(nil)

// Option configures an [LLMOracle].
type Option func(*LLMOracle)

// WithBreaker routes calls through cb. Without it the oracle uses a breaker
// with the package defaults.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *LLMOracle) { o.breaker = cb }
}

// WithMinConfidence sets the threshold below which values that carry an
// explicit confidence are dropped.
func WithMinConfidence(c float64) Option {
	return func(o *LLMOracle) { o.minConfidence = c }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(o *LLMOracle) { o.timeout = d }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *LLMOracle) { o.temperature = t }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(o *LLMOracle) { o.maxTokens = n }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *LLMOracle) { o.metrics = m }
}

// NewLLM returns an oracle backed by p.
func NewLLM(p llm.Provider, opts ...Option) *LLMOracle {
	o := &LLMOracle{
		provider:      p,
		minConfidence: DefaultMinConfidence,
		timeout:       DefaultTimeout,
		maxTokens:     DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.breaker == nil {
		o.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "oracle"})
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Breaker returns the circuit breaker guarding the provider.
func (o *LLMOracle) Breaker() *resilience.CircuitBreaker { return o.breaker }

// Infer implements [Oracle].
func (o *LLMOracle) Infer(ctx context.Context, history string, fields map[string]string) (types.FieldUpdateMapping, error) {
	if strings.TrimSpace(history) == "" {
		return types.FieldUpdateMapping{}, nil
	}

	ctx, span := observe.StartSpan(ctx, "oracle.infer")
	defer span.End()

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []types.Message{{Role: "user", Content: BuildPrompt(history, fields)}},
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
		JSONMode:     o.provider.Capabilities().SupportsJSONMode,
	}

	start := time.Now()
	var resp *llm.CompletionResponse
	// A timeout of callCtx counts against the breaker; cancellation of ctx
	// by the caller does not.
	err := o.breaker.ExecuteContext(ctx, func(context.Context) error {
		var err error
		resp, err = o.provider.Complete(callCtx, req)
		return err
	})
	elapsed := time.Since(start)
	log := observe.Logger(ctx)

	if err != nil {
		status := "error"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			status = "rejected"
		}
		o.metrics.RecordOracleCall(ctx, status, elapsed)
		span.RecordError(err)
		return nil, &InferenceError{Err: err}
	}
	if resp == nil {
		o.metrics.RecordOracleCall(ctx, "error", elapsed)
		return nil, &InferenceError{Err: errors.New("empty completion")}
	}

	mapping, err := ParseMapping(resp.Content, o.minConfidence)
	if err != nil {
		o.metrics.RecordOracleCall(ctx, "parse_error", elapsed)
		log.Warn("oracle reply not usable, treating as empty",
			slog.Any("err", err),
			slog.Int("reply_len", len(resp.Content)),
		)
		return types.FieldUpdateMapping{}, nil
	}

	o.metrics.RecordOracleCall(ctx, "ok", elapsed)
	log.Debug("oracle inferred mapping",
		slog.Int("keys", len(mapping)),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Duration("duration", elapsed),
	)
	return mapping, nil
}
