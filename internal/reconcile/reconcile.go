// Package reconcile merges oracle mappings into the field registry.
//
// Reconciliation is best effort: every key is resolved and written on its
// own, so one unresolved key or rejected write never blocks the rest of the
// batch. Applying the same mapping twice leaves the registry in the same state
// as applying it once.
package reconcile

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/formscribe/internal/observe"
	"github.com/MrWong99/formscribe/internal/registry"
	"github.com/MrWong99/formscribe/pkg/types"
)

// Result summarises one [Engine.Apply] call.
type Result struct {
	// Updated is the number of fields written successfully.
	Updated int

	// Unresolved lists mapping keys that matched no field, sorted.
	Unresolved []string

	// Failed lists labels whose write the host rejected, sorted.
	Failed []string
}

// Engine applies [types.FieldUpdateMapping] values to a registry through a
// writer.
type Engine struct {
	registry *registry.Registry
	writer   registry.Writer
	metrics  *observe.Metrics
	source   string
}

// Option configures an [Engine].
type Option func(*Engine)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSource sets the source attribute recorded with update counts.
// Defaults to "ambient".
func WithSource(s string) Option {
	return func(e *Engine) { e.source = s }
}

// New returns an engine writing into reg through w.
func New(reg *registry.Registry, w registry.Writer, opts ...Option) *Engine {
	e := &Engine{registry: reg, writer: w, source: "ambient"}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Apply resolves every key of mapping against the registry and writes the
// resolved ones. Keys are visited in sorted order.
func (e *Engine) Apply(ctx context.Context, mapping types.FieldUpdateMapping) Result {
	var res Result
	if len(mapping) == 0 {
		return res
	}
	log := observe.Logger(ctx)

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		label, ok := e.registry.ResolveFuzzy(key)
		if !ok {
			res.Unresolved = append(res.Unresolved, key)
			attrs := []any{slog.String("key", key)}
			if near, score, hint := e.registry.Nearest(key); hint {
				attrs = append(attrs, slog.String("nearest", near), slog.Float64("similarity", score))
			}
			log.Debug("dropping unresolved oracle key", attrs...)
			continue
		}

		f, _ := e.registry.Lookup(label)
		value := mapping[key]
		if f.Control.Toggle() {
			value = ExplicitChecked(value)
		}
		if e.registry.Apply(ctx, label, value, e.writer) {
			res.Updated++
		} else {
			res.Failed = append(res.Failed, label)
		}
	}

	e.metrics.RecordReconcile(ctx, e.source, res.Updated, len(res.Unresolved))
	log.Info("oracle mapping reconciled",
		slog.Int("keys", len(keys)),
		slog.Int("updated", res.Updated),
		slog.Int("unresolved", len(res.Unresolved)),
		slog.Int("failed", len(res.Failed)),
	)
	return res
}

// ExplicitChecked turns an oracle value for a toggle control into "true" or
// "false": a command word sets the state it names, any other non-empty value
// means checked.
func ExplicitChecked(value string) string {
	if checked, ok := registry.CheckedCommand(value); ok {
		return strconv.FormatBool(checked)
	}
	return strconv.FormatBool(strings.TrimSpace(value) != "")
}
