// Package registry maintains the label→field map discovered on a host
// document.
//
// Discovery reads raw [Candidate] elements from a [Surface], picks one label
// per candidate by provenance priority, classifies it, and replaces the whole
// field set. Writes go through a [Writer]; the registry value only changes
// when the host accepted the write.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/formscribe/internal/classify"
	"github.com/MrWong99/formscribe/internal/observe"
)

// NearestThreshold is the Jaro-Winkler similarity above which [Registry.Nearest]
// reports a label as a likely intended match.
const NearestThreshold = 0.85

// ErrNoSurface is returned by [Registry.Discover] when the registry was built
// without a surface.
var ErrNoSurface = errors.New("registry: no discovery surface")

// Registry is the live label→field map. All methods are safe for concurrent use.
type Registry struct {
	surface Surface
	metrics *observe.Metrics

	mu     sync.RWMutex
	fields map[string]Field
}

// Option is a functional option for [New].
type Option func(*Registry)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New returns an empty registry that discovers fields from surface.
func New(surface Surface, opts ...Option) *Registry {
	r := &Registry{
		surface: surface,
		fields:  make(map[string]Field),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Discover runs one discovery pass and replaces the field set with its
// result. It returns a copy of the new set.
func (r *Registry) Discover(ctx context.Context) (map[string]Field, error) {
	if r.surface == nil {
		return nil, ErrNoSurface
	}
	cands, err := r.surface.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: discover: %w", err)
	}
	fields := Build(cands)

	r.mu.Lock()
	r.fields = fields
	r.mu.Unlock()

	r.metrics.DiscoveredFields.Record(ctx, int64(len(fields)))
	observe.Logger(ctx).Debug("fields discovered",
		slog.Int("candidates", len(cands)),
		slog.Int("fields", len(fields)),
	)
	return maps.Clone(fields), nil
}

// Build turns raw candidates into a label→field map. A candidate's position
// is its index in cands. Invisible candidates and candidates without a valid
// label are skipped. When two candidates share a label the one at the lower
// position is kept.
func Build(cands []Candidate) map[string]Field {
	fields := make(map[string]Field, len(cands))
	for pos, c := range cands {
		if !c.Visible {
			continue
		}
		label, prov, ok := chooseLabel(c.Signals)
		if !ok {
			continue
		}
		if _, dup := fields[label]; dup {
			continue
		}
		control := c.Control
		if control == "" {
			control = ControlText
		}
		f := Field{
			Label:      label,
			Type:       classify.Classify(label, classify.Hints{NativeType: c.NativeType, Name: c.Name, ID: c.ID, Placeholder: c.Placeholder}),
			Value:      c.Value,
			Confidence: prov.Confidence(),
			Position:   pos,
			Ref:        c.Ref,
			Provenance: prov,
			Control:    control,
			Checked:    c.Checked,
		}
		if control.Toggle() {
			f.Value = checkedValue(c.Checked)
		}
		fields[label] = f
	}
	return fields
}

// Lookup returns the field with exactly the given label.
func (r *Registry) Lookup(label string) (Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fields[label]
	return f, ok
}

// ResolveFuzzy maps an arbitrary key to a current label using case-insensitive
// equality. An exact-case match wins; otherwise the lowest position wins.
func (r *Registry) ResolveFuzzy(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.fields[key]; ok {
		return key, true
	}
	found := false
	var best Field
	for label, f := range r.fields {
		if !strings.EqualFold(label, key) {
			continue
		}
		if !found || f.Position < best.Position {
			best, found = f, true
		}
	}
	return best.Label, found
}

// Snapshot returns the current label→value map. Toggle controls report
// "true" or "false".
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(map[string]string, len(r.fields))
	for label, f := range r.fields {
		snap[label] = f.Value
	}
	return snap
}

// Fields returns all fields ordered by position.
func (r *Registry) Fields() []Field {
	r.mu.RLock()
	out := make([]Field, 0, len(r.fields))
	for _, f := range r.fields {
		out = append(out, f)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Field) int { return a.Position - b.Position })
	return out
}

// Len returns the number of fields.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fields)
}

// Apply writes value to the field with the given label through w and, when
// the write succeeds, records it in the registry. For toggle controls value
// is resolved with [CheckedState]. It reports whether the write succeeded.
func (r *Registry) Apply(ctx context.Context, label, value string, w Writer) bool {
	f, ok := r.Lookup(label)
	if !ok {
		return false
	}
	if !w.Write(ctx, f, value) {
		r.metrics.WriteFailures.Add(ctx, 1)
		observe.Logger(ctx).Warn("field write rejected", slog.String("label", label))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.fields[label]
	if !ok || cur.Ref != f.Ref {
		// Rediscovered while the write was in flight; the new pass already
		// reflects the host value.
		return true
	}
	if cur.Control.Toggle() {
		cur.Checked = CheckedState(value, cur.Checked)
		cur.Value = checkedValue(cur.Checked)
	} else {
		cur.Value = value
	}
	r.fields[label] = cur
	return true
}

// Nearest returns the label most similar to key and its Jaro-Winkler score.
// ok is false when no label reaches [NearestThreshold]. The result is a
// diagnostic hint only; it never resolves a key.
func (r *Registry) Nearest(key string) (label string, score float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	needle := strings.ToLower(key)
	for l := range r.fields {
		s := matchr.JaroWinkler(needle, strings.ToLower(l), false)
		if s > score || (s == score && l < label) {
			label, score = l, s
		}
	}
	return label, score, score >= NearestThreshold
}
