package registry

import (
	"context"
	"sync"
)

// SurfaceFunc adapts a function to the [Surface] interface.
type SurfaceFunc func(ctx context.Context) ([]Candidate, error)

// Candidates implements [Surface].
func (f SurfaceFunc) Candidates(ctx context.Context) ([]Candidate, error) { return f(ctx) }

// Write is one call recorded by [MemoryWriter].
type Write struct {
	Label string
	Ref   string
	Value string
}

// MemoryWriter is a [Writer] that keeps written values in memory. It backs
// replay mode and tests.
type MemoryWriter struct {
	mu     sync.Mutex
	reject map[string]bool
	values map[string]string
	writes []Write
}

var _ Writer = (*MemoryWriter)(nil)

// NewMemoryWriter returns a writer that rejects writes to the given labels
// and accepts all others.
func NewMemoryWriter(reject ...string) *MemoryWriter {
	w := &MemoryWriter{
		reject: make(map[string]bool, len(reject)),
		values: make(map[string]string),
	}
	for _, l := range reject {
		w.reject[l] = true
	}
	return w
}

// Write implements [Writer].
func (w *MemoryWriter) Write(_ context.Context, f Field, value string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, Write{Label: f.Label, Ref: f.Ref, Value: value})
	if w.reject[f.Label] {
		return false
	}
	if f.Control.Toggle() {
		value = checkedValue(CheckedState(value, f.Checked))
	}
	w.values[f.Label] = value
	return true
}

// Value returns the last accepted value for label.
func (w *MemoryWriter) Value(label string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.values[label]
	return v, ok
}

// Writes returns a copy of every recorded call, including rejected ones.
func (w *MemoryWriter) Writes() []Write {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Write, len(w.writes))
	copy(out, w.writes)
	return out
}
