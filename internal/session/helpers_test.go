package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/formscribe/internal/registry"
	"github.com/MrWong99/formscribe/pkg/types"
)

func labelled(ref, label string) registry.Candidate {
	return registry.Candidate{
		Ref:     ref,
		Visible: true,
		Signals: []registry.Signal{{Provenance: registry.ProvenanceLabelFor, Text: label}},
	}
}

func newTestRegistry(t *testing.T, cands ...registry.Candidate) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.SurfaceFunc(func(context.Context) ([]registry.Candidate, error) { return cands, nil }))
	if _, err := reg.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return reg
}

func final(text string, conf float64) types.Transcript {
	return types.Transcript{Text: text, IsFinal: true, Confidence: conf}
}

// results collects dictation results delivered through OnFinal.
type results struct {
	mu  sync.Mutex
	got []Result
	ch  chan Result
}

func newResults() *results { return &results{ch: make(chan Result, 8)} }

func (r *results) add(res Result) {
	r.mu.Lock()
	r.got = append(r.got, res)
	r.mu.Unlock()
	r.ch <- res
}

func (r *results) wait(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dictation result")
		return Result{}
	}
}

func (r *results) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
