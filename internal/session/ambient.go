package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/formscribe/internal/normalize"
	"github.com/MrWong99/formscribe/internal/observe"
	"github.com/MrWong99/formscribe/internal/oracle"
	"github.com/MrWong99/formscribe/internal/reconcile"
	"github.com/MrWong99/formscribe/internal/registry"
	"github.com/MrWong99/formscribe/pkg/types"
)

// DefaultAmbientPause is the silence after which an ambient session marks an
// utterance pause.
const DefaultAmbientPause = 5 * time.Second

// AmbientConfig configures an [Ambient] session.
type AmbientConfig struct {
	// Registry supplies the field snapshot sent to the oracle. Required.
	Registry *registry.Registry

	// Oracle infers field values from the history. Required.
	Oracle oracle.Oracle

	// Engine merges oracle output into the registry. Required.
	Engine *reconcile.Engine

	// Normalizer formats chunks as text. Defaults to normalize.New().
	Normalizer *normalize.Normalizer

	// Pause is the silence threshold that marks an utterance pause. It never
	// ends the session. Defaults to [DefaultAmbientPause].
	Pause time.Duration

	// OnUpdate receives the result of every successful reconciliation.
	OnUpdate func(reconcile.Result)

	// OnError receives every failed oracle call.
	OnError func(error)

	// OnPause is called when the pause threshold elapses.
	OnPause func()
}

// Ambient buffers free conversation and asks the oracle, after every final
// chunk, which fields the conversation so far fills in.
//
// Oracle calls are fire-and-forget: each runs on its own goroutine with a
// context detached from the session, may overlap with others, and still
// reconciles when it completes after [Ambient.Stop].
type Ambient struct {
	cfg AmbientConfig

	mu       sync.Mutex
	state    State
	history  strings.Builder
	interim  string
	paused   bool
	timer    silenceTimer
	inflight sync.WaitGroup
}

// NewAmbient returns an idle ambient session.
func NewAmbient(cfg AmbientConfig) *Ambient {
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New()
	}
	if cfg.Pause <= 0 {
		cfg.Pause = DefaultAmbientPause
	}
	return &Ambient{cfg: cfg, timer: silenceTimer{d: cfg.Pause}}
}

// Start begins listening with an empty history.
func (a *Ambient) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateIdle {
		return ErrSessionActive
	}
	a.history.Reset()
	a.interim = ""
	a.paused = false
	a.state = StateListening
	return nil
}

// Stop clears the history and returns to idle. In-flight oracle calls are
// not cancelled.
func (a *Ambient) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timer.stop()
	a.history.Reset()
	a.interim = ""
	a.paused = false
	a.state = StateIdle
}

// Wait blocks until every in-flight oracle call has finished and been
// reconciled.
func (a *Ambient) Wait() {
	a.inflight.Wait()
}

// State returns the current state.
func (a *Ambient) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// History returns the conversation buffered so far.
func (a *Ambient) History() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.String()
}

// Paused reports whether the pause threshold elapsed since the last final
// chunk.
func (a *Ambient) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// HandleTranscript feeds one recognizer chunk into the session. Every
// non-empty final chunk extends the history and dispatches an oracle call.
func (a *Ambient) HandleTranscript(ctx context.Context, t types.Transcript) {
	a.mu.Lock()
	if a.state != StateListening {
		a.mu.Unlock()
		return
	}
	if !t.IsFinal {
		a.interim = t.Text
		a.mu.Unlock()
		return
	}
	chunk := a.cfg.Normalizer.Normalize(t.Text, types.FieldText)
	if chunk == "" {
		a.mu.Unlock()
		return
	}
	if a.history.Len() > 0 {
		a.history.WriteByte(' ')
	}
	a.history.WriteString(chunk)
	a.interim = ""
	a.paused = false
	history := a.history.String()
	detached := observe.Detach(ctx)
	a.timer.arm(func(gen uint64) { a.onPause(detached, gen) })
	a.inflight.Add(1)
	a.mu.Unlock()

	snapshot := a.cfg.Registry.Snapshot()
	go a.infer(detached, history, snapshot)
}

func (a *Ambient) infer(ctx context.Context, history string, snapshot map[string]string) {
	defer a.inflight.Done()

	mapping, err := a.cfg.Oracle.Infer(ctx, history, snapshot)
	if err != nil {
		observe.Logger(ctx).Warn("oracle call failed", slog.Any("err", err))
		if a.cfg.OnError != nil {
			a.cfg.OnError(err)
		}
		return
	}
	res := a.cfg.Engine.Apply(ctx, mapping)
	if a.cfg.OnUpdate != nil {
		a.cfg.OnUpdate(res)
	}
}

func (a *Ambient) onPause(ctx context.Context, gen uint64) {
	a.mu.Lock()
	if !a.timer.current(gen) || a.state != StateListening {
		a.mu.Unlock()
		return
	}
	a.paused = true
	hook := a.cfg.OnPause
	a.mu.Unlock()

	observe.Logger(ctx).Debug("ambient utterance pause")
	if hook != nil {
		hook()
	}
}
