package session

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/formscribe/internal/classify"
	"github.com/MrWong99/formscribe/internal/normalize"
	"github.com/MrWong99/formscribe/internal/observe"
	"github.com/MrWong99/formscribe/internal/registry"
	"github.com/MrWong99/formscribe/pkg/types"
)

// Defaults for [Dictation].
const (
	DefaultDictationSilence = 2 * time.Second

	// defaultConfidence is reported when no final chunk carried a confidence.
	defaultConfidence = 0.9
)

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateListening
	StateFinalizing
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateFinalizing:
		return "finalizing"
	}
	return "unknown"
}

// EndReason says why a capture ended.
type EndReason int

const (
	ReasonSilence EndReason = iota
	ReasonStopped
	ReasonEndOfStream
	ReasonError
)

// String implements fmt.Stringer.
func (r EndReason) String() string {
	switch r {
	case ReasonSilence:
		return "silence"
	case ReasonStopped:
		return "stopped"
	case ReasonEndOfStream:
		return "end_of_stream"
	case ReasonError:
		return "error"
	}
	return "unknown"
}

// Result is the outcome of one dictation.
type Result struct {
	Label      string
	Transcript string
	Confidence float64
	Reason     EndReason

	// Bound is false when the label matched no field and nothing was written.
	Bound bool
}

// DictationConfig configures a [Dictation].
type DictationConfig struct {
	// Registry resolves the target label. Required.
	Registry *registry.Registry

	// Writer receives the running value after every final chunk. Required.
	Writer registry.Writer

	// Normalizer formats dictated text. Defaults to normalize.New().
	Normalizer *normalize.Normalizer

	// Silence is the pause after the last final chunk that ends the
	// dictation. Defaults to [DefaultDictationSilence].
	Silence time.Duration

	// OnFinal is called once for every dictation that returns to idle,
	// however it ended. May be nil.
	OnFinal func(Result)

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Dictation captures speech into a single field.
//
// The state machine is Idle → Listening → Finalizing → Idle. Final chunks
// are normalized for the field's type and written through the registry as
// they arrive; a silence timer, [Dictation.Stop], or the end of the
// recognizer stream finishes the dictation.
//
// All methods are safe for concurrent use.
type Dictation struct {
	reg     *registry.Registry
	writer  registry.Writer
	norm    *normalize.Normalizer
	onFinal func(Result)
	metrics *observe.Metrics

	mu         sync.Mutex
	state      State
	label      string
	field      registry.Field
	bound      bool
	fieldType  types.FieldType
	finals     []string
	interim    string
	confSum    float64
	confCount  int
	startState bool
	timer      silenceTimer

	// finished is set by the Controller to release the recognizer when the
	// dictation ends on its own.
	finished func(Result)
}

// NewDictation returns an idle dictation session.
func NewDictation(cfg DictationConfig) *Dictation {
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New()
	}
	if cfg.Silence <= 0 {
		cfg.Silence = DefaultDictationSilence
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Dictation{
		reg:     cfg.Registry,
		writer:  cfg.Writer,
		norm:    cfg.Normalizer,
		onFinal: cfg.OnFinal,
		metrics: cfg.Metrics,
		timer:   silenceTimer{d: cfg.Silence},
	}
}

// Start binds the session to label and begins listening. A label that
// resolves to no field, exactly or case-insensitively, still starts an
// unbound dictation that classifies the label text alone and writes nowhere.
func (d *Dictation) Start(label string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateIdle {
		return ErrSessionActive
	}

	d.reset()
	d.label = label
	resolved, ok := label, false
	if _, exact := d.reg.Lookup(label); exact {
		ok = true
	} else {
		resolved, ok = d.reg.ResolveFuzzy(label)
	}
	if ok {
		d.field, _ = d.reg.Lookup(resolved)
		d.label = resolved
		d.bound = true
		d.fieldType = d.field.Type
		d.startState = d.field.Checked
	} else {
		d.fieldType = classify.Classify(label, classify.Hints{})
	}
	d.state = StateListening
	return nil
}

// Label returns the label of the current or last dictation.
func (d *Dictation) Label() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.label
}

// State returns the current state.
func (d *Dictation) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Keywords returns recognition hints for the current target label.
func (d *Dictation) Keywords() []types.KeywordBoost {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []types.KeywordBoost
	for _, w := range strings.Fields(d.label) {
		if len(w) > 2 {
			out = append(out, types.KeywordBoost{Keyword: w, Boost: 2})
		}
	}
	return out
}

// HandleTranscript feeds one recognizer chunk into the session. Chunks that
// arrive while the session is not listening are ignored.
func (d *Dictation) HandleTranscript(ctx context.Context, t types.Transcript) {
	d.mu.Lock()
	if d.state != StateListening {
		d.mu.Unlock()
		return
	}
	if !t.IsFinal {
		d.interim = t.Text
		d.mu.Unlock()
		return
	}
	text := strings.TrimSpace(t.Text)
	if text == "" {
		d.mu.Unlock()
		return
	}

	d.finals = append(d.finals, text)
	d.interim = ""
	if t.Confidence > 0 {
		d.confSum += t.Confidence
		d.confCount++
	}
	value := d.valueLocked()
	bound, label, control := d.bound, d.label, d.field.Control
	if control.Toggle() {
		value = d.checkedValueLocked()
	}
	d.timer.arm(d.onSilence)
	d.mu.Unlock()

	// A chunk that normalises to nothing never clears the field.
	if bound && value != "" {
		if !d.reg.Apply(ctx, label, value, d.writer) {
			observe.Logger(ctx).Warn("dictated value rejected by host",
				slog.String("label", label))
		}
	}
}

// Stop ends the dictation and returns the best transcript available: the
// accumulated finals, or the pending interim text when no final arrived.
// Interim text is never written to the field.
func (d *Dictation) Stop() Result {
	res, _ := d.end(ReasonStopped)
	return res
}

// end finishes the dictation and emits its result. It reports false when the
// session was not listening.
func (d *Dictation) end(reason EndReason) (Result, bool) {
	d.mu.Lock()
	res, ok := d.finishLocked(reason)
	d.mu.Unlock()
	if ok {
		d.emit(res)
	}
	return res, ok
}

func (d *Dictation) onSilence(gen uint64) {
	d.mu.Lock()
	if !d.timer.current(gen) {
		d.mu.Unlock()
		return
	}
	res, ok := d.finishLocked(ReasonSilence)
	hook := d.finished
	d.mu.Unlock()
	if !ok {
		return
	}
	if hook != nil {
		hook(res)
	}
	d.emit(res)
}

// finishLocked moves Listening → Finalizing → Idle and builds the result.
func (d *Dictation) finishLocked(reason EndReason) (Result, bool) {
	if d.state != StateListening {
		return Result{}, false
	}
	d.state = StateFinalizing
	d.timer.stop()

	transcript := d.valueLocked()
	if transcript == "" && d.interim != "" {
		transcript = d.norm.Normalize(d.interim, d.fieldType)
	}
	res := Result{
		Label:      d.label,
		Transcript: transcript,
		Confidence: d.confidenceLocked(),
		Reason:     reason,
		Bound:      d.bound,
	}
	d.state = StateIdle
	return res, true
}

// cancel abandons a dictation that never got a recognizer. No result is
// emitted.
func (d *Dictation) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
	d.state = StateIdle
}

func (d *Dictation) emit(res Result) {
	d.metrics.RecordDictation(context.Background(), res.Reason.String())
	if d.onFinal != nil {
		d.onFinal(res)
	}
}

// valueLocked renders the accumulated finals for the field type. Finals are
// joined before formatting so that numbers and addresses spoken across
// several chunks come out whole.
func (d *Dictation) valueLocked() string {
	if len(d.finals) == 0 {
		return ""
	}
	return d.norm.Normalize(strings.Join(d.finals, " "), d.fieldType)
}

// checkedValueLocked derives an explicit checkbox state from the finals. The
// toggle case flips the state the field had when dictation started, so
// further chunks without a command do not flip it back.
func (d *Dictation) checkedValueLocked() string {
	return strconv.FormatBool(registry.CheckedState(strings.Join(d.finals, " "), d.startState))
}

func (d *Dictation) confidenceLocked() float64 {
	if d.confCount == 0 {
		return defaultConfidence
	}
	return d.confSum / float64(d.confCount)
}

func (d *Dictation) reset() {
	d.timer.stop()
	d.label = ""
	d.field = registry.Field{}
	d.bound = false
	d.fieldType = types.FieldText
	d.finals = nil
	d.interim = ""
	d.confSum = 0
	d.confCount = 0
	d.startState = false
}
