// Package session implements the two capture modes and the controller that
// owns the speech recognizer.
//
// A [Dictation] binds one capture to one field; an [Ambient] session buffers
// free conversation for the mapping oracle. The [Controller] allows one
// capture at a time, pumps recognizer events into the active session, and
// funnels every way a capture can end through a single transition handler
// that branches on the session kind.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/formscribe/internal/observe"
	"github.com/MrWong99/formscribe/pkg/provider/stt"
	"github.com/MrWong99/formscribe/pkg/types"
)

// DefaultRestartDelay is the pause before the recognizer is reopened after a
// transient error or an ambient end-of-stream.
const DefaultRestartDelay = 500 * time.Millisecond

// Mode is the kind of capture currently holding the recognizer.
type Mode int

const (
	ModeIdle Mode = iota
	ModeDictation
	ModeAmbient
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeDictation:
		return "dictation"
	case ModeAmbient:
		return "ambient"
	}
	return "idle"
}

// Status is a user-facing capture status update.
type Status struct {
	Mode    Mode
	State   string
	Message string
}

// Status states.
const (
	StatusListening  = "listening"
	StatusRestarting = "restarting"
	StatusInactive   = "inactive"
	StatusError      = "error"
)

// ControllerConfig configures a [Controller].
type ControllerConfig struct {
	// Recognizer opens speech streams. A nil recognizer makes every Start
	// return [ErrRecognitionUnavailable].
	Recognizer stt.Provider

	// Stream is the base stream configuration. Dictations add keyword hints
	// for the target label.
	Stream stt.StreamConfig

	Dictation *Dictation
	Ambient   *Ambient

	// RestartDelay defaults to [DefaultRestartDelay].
	RestartDelay time.Duration

	// OnError receives fatal recognition errors and failed restarts.
	OnError func(error)

	// OnStatus receives capture status changes.
	OnStatus func(Status)

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Controller owns the recognizer lifecycle. All methods are safe for
// concurrent use.
type Controller struct {
	recognizer   stt.Provider
	stream       stt.StreamConfig
	dictation    *Dictation
	ambient      *Ambient
	restartDelay time.Duration
	onError      func(error)
	onStatus     func(Status)
	metrics      *observe.Metrics

	mu     sync.Mutex
	mode   Mode
	handle stt.SessionHandle
	ctx    context.Context
	gen    uint64
	pumps  sync.WaitGroup
}

// NewController returns an idle controller.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	c := &Controller{
		recognizer:   cfg.Recognizer,
		stream:       cfg.Stream,
		dictation:    cfg.Dictation,
		ambient:      cfg.Ambient,
		restartDelay: cfg.RestartDelay,
		onError:      cfg.OnError,
		onStatus:     cfg.OnStatus,
		metrics:      cfg.Metrics,
	}
	if c.dictation != nil {
		c.dictation.mu.Lock()
		c.dictation.finished = func(Result) { c.captureEnded(ModeDictation, ReasonSilence, nil, 0) }
		c.dictation.mu.Unlock()
	}
	return c
}

// Mode returns the capture currently holding the recognizer.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// StartDictation starts a dictation into label.
func (c *Controller) StartDictation(ctx context.Context, label string) error {
	if c.dictation == nil || c.recognizer == nil {
		return ErrRecognitionUnavailable
	}
	c.mu.Lock()
	if c.mode != ModeIdle {
		c.mu.Unlock()
		return ErrRecognizerBusy
	}
	if err := c.dictation.Start(label); err != nil {
		c.mu.Unlock()
		return err
	}
	cfg := c.stream
	cfg.Keywords = append(append([]types.KeywordBoost(nil), cfg.Keywords...), c.dictation.Keywords()...)
	err := c.openLocked(observe.WithAttrs(ctx, slog.String("label", label)), ModeDictation, cfg)
	c.mu.Unlock()
	if err != nil {
		c.dictation.cancel()
		return err
	}
	c.status(Status{Mode: ModeDictation, State: StatusListening})
	return nil
}

// StartAmbient starts ambient capture.
func (c *Controller) StartAmbient(ctx context.Context) error {
	if c.ambient == nil || c.recognizer == nil {
		return ErrRecognitionUnavailable
	}
	c.mu.Lock()
	if c.mode != ModeIdle {
		c.mu.Unlock()
		return ErrRecognizerBusy
	}
	if err := c.ambient.Start(); err != nil {
		c.mu.Unlock()
		return err
	}
	err := c.openLocked(ctx, ModeAmbient, c.stream)
	c.mu.Unlock()
	if err != nil {
		c.ambient.Stop()
		return err
	}
	c.status(Status{Mode: ModeAmbient, State: StatusListening})
	return nil
}

// StopDictation ends the running dictation and returns its result.
func (c *Controller) StopDictation() (Result, error) {
	if !c.release(ModeDictation) {
		return Result{}, ErrNotActive
	}
	res, _ := c.dictation.end(ReasonStopped)
	c.status(Status{Mode: ModeDictation, State: StatusInactive})
	return res, nil
}

// StopAmbient ends ambient capture. Oracle calls already in flight still
// reconcile.
func (c *Controller) StopAmbient() error {
	if !c.release(ModeAmbient) {
		return ErrNotActive
	}
	c.ambient.Stop()
	c.status(Status{Mode: ModeAmbient, State: StatusInactive})
	return nil
}

// SendAudio forwards PCM audio to the open recognizer stream.
func (c *Controller) SendAudio(chunk []byte) error {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == nil {
		return ErrNotActive
	}
	return h.SendAudio(chunk)
}

// Close stops any capture and waits for the recognizer pump and in-flight
// oracle calls to drain.
func (c *Controller) Close() {
	switch c.Mode() {
	case ModeDictation:
		_, _ = c.StopDictation()
	case ModeAmbient:
		_ = c.StopAmbient()
	}
	c.pumps.Wait()
	if c.ambient != nil {
		c.ambient.Wait()
	}
}

// openLocked opens a recognizer stream for mode. Must be called with c.mu held.
func (c *Controller) openLocked(ctx context.Context, mode Mode, cfg stt.StreamConfig) error {
	ctx = observe.WithAttrs(ctx, slog.String("capture", mode.String()))
	h, err := c.recognizer.StartStream(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
	}
	c.gen++
	c.mode = mode
	c.handle = h
	c.ctx = ctx
	c.metrics.SessionStarted(ctx, mode.String())
	c.pumps.Add(1)
	go c.pump(ctx, h, mode, c.gen)
	return nil
}

// release detaches the recognizer if mode holds it and closes it outside the
// lock. It reports whether mode was active.
func (c *Controller) release(mode Mode) bool {
	c.mu.Lock()
	if c.mode != mode {
		c.mu.Unlock()
		return false
	}
	h := c.detachLocked()
	ctx := c.ctx
	c.mu.Unlock()
	c.metrics.SessionEnded(ctx, mode.String())
	if h != nil {
		_ = h.Close()
	}
	return true
}

func (c *Controller) detachLocked() stt.SessionHandle {
	h := c.handle
	c.handle = nil
	c.mode = ModeIdle
	c.gen++
	return h
}

// pump forwards recognizer events until both channels close, then reports
// how the stream ended. Events from a superseded stream are dropped.
func (c *Controller) pump(ctx context.Context, h stt.SessionHandle, mode Mode, gen uint64) {
	defer c.pumps.Done()
	partials, finals := h.Partials(), h.Finals()
	for partials != nil || finals != nil {
		var (
			t  types.Transcript
			ok bool
		)
		select {
		case t, ok = <-partials:
			if !ok {
				partials = nil
				continue
			}
		case t, ok = <-finals:
			if !ok {
				finals = nil
				continue
			}
		}
		if !c.live(gen) {
			continue
		}
		switch mode {
		case ModeDictation:
			c.dictation.HandleTranscript(ctx, t)
		case ModeAmbient:
			c.ambient.HandleTranscript(ctx, t)
		}
	}

	reason := ReasonEndOfStream
	err := h.Err()
	if err != nil {
		reason = ReasonError
	}
	c.captureEnded(mode, reason, err, gen)
}

func (c *Controller) live(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// captureEnded is the single transition handler for a capture ending on its
// own: silence, end of stream, or a recognition error. gen identifies the
// stream that ended; zero means the current one. Ends of superseded streams
// are ignored.
func (c *Controller) captureEnded(mode Mode, reason EndReason, err error, gen uint64) {
	c.mu.Lock()
	if c.mode != mode || (gen != 0 && gen != c.gen) {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	log := observe.Logger(ctx).With(slog.String("reason", reason.String()))

	var re *RecognitionError
	if reason == ReasonError {
		re = classifyRecognition(err, mode)
		c.metrics.RecordRecognitionError(ctx, re.Code, re.Kind.String())
	}

	switch {
	case reason == ReasonSilence:
		// Dictation finished on its own; release the recognizer.
		h := c.detachLocked()
		c.mu.Unlock()
		c.metrics.SessionEnded(ctx, mode.String())
		closeHandle(h)
		c.status(Status{Mode: mode, State: StatusInactive})

	case re != nil && re.Kind == KindFatal:
		h := c.detachLocked()
		c.mu.Unlock()
		c.metrics.SessionEnded(ctx, mode.String())
		closeHandle(h)
		log.Error("recognition failed", slog.String("code", re.Code), slog.Any("err", err))
		if mode == ModeDictation {
			c.dictation.end(ReasonError)
		} else {
			c.ambient.Stop()
		}
		c.status(Status{Mode: mode, State: StatusError, Message: re.Message()})
		if c.onError != nil {
			c.onError(re)
		}

	case mode == ModeDictation && re == nil:
		// The recognizer stopped by itself; the dictation is complete.
		h := c.detachLocked()
		c.mu.Unlock()
		c.metrics.SessionEnded(ctx, mode.String())
		closeHandle(h)
		c.dictation.end(ReasonEndOfStream)
		c.status(Status{Mode: mode, State: StatusInactive})

	default:
		// Transient error, or ambient end-of-stream: reopen after a delay.
		c.handle = nil
		c.gen++
		restartGen := c.gen
		c.mu.Unlock()
		if re != nil {
			log.Debug("transient recognition error, restarting", slog.String("code", re.Code))
		} else {
			log.Debug("recognizer ended, restarting")
		}
		c.status(Status{Mode: mode, State: StatusRestarting, Message: "Restarting microphone..."})
		time.AfterFunc(c.restartDelay, func() { c.restart(mode, restartGen) })
	}
}

// restart reopens the recognizer for mode unless the capture was stopped or
// replaced in the meantime.
func (c *Controller) restart(mode Mode, gen uint64) {
	c.mu.Lock()
	if c.mode != mode || c.gen != gen {
		c.mu.Unlock()
		return
	}
	cfg := c.stream
	if mode == ModeDictation {
		cfg.Keywords = append(append([]types.KeywordBoost(nil), cfg.Keywords...), c.dictation.Keywords()...)
	}
	ctx := c.ctx
	if ctx.Err() != nil {
		c.mu.Unlock()
		c.failRestart(mode, ctx.Err())
		return
	}
	h, err := c.recognizer.StartStream(ctx, cfg)
	if err != nil {
		c.mu.Unlock()
		c.failRestart(mode, err)
		return
	}
	c.gen++
	c.handle = h
	c.pumps.Add(1)
	go c.pump(ctx, h, mode, c.gen)
	c.mu.Unlock()

	c.metrics.RecognizerRestarts.Add(ctx, 1)
	c.status(Status{Mode: mode, State: StatusListening})
}

func (c *Controller) failRestart(mode Mode, err error) {
	if !c.release(mode) {
		return
	}
	if mode == ModeDictation {
		c.dictation.end(ReasonError)
	} else {
		c.ambient.Stop()
	}
	observe.Logger(context.Background()).Error("recognizer restart failed", slog.String("mode", mode.String()), slog.Any("err", err))
	c.status(Status{Mode: mode, State: StatusError, Message: "Restart failed."})
	if c.onError != nil {
		c.onError(fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err))
	}
}

func (c *Controller) status(s Status) {
	if c.onStatus != nil {
		c.onStatus(s)
	}
}

func closeHandle(h stt.SessionHandle) {
	if h != nil {
		_ = h.Close()
	}
}
