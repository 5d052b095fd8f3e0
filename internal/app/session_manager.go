package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/formscribe/internal/bridge"
	"github.com/MrWong99/formscribe/internal/observe"
	"github.com/MrWong99/formscribe/internal/reconcile"
	"github.com/MrWong99/formscribe/internal/registry"
	"github.com/MrWong99/formscribe/internal/session"
	"github.com/MrWong99/formscribe/internal/store"
)

// notifyTimeout bounds host notifications sent from session callbacks.
const notifyTimeout = 5 * time.Second

// Notifier delivers session events to the host.
type Notifier interface {
	SendFinal(ctx context.Context, label, transcript string, confidence float64) error
	SendStatus(ctx context.Context, state, message string) error
	SendError(ctx context.Context, kind, message string) error
}

var (
	_ Notifier       = (*bridge.Hub)(nil)
	_ bridge.Handler = (*SessionManager)(nil)
)

// SessionManager routes host commands to the capture controller, keeps
// discovery current, persists confirmed dictations, and reports session
// events back to the host. All exported methods are safe for concurrent use.
type SessionManager struct {
	registry *registry.Registry
	notifier Notifier
	store    store.Store
	static   bool

	// Set by App after the controller is built.
	controller *session.Controller
	ambient    *session.Ambient

	mu   sync.Mutex
	last store.Confirmation
	seen bool
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Registry *registry.Registry

	// Hub receives session events. Any [Notifier] works; nil discards them.
	Hub Notifier

	// Store persists confirmed dictations. May be nil.
	Store store.Store

	// Static is set when discovery reads a form file; surface reports from
	// the host are then ignored.
	Static bool
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		registry: cfg.Registry,
		notifier: cfg.Hub,
		store:    cfg.Store,
		static:   cfg.Static,
	}
}

// ─── Host commands ───────────────────────────────────────────────────────────

// Surface rediscovers the host's fields after it reported its controls.
func (sm *SessionManager) Surface(ctx context.Context, _ []registry.Candidate) {
	if sm.static {
		slog.Debug("ignoring host surface, discovery reads a form file")
		return
	}
	fields, err := sm.registry.Discover(ctx)
	if err != nil {
		observe.Logger(ctx).Warn("discovery failed", slog.Any("err", err))
		return
	}
	observe.Logger(ctx).Info("fields discovered", slog.Int("count", len(fields)))
}

// Dictate starts a dictation into the field labelled label.
func (sm *SessionManager) Dictate(ctx context.Context, label string) error {
	return sm.controller.StartDictation(ctx, label)
}

// Stop ends whichever capture is active. Stopping while idle is a no-op.
func (sm *SessionManager) Stop(context.Context) error {
	switch sm.controller.Mode() {
	case session.ModeDictation:
		_, err := sm.controller.StopDictation()
		return ignoreNotActive(err)
	case session.ModeAmbient:
		return ignoreNotActive(sm.controller.StopAmbient())
	}
	return nil
}

// AmbientStart starts ambient capture.
func (sm *SessionManager) AmbientStart(ctx context.Context) error {
	if sm.ambient == nil {
		return ErrAmbientUnavailable
	}
	return sm.controller.StartAmbient(ctx)
}

// AmbientStop stops ambient capture.
func (sm *SessionManager) AmbientStop(context.Context) error {
	return sm.controller.StopAmbient()
}

// Audio forwards a PCM chunk to the recognizer. Chunks arriving while no
// capture is active are dropped.
func (sm *SessionManager) Audio(chunk []byte) error {
	return ignoreNotActive(sm.controller.SendAudio(chunk))
}

// Disconnected stops the active capture when the host goes away.
func (sm *SessionManager) Disconnected(ctx context.Context) {
	if err := sm.Stop(ctx); err != nil {
		observe.Logger(ctx).Warn("stopping capture after disconnect", slog.Any("err", err))
	}
}

// LastConfirmed returns the most recent dictation persisted by this manager.
func (sm *SessionManager) LastConfirmed() (store.Confirmation, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.last, sm.seen
}

// ─── Session callbacks ───────────────────────────────────────────────────────

// dictationFinished persists a bound, non-empty result and reports it to the
// host.
func (sm *SessionManager) dictationFinished(res session.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if res.Bound && res.Transcript != "" {
		c := store.Confirmation{Value: res.Transcript, Confidence: res.Confidence, Label: res.Label}
		sm.mu.Lock()
		sm.last, sm.seen = c, true
		sm.mu.Unlock()
		if sm.store != nil {
			if err := sm.store.Save(ctx, c); err != nil {
				slog.Warn("persisting dictation failed", "label", res.Label, "err", err)
			}
		}
	}
	slog.Info("dictation finished",
		"label", res.Label,
		"reason", res.Reason,
		"bound", res.Bound,
		"confidence", res.Confidence,
	)
	sm.notify(func(n Notifier) error {
		return n.SendFinal(ctx, res.Label, res.Transcript, res.Confidence)
	})
}

// ambientUpdated reports fields whose value the host rejected.
func (sm *SessionManager) ambientUpdated(res reconcile.Result) {
	if len(res.Failed) == 0 {
		return
	}
	sm.sendError(bridge.KindWrite, "Could not fill in: "+strings.Join(res.Failed, ", "))
}

func (sm *SessionManager) oracleFailed(err error) {
	sm.sendError(bridge.KindOracle, err.Error())
}

func (sm *SessionManager) recognitionFailed(err error) {
	msg := err.Error()
	var re *session.RecognitionError
	if errors.As(err, &re) {
		msg = re.Message()
	}
	sm.sendError(bridge.KindRecognition, msg)
}

func (sm *SessionManager) statusChanged(st session.Status) {
	slog.Debug("capture status", "mode", st.Mode, "state", st.State)
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	sm.notify(func(n Notifier) error {
		return n.SendStatus(ctx, st.State, st.Message)
	})
}

func (sm *SessionManager) sendError(kind, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	sm.notify(func(n Notifier) error { return n.SendError(ctx, kind, msg) })
}

// notify runs send against the notifier. A missing host is not an error.
func (sm *SessionManager) notify(send func(Notifier) error) {
	if sm.notifier == nil {
		return
	}
	if err := send(sm.notifier); err != nil && !errors.Is(err, bridge.ErrNoHost) {
		slog.Debug("host notification failed", "err", err)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func ignoreNotActive(err error) error {
	if errors.Is(err, session.ErrNotActive) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}
