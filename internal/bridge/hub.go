// Package bridge connects formscribe to the host page that owns the form.
//
// The host speaks JSON text frames over a single websocket at /ws. It
// reports the form's controls, issues capture commands, and relays its own
// speech recognizer's results; binary frames carry PCM audio for
// server-side recognizers. The server answers with field writes, dictation
// results, status updates and errors.
//
// A [Hub] is at once the discovery surface, the field writer and the
// host-side speech recognizer. One host connection is active at a time; a
// new connection replaces the old one.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/formscribe/internal/observe"
	"github.com/MrWong99/formscribe/internal/registry"
	"github.com/MrWong99/formscribe/pkg/provider/stt"
	"github.com/MrWong99/formscribe/pkg/types"
)

// ErrNoHost is returned when an operation needs a connected host and none
// is connected.
var ErrNoHost = errors.New("bridge: no host connected")

var errUnknownType = errors.New("bridge: unknown message type")

const (
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

// Handler receives the host's commands. Errors returned from a command are
// reported to the host as error messages.
type Handler interface {
	// Surface is called after the host reported its form controls.
	Surface(ctx context.Context, cands []registry.Candidate)

	Dictate(ctx context.Context, label string) error
	Stop(ctx context.Context) error
	AmbientStart(ctx context.Context) error
	AmbientStop(ctx context.Context) error

	// Audio receives a binary frame.
	Audio(chunk []byte) error

	// Disconnected is called when the active host goes away.
	Disconnected(ctx context.Context)
}

// Option configures a [Hub].
type Option func(*Hub)

// WithOriginPatterns sets the host origins accepted besides same-origin
// requests.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// Hub owns the host connection.
type Hub struct {
	origins []string

	mu      sync.Mutex
	handler Handler
	conn    *websocket.Conn
	connID  uint64
	cands   []registry.Candidate
	rec     *hostSession
}

var (
	_ registry.Surface = (*Hub)(nil)
	_ registry.Writer  = (*Hub)(nil)
	_ stt.Provider     = (*Hub)(nil)
	_ http.Handler     = (*Hub)(nil)
)

// New returns a hub with no host connected.
func New(opts ...Option) *Hub {
	h := &Hub{}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetHandler sets the receiver of host commands. It must be called before
// the hub serves connections.
func (h *Hub) SetHandler(hd Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = hd
}

// Connected reports whether a host is connected.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// ServeHTTP upgrades the request and serves the host until it disconnects
// or is replaced.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("host upgrade failed", slog.Any("err", err))
		return
	}
	conn.SetReadLimit(readLimit)

	id, old := h.attach(conn)
	if old != nil {
		go old.Close(websocket.StatusGoingAway, "replaced by a new host connection")
	}
	ctx := r.Context()
	log := observe.Logger(ctx).With(slog.Uint64("conn", id))
	log.Info("host connected", slog.String("remote", r.RemoteAddr))

	err = h.readLoop(ctx, conn)
	if s := websocket.CloseStatus(err); s != websocket.StatusNormalClosure && s != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
		log.Debug("host read ended", slog.Any("err", err))
	}

	if h.detach(id) {
		log.Info("host disconnected")
		if hd := h.getHandler(); hd != nil {
			hd.Disconnected(observe.Detach(ctx))
		}
		h.endRecognition(nil)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) attach(conn *websocket.Conn) (uint64, *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.conn
	h.conn = conn
	h.connID++
	return h.connID, old
}

// detach clears conn id if it is still the active one.
func (h *Hub) detach(id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connID != id || h.conn == nil {
		return false
	}
	h.conn = nil
	return true
}

func (h *Hub) getHandler() Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handler
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		hd := h.getHandler()
		if typ == websocket.MessageBinary {
			if hd != nil {
				_ = hd.Audio(data)
			}
			continue
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = h.sendTo(ctx, conn, Outbound{Type: TypeError, Kind: KindProtocol, Message: "malformed message"})
			continue
		}
		if err := h.dispatch(ctx, hd, msg); err != nil {
			kind := KindCommand
			if errors.Is(err, errUnknownType) {
				kind = KindProtocol
			}
			_ = h.sendTo(ctx, conn, Outbound{Type: TypeError, Kind: kind, Message: err.Error()})
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, hd Handler, msg Inbound) error {
	switch msg.Type {
	case TypeTranscript:
		h.deliver(types.Transcript{
			Text:       msg.Text,
			IsFinal:    msg.IsFinal,
			Confidence: msg.Confidence,
			Index:      msg.Index,
		})
		return nil
	case TypeRecognitionError:
		h.endRecognition(&stt.Error{Code: msg.Code})
		return nil
	case TypeRecognitionEnd:
		h.endRecognition(nil)
		return nil
	case TypeSurface:
		h.mu.Lock()
		h.cands = slices.Clone(msg.Candidates)
		h.mu.Unlock()
		if hd != nil {
			hd.Surface(ctx, msg.Candidates)
		}
		return nil
	}

	switch msg.Type {
	case TypeDictate, TypeStop, TypeAmbientStart, TypeAmbientStop:
		if hd == nil {
			return fmt.Errorf("bridge: %s: no handler", msg.Type)
		}
	default:
		return fmt.Errorf("%w %q", errUnknownType, msg.Type)
	}
	switch msg.Type {
	case TypeDictate:
		if msg.Label == "" {
			return errors.New("bridge: dictate: label is required")
		}
		return hd.Dictate(ctx, msg.Label)
	case TypeStop:
		return hd.Stop(ctx)
	case TypeAmbientStart:
		return hd.AmbientStart(ctx)
	case TypeAmbientStop:
	default:
		return hd.AmbientStop(ctx)
	}
}

// Candidates implements [registry.Surface] with the controls the host
// reported last.
func (h *Hub) Candidates(context.Context) ([]registry.Candidate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.cands), nil
}

// Write implements [registry.Writer]. It reports false when no host is
// connected or the frame cannot be sent.
func (h *Hub) Write(ctx context.Context, f registry.Field, value string) bool {
	msg := Outbound{Type: TypeWrite, Label: f.Label, Ref: f.Ref, Value: value}
	if f.Control.Toggle() {
		checked := registry.CheckedState(value, f.Checked)
		msg.Checked = &checked
		msg.Value = strconv.FormatBool(checked)
	}
	return h.Send(ctx, msg) == nil
}

// SendFinal reports a finished dictation.
func (h *Hub) SendFinal(ctx context.Context, label, transcript string, confidence float64) error {
	return h.Send(ctx, Outbound{Type: TypeFinal, Label: label, Transcript: transcript, Confidence: confidence})
}

// SendStatus reports a capture status change.
func (h *Hub) SendStatus(ctx context.Context, state, message string) error {
	return h.Send(ctx, Outbound{Type: TypeStatus, State: state, Message: message})
}

// SendError reports an error of the given kind.
func (h *Hub) SendError(ctx context.Context, kind, message string) error {
	return h.Send(ctx, Outbound{Type: TypeError, Kind: kind, Message: message})
}

// Send writes msg to the active host.
func (h *Hub) Send(ctx context.Context, msg Outbound) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return ErrNoHost
	}
	return h.sendTo(ctx, conn, msg)
}

func (h *Hub) sendTo(ctx context.Context, conn *websocket.Conn, msg Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		observe.Logger(ctx).Debug("host write failed", slog.String("type", msg.Type), slog.Any("err", err))
		return fmt.Errorf("bridge: send %s: %w", msg.Type, err)
	}
	return nil
}
