package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/formscribe/pkg/provider/stt"
	"github.com/MrWong99/formscribe/pkg/types"
)

// hostSession is a recognition stream fed by transcript messages from the
// host. The host runs the recognizer, so audio sent to it is discarded.
type hostSession struct {
	partials chan types.Transcript
	finals   chan types.Transcript

	mu     sync.Mutex
	closed bool
	err    error
}

var _ stt.SessionHandle = (*hostSession)(nil)

func newHostSession() *hostSession {
	return &hostSession{
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
	}
}

func (s *hostSession) SendAudio([]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	return nil
}

func (s *hostSession) Partials() <-chan types.Transcript { return s.partials }
func (s *hostSession) Finals() <-chan types.Transcript   { return s.finals }

func (s *hostSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *hostSession) Close() error {
	s.end(nil)
	return nil
}

// deliver queues t. A full buffer drops the chunk rather than stalling the
// connection's read loop.
func (s *hostSession) deliver(t types.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	out := s.partials
	if t.IsFinal {
		out = s.finals
	}
	select {
	case out <- t:
	default:
		slog.Warn("host transcript dropped, consumer too slow", "final", t.IsFinal)
	}
}

// end closes the stream, recording err as the reason.
func (s *hostSession) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.partials)
	close(s.finals)
}

// StartStream implements [stt.Provider]. It opens a stream that receives the
// connected host's transcript messages, replacing any stream still open.
// The host starts its recognizer when it is told the capture is listening.
func (h *Hub) StartStream(_ context.Context, _ stt.StreamConfig) (stt.SessionHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return nil, ErrNoHost
	}
	if h.rec != nil {
		h.rec.end(nil)
	}
	h.rec = newHostSession()
	return h.rec, nil
}

func (h *Hub) deliver(t types.Transcript) {
	h.mu.Lock()
	rec := h.rec
	h.mu.Unlock()
	if rec != nil {
		rec.deliver(t)
	}
}

// endRecognition ends the open host stream. A nil err is a normal
// end-of-stream.
func (h *Hub) endRecognition(err error) {
	h.mu.Lock()
	rec := h.rec
	h.rec = nil
	h.mu.Unlock()
	if rec != nil {
		rec.end(err)
	}
}
