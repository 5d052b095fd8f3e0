package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/formscribe/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that opens streams on the first healthy
// recognizer of a failover chain. Problems on the user's side (a denied or
// missing microphone) end the attempt instead of moving to the next
// recognizer.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns a chain whose preferred recognizer is primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Final == nil {
		cfg.Final = recognizerFinal
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// recognizerFinal reports errors that no other recognizer would avoid.
func recognizerFinal(err error) bool {
	if CallerGaveUp(err) {
		return true
	}
	var se *stt.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == stt.CodeNotAllowed || se.Code == stt.CodeAudioCapture
}

// AddFallback appends a recognizer to the chain.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Breakers returns the circuit breaker of every recognizer in failover order.
func (f *STTFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// StartStream implements [stt.Provider].
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
