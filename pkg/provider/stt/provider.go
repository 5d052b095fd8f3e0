// Package stt defines the Provider interface for speech recognition backends.
//
// A recognizer wraps a streaming transcription service (Deepgram, or a
// browser-side recognizer relayed over the host bridge) and exposes a uniform
// streaming interface. Once opened, a session accepts raw PCM audio frames and
// emits two streams of Transcript values: low-latency partials and
// authoritative finals.
//
// A session ends in one of two ways. Either the caller invokes Close (an
// explicit stop), or the recognizer closes both channels on its own
// (end-of-stream). Err tells the caller whether the end-of-stream was caused by
// a recognition error.
package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/formscribe/pkg/types"
)

// Recognition error codes. They follow the vocabulary used by browser speech
// recognizers so that host-relayed and server-side recognizers report errors
// identically.
const (
	CodeNoSpeech     = "no-speech"
	CodeAborted      = "aborted"
	CodeNetwork      = "network"
	CodeAudioCapture = "audio-capture"
	CodeNotAllowed   = "not-allowed"
)

// ErrSessionClosed is returned by SendAudio after the session has ended.
var ErrSessionClosed = errors.New("stt: session is closed")

// Error is a recognition failure reported by a session. Code is one of the
// Code* constants, or a provider-specific code.
type Error struct {
	Code string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stt: recognition error %q: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("stt: recognition error %q", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error { return e.Err }

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Zero uses the provider default.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string uses the provider default.
	Language string

	// Keywords is a list of vocabulary hints that increase recognition
	// probability for uncommon words such as field labels.
	Keywords []types.KeywordBoost
}

// SessionHandle represents an open streaming recognition session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the recognizer.
	// Recognizers that capture audio themselves ignore it. Calling SendAudio
	// after the session ended returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel of interim transcripts.
	// The channel is closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals returns a read-only channel of final transcripts.
	// The channel is closed when the session ends.
	Finals() <-chan types.Transcript

	// Err returns the recognition error that ended the session, or nil when
	// the session ended normally or was closed by the caller. It is only
	// meaningful after both channels are closed.
	Err() error

	// Close terminates the session and releases all associated resources.
	// After Close returns, the Partials and Finals channels will be closed.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any speech recognition backend.
type Provider interface {
	// StartStream opens a new streaming recognition session. The caller owns
	// the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
