package session

import (
	"errors"
	"fmt"

	"github.com/MrWong99/formscribe/pkg/provider/stt"
)

var (
	// ErrSessionActive is returned by Start when the session is not idle.
	ErrSessionActive = errors.New("session: already active")

	// ErrNotActive is returned when stopping a session that is not running.
	ErrNotActive = errors.New("session: not active")

	// ErrRecognizerBusy is returned when a capture is requested while another
	// capture holds the recognizer.
	ErrRecognizerBusy = errors.New("session: recognizer busy")

	// ErrRecognitionUnavailable is returned when no recognizer is configured
	// or the recognizer cannot be started.
	ErrRecognitionUnavailable = errors.New("session: speech recognition unavailable")
)

// ErrorKind tells whether a recognition error ends the session.
type ErrorKind int

const (
	// KindTransient errors are swallowed and the recognizer is restarted.
	KindTransient ErrorKind = iota

	// KindFatal errors stop the session and are reported.
	KindFatal
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "fatal"
}

// RecognitionError is a classified recognizer failure.
type RecognitionError struct {
	Code string
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: %s recognition error %q: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("session: %s recognition error %q", e.Kind, e.Code)
}

// Unwrap returns the recognizer's error.
func (e *RecognitionError) Unwrap() error { return e.Err }

// Message returns a short human-readable description for status displays.
func (e *RecognitionError) Message() string {
	switch e.Code {
	case stt.CodeNoSpeech:
		return "No speech detected."
	case stt.CodeAudioCapture:
		return "Microphone not found."
	case stt.CodeNotAllowed:
		return "Microphone access denied."
	case stt.CodeNetwork:
		return "Network error."
	case stt.CodeAborted:
		return "Recording was aborted."
	}
	return "Speech recognition error."
}

// classifyRecognition maps a recognizer error onto the session error
// taxonomy. A network error only ends a dictation; ambient capture rides it
// out by restarting the recognizer.
func classifyRecognition(err error, mode Mode) *RecognitionError {
	code := stt.CodeNetwork
	var se *stt.Error
	if errors.As(err, &se) && se.Code != "" {
		code = se.Code
	}
	re := &RecognitionError{Code: code, Kind: KindFatal, Err: err}
	switch code {
	case stt.CodeNoSpeech, stt.CodeAborted:
		re.Kind = KindTransient
	case stt.CodeNetwork:
		if mode == ModeAmbient {
			re.Kind = KindTransient
		}
	}
	return re
}
