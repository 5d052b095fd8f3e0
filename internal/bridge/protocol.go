package bridge

import "github.com/MrWong99/formscribe/internal/registry"

// Host → server message types.
const (
	TypeSurface          = "surface"
	TypeDictate          = "dictate"
	TypeStop             = "stop"
	TypeAmbientStart     = "ambient_start"
	TypeAmbientStop      = "ambient_stop"
	TypeTranscript       = "transcript"
	TypeRecognitionError = "recognition_error"
	TypeRecognitionEnd   = "recognition_end"
)

// Server → host message types.
const (
	TypeWrite  = "write"
	TypeFinal  = "final"
	TypeStatus = "status"
	TypeError  = "error"
)

// Error kinds sent in error messages.
const (
	KindProtocol    = "protocol"
	KindCommand     = "command"
	KindRecognition = "recognition"
	KindOracle      = "oracle"
	KindWrite       = "write"
)

// Inbound is a host → server text frame. Only the fields of its Type are
// set.
type Inbound struct {
	Type string `json:"type"`

	// surface
	Candidates []registry.Candidate `json:"candidates,omitempty"`

	// dictate
	Label string `json:"label,omitempty"`

	// transcript
	Text       string  `json:"text,omitempty"`
	IsFinal    bool    `json:"is_final,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Index      int     `json:"index,omitempty"`

	// recognition_error
	Code string `json:"code,omitempty"`
}

// Outbound is a server → host text frame.
type Outbound struct {
	Type string `json:"type"`

	// write, final
	Label string `json:"label,omitempty"`

	// write
	Ref     string `json:"ref,omitempty"`
	Value   string `json:"value,omitempty"`
	Checked *bool  `json:"checked,omitempty"`

	// final
	Transcript string  `json:"transcript,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// status
	State string `json:"state,omitempty"`

	// status, error
	Message string `json:"message,omitempty"`

	// error
	Kind string `json:"kind,omitempty"`
}
