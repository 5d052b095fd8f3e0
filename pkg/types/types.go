// Package types defines the shared types used across formscribe packages.
//
// Each package owns its domain types. Only the structures that cross package
// boundaries (speech results, field types, oracle output, LLM messages) live
// here to avoid circular imports.
package types

import "time"

// FieldType is the semantic type inferred for a form field. It selects the
// normalisation strategy applied to dictated text.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldEmail   FieldType = "email"
	FieldPhone   FieldType = "phone"
	FieldName    FieldType = "name"
	FieldAddress FieldType = "address"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldURL     FieldType = "url"
)

// FieldTypes lists every supported FieldType in classifier priority order,
// followed by the text fallback.
var FieldTypes = []FieldType{
	FieldEmail, FieldPhone, FieldName, FieldAddress,
	FieldNumber, FieldDate, FieldURL, FieldText,
}

// IsValid reports whether t is a known FieldType.
func (t FieldType) IsValid() bool {
	switch t {
	case FieldText, FieldEmail, FieldPhone, FieldName, FieldAddress, FieldNumber, FieldDate, FieldURL:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (t FieldType) String() string { return string(t) }

// Transcript represents a speech-to-text result from a recognizer.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// recognizer does not report confidence.
	Confidence float64

	// Index is the recognizer's result index. It increases monotonically within
	// one stream; interim results for the same utterance share an index.
	Index int

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration
}

// FieldUpdateMapping is the oracle's output: arbitrary field keys mapped to
// standardised values. Keys are not guaranteed to match registry labels.
type FieldUpdateMapping map[string]string

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the model can be constrained to emit a JSON object.
	SupportsJSONMode bool
}

// KeywordBoost represents a keyword to boost in speech recognition.
// Dictation boosts the words of the target field's label.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Diagnosis").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
