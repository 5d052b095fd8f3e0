package registry

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/MrWong99/formscribe/pkg/types"
)

// Provenance identifies where a field's label text came from. Lower values
// win when several signals are present for one control.
type Provenance int

const (
	ProvenanceUnknown Provenance = iota
	ProvenanceWrappingLabel
	ProvenanceLabelFor
	ProvenanceAriaLabel
	ProvenanceAriaLabelledBy
	ProvenanceSibling
	ProvenanceLegend
	ProvenancePlaceholder
)

// Confidence returns the confidence assigned to labels of this provenance.
func (p Provenance) Confidence() float64 {
	switch p {
	case ProvenanceWrappingLabel, ProvenanceLabelFor, ProvenanceAriaLabel, ProvenanceAriaLabelledBy:
		return 1.0
	case ProvenanceLegend:
		return 0.9
	case ProvenanceSibling:
		return 0.7
	case ProvenancePlaceholder:
		return 0.5
	}
	return 0
}

// String implements fmt.Stringer.
func (p Provenance) String() string {
	switch p {
	case ProvenanceWrappingLabel:
		return "wrapping-label"
	case ProvenanceLabelFor:
		return "label-for"
	case ProvenanceAriaLabel:
		return "aria-label"
	case ProvenanceAriaLabelledBy:
		return "aria-labelledby"
	case ProvenanceSibling:
		return "sibling"
	case ProvenanceLegend:
		return "legend"
	case ProvenancePlaceholder:
		return "placeholder"
	}
	return "unknown"
}

// Control is the kind of input element behind a field.
type Control string

const (
	ControlText     Control = "text"
	ControlTextarea Control = "textarea"
	ControlSelect   Control = "select"
	ControlCheckbox Control = "checkbox"
	ControlRadio    Control = "radio"
)

// Toggle reports whether the control holds a checked state instead of text.
func (c Control) Toggle() bool {
	return c == ControlCheckbox || c == ControlRadio
}

// Signal is one piece of label text found for a candidate control.
type Signal struct {
	Provenance Provenance `json:"provenance"`
	Text       string     `json:"text"`
}

// Candidate is a raw input element reported by a [Surface]. Signals may be in
// any order; discovery evaluates them by provenance priority.
type Candidate struct {
	// Ref is an opaque handle the surface uses to locate the element again.
	Ref string `json:"ref"`

	Control     Control  `json:"control"`
	NativeType  string   `json:"native_type,omitempty"`
	Name        string   `json:"name,omitempty"`
	ID          string   `json:"id,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Visible     bool     `json:"visible"`
	Value       string   `json:"value,omitempty"`
	Checked     bool     `json:"checked,omitempty"`
	Signals     []Signal `json:"signals"`
}

// Field is a discovered, labelled input element.
type Field struct {
	Label      string
	Type       types.FieldType
	Value      string
	Confidence float64
	Position   int
	Ref        string
	Provenance Provenance
	Control    Control
	Checked    bool
}

// Surface supplies the raw candidate elements of a host document.
type Surface interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// Writer pushes a value into the host element behind a field. It reports
// whether the element accepted the value.
type Writer interface {
	Write(ctx context.Context, f Field, value string) bool
}

var (
	checkedNegatives = map[string]bool{
		"uncheck": true, "unchecked": true, "no": true, "false": true,
		"off": true, "disable": true, "disabled": true,
	}
	checkedPositives = map[string]bool{
		"check": true, "checked": true, "yes": true, "true": true,
		"on": true, "enable": true, "enabled": true,
	}
)

// CheckedCommand reports the state named by a command word in value. Negative
// words are looked for before positive ones so that "uncheck" is never read as
// "check". ok is false when value contains no command word.
func CheckedCommand(value string) (checked, ok bool) {
	tokens := strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, t := range tokens {
		if checkedNegatives[t] {
			return false, true
		}
	}
	for _, t := range tokens {
		if checkedPositives[t] {
			return true, true
		}
	}
	return false, false
}

// CheckedState resolves value against the current checked state: a command
// word sets the state it names, anything else toggles.
func CheckedState(value string, current bool) bool {
	if checked, ok := CheckedCommand(value); ok {
		return checked
	}
	return !current
}

// checkedValue renders a checked state the way [Registry.Snapshot] reports it.
func checkedValue(checked bool) string {
	return strconv.FormatBool(checked)
}
