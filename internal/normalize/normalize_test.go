package normalize

import (
	"strings"
	"testing"

	"github.com/MrWong99/formscribe/pkg/types"
)

func TestNormalize_EmptyInput(t *testing.T) {
	t.Parallel()
	for _, ft := range types.FieldTypes {
		for _, in := range []string{"", "   ", "\n\t"} {
			if got := Normalize(in, ft); got != "" {
				t.Errorf("Normalize(%q, %s) = %q, want empty", in, ft, got)
			}
		}
	}
}

func TestDecodeNumber(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"twenty one", 21, true},
		{"one hundred twenty", 120, true},
		{"two thousand five", 2005, true},
		{"twenty-one", 21, true},
		{"one hundred and five", 105, true},
		{"three million two hundred thousand", 3_200_000, true},
		{"Ninety Nine.", 99, true},
		{"zero", 0, true},
		{"hello", 0, false},
		{"", 0, false},
		{"nine hundred billion", 900_000_000_000, true},
		{strings.Repeat("hundred ", 10), 0, false},
		{"one hundred hundred hundred hundred hundred hundred hundred hundred hundred billion", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := DecodeNumber(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("DecodeNumber(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSpokenNumber_LeavesNonNumericTextUnchanged(t *testing.T) {
	t.Parallel()
	if got := SpokenNumber("hello"); got != "hello" {
		t.Errorf("SpokenNumber(hello) = %q, want unchanged", got)
	}
	if got := SpokenNumber("twenty one"); got != "21" {
		t.Errorf("SpokenNumber(twenty one) = %q, want 21", got)
	}
}

func TestNormalize_PerType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		ft   types.FieldType
		want string
	}{
		// email
		{"email at the rate", "john dot smith at the rate gmail", types.FieldEmail, "john.smith@gmail.com"},
		{"email full domain", "jane at yahoo dot com", types.FieldEmail, "jane@yahoo.com"},
		{"email split provider", "Bob underscore smith at hot mail", types.FieldEmail, "bob_smith@hotmail.com"},
		{"email missing at", "alice gmail dot com", types.FieldEmail, "alice@gmail.com"},
		{"email unknown host kept", "ops at example dot org", types.FieldEmail, "ops@example.org"},

		// phone
		{"phone digits", "five five five one two three four", types.FieldPhone, "5551234"},
		{"phone plus dash", "plus one five five five dash one two three four", types.FieldPhone, "+1555-1234"},
		{"phone literal", "(555) 123 4567", types.FieldPhone, "5551234567"},
		{"phone oh", "oh seven seven", types.FieldPhone, "077"},

		// name
		{"name title case", "JOHN o'brien", types.FieldName, "John O'brien"},
		{"name spaces", "mary   ann", types.FieldName, "Mary Ann"},

		// number
		{"number decoded", "forty two", types.FieldNumber, "42"},
		{"number literal", "Age 42", types.FieldNumber, "42"},
		{"number decimal", "3.5 kg", types.FieldNumber, "3.5"},

		// url
		{"url scheme", "https example dot com slash about", types.FieldURL, "https://example.com/about"},
		{"url www", "www google dot com", types.FieldURL, "www.google.com"},
		{"url spoken colon", "http colon slash slash test dot org", types.FieldURL, "http://test.org"},

		// address
		{"address", "123 main st nw", types.FieldAddress, "123 Main St NW"},
		{"address po box", "po box forty", types.FieldAddress, "PO Box Forty"},

		// text
		{"text punctuation", "hello period how are you question mark", types.FieldText, "Hello. how are you?"},
		{"text comma dot com", "visit example dot com comma please", types.FieldText, "Visit example.com, please"},
		{"text parenthesis", "call me open parenthesis maybe close parenthesis", types.FieldText, "Call me (maybe)"},
		{"text whitespace", "  patient   is stable ", types.FieldText, "Patient is stable"},

		// date falls back to text formatting
		{"date", "march fifth", types.FieldDate, "March fifth"},

		// unknown types behave like text
		{"unknown type", "hi there", types.FieldType("bogus"), "Hi there"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.in, tt.ft); got != tt.want {
				t.Errorf("Normalize(%q, %s) = %q, want %q", tt.in, tt.ft, got, tt.want)
			}
		})
	}
}

func TestCorrect_WholeWordCaseInsensitive(t *testing.T) {
	t.Parallel()
	n := New()
	tests := []struct {
		in, want string
	}{
		{"PERIOD", "."},
		{"dollar sign", "$"},
		{"starfish", "starfish"},
		{"semicolon", ";"},
		{"g   mail", "gmail"},
		{"fifty percent", "fifty %"},
	}
	for _, tt := range tests {
		if got := n.Correct(tt.in); got != tt.want {
			t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_ExtraCorrectionsAndProviders(t *testing.T) {
	t.Parallel()
	n := New(
		WithCorrections(map[string]string{"b p": "BP", "": "ignored"}),
		WithEmailProviders(" Clinic "),
	)

	if got := n.Normalize("b p one twenty", types.FieldText); got != "BP one twenty" {
		t.Errorf("extra correction: got %q", got)
	}
	if got := n.Normalize("doc at clinic", types.FieldEmail); got != "doc@clinic.com" {
		t.Errorf("extra provider: got %q", got)
	}
	// Built-in providers stay active.
	if got := n.Normalize("doc at gmail", types.FieldEmail); got != "doc@gmail.com" {
		t.Errorf("default provider: got %q", got)
	}
}

func TestNew_WithFormatterOverride(t *testing.T) {
	t.Parallel()
	n := New(WithFormatter(types.FieldDate, strings.ToUpper))
	if got := n.Normalize("march fifth", types.FieldDate); got != "MARCH FIFTH" {
		t.Errorf("override: got %q", got)
	}
	if got := n.Normalize("march fifth", types.FieldText); got != "March fifth" {
		t.Errorf("text formatter changed: got %q", got)
	}
}
