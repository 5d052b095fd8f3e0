// Package normalize converts raw spoken text into canonical, field-type
// appropriate values.
//
// Normalisation runs in two stages. A table of whole-word lexical corrections
// first turns spoken punctuation and symbol names into literal characters
// ("period" → ".", "at the rate" → "@"). A per-type [Formatter], looked up in a
// table keyed by [types.FieldType], then shapes the result (lower-cased email
// addresses, digit-only phone numbers, title-cased names, ...).
//
// A [Normalizer] holds no mutable state after construction and is safe for
// concurrent use.
package normalize

import (
	"strings"

	"github.com/MrWong99/formscribe/pkg/types"
)

// DefaultEmailProviders are the provider names that receive a ".com" suffix
// when spoken without a domain.
var DefaultEmailProviders = []string{"gmail", "yahoo", "hotmail", "outlook", "icloud", "aol", "protonmail"}

// Normalizer applies lexical corrections and per-type formatting.
type Normalizer struct {
	corrections []correction
	formatters  map[types.FieldType]Formatter
}

type options struct {
	extraCorrections map[string]string
	providers        []string
	overrides        map[types.FieldType]Formatter
}

// Option configures a [Normalizer].
type Option func(*options)

// WithCorrections adds spoken→written corrections applied after the built-in
// table.
func WithCorrections(c map[string]string) Option {
	return func(o *options) {
		o.extraCorrections = c
	}
}

// WithEmailProviders adds provider names to [DefaultEmailProviders].
func WithEmailProviders(names ...string) Option {
	return func(o *options) {
		for _, n := range names {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				o.providers = append(o.providers, n)
			}
		}
	}
}

// WithFormatter replaces the formatting strategy for ft.
func WithFormatter(ft types.FieldType, f Formatter) Option {
	return func(o *options) {
		if o.overrides == nil {
			o.overrides = make(map[types.FieldType]Formatter)
		}
		o.overrides[ft] = f
	}
}

// New builds a Normalizer with the built-in tables and the given options.
func New(opts ...Option) *Normalizer {
	o := options{providers: append([]string(nil), DefaultEmailProviders...)}
	for _, opt := range opts {
		opt(&o)
	}

	n := &Normalizer{
		corrections: compileCorrections(o.extraCorrections),
		formatters: map[types.FieldType]Formatter{
			types.FieldText:    formatText,
			types.FieldEmail:   emailFormatter(o.providers),
			types.FieldPhone:   formatPhone,
			types.FieldName:    formatName,
			types.FieldAddress: formatAddress,
			types.FieldNumber:  formatNumber,
			types.FieldDate:    formatText,
			types.FieldURL:     formatURL,
		},
	}
	for ft, f := range o.overrides {
		n.formatters[ft] = f
	}
	return n
}

// Normalize returns raw in the canonical form for ft. Unknown types are
// formatted as text. Empty or blank input yields "".
func (n *Normalizer) Normalize(raw string, ft types.FieldType) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	text := applyCorrections(raw, n.corrections)
	f, ok := n.formatters[ft]
	if !ok {
		f = n.formatters[types.FieldText]
	}
	return strings.TrimSpace(f(text))
}

// Correct applies only the lexical correction table.
func (n *Normalizer) Correct(raw string) string {
	return applyCorrections(raw, n.corrections)
}

var defaultNormalizer = New()

// Normalize formats raw for ft using the built-in tables.
func Normalize(raw string, ft types.FieldType) string {
	return defaultNormalizer.Normalize(raw, ft)
}
