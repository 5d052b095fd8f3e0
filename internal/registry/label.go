package registry

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minLabelLen = 2
	maxLabelLen = 100
)

var (
	actionWordRe  = regexp.MustCompile(`(?i)\b(submit|reset|cancel|close|clear)\b`)
	clickPhraseRe = regexp.MustCompile(`(?i)^(click|tap|press|select)(\s+here)?$`)
	urlLabelRe    = regexp.MustCompile(`(?i)^(https?://|www\.)`)
)

// CleanLabel normalises raw label text: a leading required-marker asterisk
// and a trailing colon are removed, and control characters and runs of
// whitespace collapse to single spaces.
func CleanLabel(raw string) string {
	s := strings.TrimPrefix(raw, "*")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "：")
	return strings.TrimSpace(s)
}

// ValidLabel reports whether cleaned label text can name a field.
func ValidLabel(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < minLabelLen || n > maxLabelLen {
		return false
	}
	if allRunes(s, unicode.IsDigit) {
		return false
	}
	if allRunes(s, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }) {
		return false
	}
	if strings.ContainsAny(s, "<>{}[]") {
		return false
	}
	return !actionWordRe.MatchString(s) &&
		!clickPhraseRe.MatchString(s) &&
		!urlLabelRe.MatchString(s)
}

func allRunes(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

// chooseLabel returns the first signal, in provenance priority order, whose
// text survives cleaning and validation.
func chooseLabel(signals []Signal) (string, Provenance, bool) {
	best := ProvenanceUnknown
	label := ""
	for _, sig := range signals {
		if sig.Provenance <= ProvenanceUnknown || sig.Provenance > ProvenancePlaceholder {
			continue
		}
		if best != ProvenanceUnknown && sig.Provenance >= best {
			continue
		}
		text := CleanLabel(sig.Text)
		if !ValidLabel(text) {
			continue
		}
		best, label = sig.Provenance, text
	}
	return label, best, best != ProvenanceUnknown
}
