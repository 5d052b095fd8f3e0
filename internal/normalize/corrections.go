package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// builtinCorrections maps spoken phrases to their written form. Order matters:
// a phrase must come before any shorter phrase it contains.
var builtinCorrections = [][2]string{
	// Email provider names recognizers tend to split.
	{"g mail", "gmail"},
	{"gee mail", "gmail"},
	{"hot mail", "hotmail"},
	{"yahoo mail", "yahoo"},
	{"out look", "outlook"},
	{"i cloud", "icloud"},
	{"at the rate of", "@"},
	{"at the rate", "@"},

	// Punctuation.
	{"full stop", "."},
	{"period", "."},
	{"question mark", "?"},
	{"exclamation mark", "!"},
	{"exclamation point", "!"},
	{"semicolon", ";"},
	{"colon", ":"},
	{"apostrophe", "'"},
	{"quotation mark", `"`},
	{"quote", `"`},
	{"open parenthesis", "("},
	{"close parenthesis", ")"},
	{"open bracket", "["},
	{"close bracket", "]"},

	// Symbols.
	{"hashtag", "#"},
	{"hash", "#"},
	{"pound sign", "#"},
	{"pound", "#"},
	{"dollar sign", "$"},
	{"dollar", "$"},
	{"percent", "%"},
	{"ampersand", "&"},
	{"and sign", "&"},
	{"asterisk", "*"},
	{"star", "*"},
}

type correction struct {
	re      *regexp.Regexp
	written string
}

// compileCorrection builds a whole-word, case-insensitive matcher for spoken.
// Internal spaces match any run of whitespace.
func compileCorrection(spoken, written string) correction {
	words := strings.Fields(spoken)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return correction{
		re:      regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`),
		written: written,
	}
}

// compileCorrections compiles the built-in table followed by extra. Extra
// entries are sorted longest phrase first so that overlapping phrases resolve
// the same way on every run.
func compileCorrections(extra map[string]string) []correction {
	out := make([]correction, 0, len(builtinCorrections)+len(extra))
	for _, c := range builtinCorrections {
		out = append(out, compileCorrection(c[0], c[1]))
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		out = append(out, compileCorrection(k, extra[k]))
	}
	return out
}

func applyCorrections(text string, table []correction) string {
	for _, c := range table {
		text = c.re.ReplaceAllLiteralString(text, c.written)
	}
	return text
}
