package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Formatter turns corrected spoken text into the canonical form for one field
// type. Formatters are pure and never see empty input.
type Formatter func(text string) string

var (
	reSpaceBeforePunct = regexp.MustCompile(`\s+([.,!?;:%)\]])`)
	reSpaceAfterOpen   = regexp.MustCompile(`([(\[])\s+`)
	reSpokenComma      = regexp.MustCompile(`(?i)\s*\bcomma\b`)
	reSpokenDotCom     = regexp.MustCompile(`(?i)\s*\bdot\s+com\b`)
	reNotPhone         = regexp.MustCompile(`[^0-9+\-]`)
	reNotNumber        = regexp.MustCompile(`[^0-9.]`)
)

// upperTokens are address tokens written in capitals.
var upperTokens = map[string]bool{
	"ne": true, "nw": true, "se": true, "sw": true, "po": true,
}

func formatText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	text = reSpokenDotCom.ReplaceAllString(text, ".com")
	text = reSpokenComma.ReplaceAllString(text, ",")
	text = reSpaceBeforePunct.ReplaceAllString(text, "$1")
	text = reSpaceAfterOpen.ReplaceAllString(text, "$1")
	return capitalize(strings.TrimSpace(text))
}

func formatName(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func formatAddress(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		if upperTokens[strings.ToLower(strings.TrimRight(w, ".,"))] {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func formatPhone(text string) string {
	var b strings.Builder
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		switch {
		case digitWords[tok] != "":
			b.WriteString(digitWords[tok])
		case tok == "plus":
			b.WriteByte('+')
		case tok == "dash" || tok == "hyphen":
			b.WriteByte('-')
		default:
			b.WriteString(tok)
		}
	}
	return reNotPhone.ReplaceAllString(b.String(), "")
}

func formatNumber(text string) string {
	if n, ok := DecodeNumber(text); ok {
		return strconv.FormatInt(n, 10)
	}
	var b strings.Builder
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		if d, ok := digitWords[tok]; ok {
			b.WriteString(d)
			continue
		}
		b.WriteString(tok)
	}
	return reNotNumber.ReplaceAllString(b.String(), "")
}

func formatURL(text string) string {
	toks := strings.Fields(strings.ToLower(text))
	for i, tok := range toks {
		switch tok {
		case "dot", "period":
			toks[i] = "."
		case "slash":
			toks[i] = "/"
		case "colon":
			toks[i] = ":"
		case "dash", "hyphen":
			toks[i] = "-"
		case "underscore":
			toks[i] = "_"
		}
	}
	for i, tok := range toks {
		next := ""
		if i+1 < len(toks) {
			next = toks[i+1]
		}
		switch {
		case i == 0 && (tok == "http" || tok == "https") && !strings.HasPrefix(next, ":"):
			toks[i] = tok + "://"
		case tok == "www" && next != "." && next != "":
			toks[i] = "www."
		}
	}
	return strings.Join(toks, "")
}

// emailFormatter returns the email strategy for the given provider names
// ("gmail", "yahoo", ...).
func emailFormatter(providers []string) Formatter {
	return func(text string) string {
		toks := strings.Fields(strings.ToLower(text))
		for i, tok := range toks {
			switch tok {
			case "at":
				toks[i] = "@"
			case "dot", "period":
				toks[i] = "."
			case "underscore":
				toks[i] = "_"
			case "dash", "hyphen":
				toks[i] = "-"
			}
		}
		addr := strings.Join(toks, "")

		at := strings.LastIndexByte(addr, '@')
		if at < 0 {
			for _, p := range providers {
				domain := p + ".com"
				if strings.HasSuffix(addr, domain) && len(addr) > len(domain) {
					return addr[:len(addr)-len(domain)] + "@" + domain
				}
			}
			return addr
		}
		host := addr[at+1:]
		for _, p := range providers {
			if host == p {
				return addr + ".com"
			}
		}
		return addr
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func titleWord(w string) string {
	return capitalize(strings.ToLower(w))
}
