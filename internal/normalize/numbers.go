package normalize

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

var numberWords = map[string]int64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	"hundred":  100,
	"thousand": 1_000,
	"million":  1_000_000,
	"billion":  1_000_000_000,
}

// digitWords maps single spoken digits to numerals, for formats that are read
// out digit by digit (phone numbers, codes).
var digitWords = map[string]string{
	"zero": "0", "oh": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
}

// numberTokens splits text on whitespace and hyphens ("twenty-one") and strips
// surrounding punctuation from each token.
func numberTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, unicode.IsPunct)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// DecodeNumber composes the English number words in text into an integer.
// Tokens that are not number words are ignored. The second result is false
// when text contains no number word at all, or when the number does not fit
// in an int64.
//
//	DecodeNumber("two thousand five")    // 2005, true
//	DecodeNumber("one hundred twenty")   // 120, true
//	DecodeNumber("hello")                // 0, false
func DecodeNumber(text string) (int64, bool) {
	var total, acc int64
	found := false
	for _, tok := range numberTokens(text) {
		n, ok := numberWords[tok]
		if !ok {
			continue
		}
		found = true
		switch {
		case n >= 1_000:
			if acc == 0 {
				acc = 1
			}
			if acc > math.MaxInt64/n {
				return 0, false
			}
			part := acc * n
			if total > math.MaxInt64-part {
				return 0, false
			}
			total += part
			acc = 0
		case n == 100:
			if acc == 0 {
				acc = 1
			}
			if acc > math.MaxInt64/100 {
				return 0, false
			}
			acc *= 100
		default:
			if acc > math.MaxInt64-n {
				return 0, false
			}
			acc += n
		}
	}
	if !found || total > math.MaxInt64-acc {
		return 0, false
	}
	return total + acc, true
}

// SpokenNumber returns the decimal form of the number spoken in text, or text
// unchanged when it contains no number words.
func SpokenNumber(text string) string {
	n, ok := DecodeNumber(text)
	if !ok {
		return text
	}
	return strconv.FormatInt(n, 10)
}
