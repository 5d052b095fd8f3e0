// Package classify infers the semantic [types.FieldType] of a form field from
// its label text and element metadata.
//
// Classification is a fixed, ordered list of predicates. Each predicate checks
// the element's native input type first and then its regular expressions over
// the label, name, id and placeholder. The first predicate that matches wins,
// so the order below is part of the contract.
package classify

import (
	"regexp"
	"strings"

	"github.com/MrWong99/formscribe/pkg/types"
)

// Hints carries element metadata that accompanies a label.
type Hints struct {
	// NativeType is the element's declared input type ("email", "tel", ...).
	NativeType  string
	Name        string
	ID          string
	Placeholder string
}

type predicate struct {
	fieldType   types.FieldType
	nativeTypes []string
	label       *regexp.Regexp
	name        *regexp.Regexp
	id          *regexp.Regexp
	placeholder *regexp.Regexp
}

func (p predicate) match(label string, h Hints) bool {
	native := strings.ToLower(strings.TrimSpace(h.NativeType))
	for _, nt := range p.nativeTypes {
		if native == nt {
			return true
		}
	}
	return matches(p.label, label) ||
		matches(p.name, h.Name) ||
		matches(p.id, h.ID) ||
		matches(p.placeholder, h.Placeholder)
}

func matches(re *regexp.Regexp, s string) bool {
	return re != nil && s != "" && re.MatchString(s)
}

// predicates is evaluated top to bottom.
var predicates = []predicate{
	{
		fieldType:   types.FieldEmail,
		nativeTypes: []string{"email"},
		label:       regexp.MustCompile(`(?i)e-?mail|email address`),
		name:        regexp.MustCompile(`(?i)e-?mail`),
		id:          regexp.MustCompile(`(?i)e-?mail`),
		placeholder: regexp.MustCompile(`(?i)e-?mail`),
	},
	{
		fieldType:   types.FieldPhone,
		nativeTypes: []string{"tel"},
		label:       regexp.MustCompile(`(?i)phone|mobile|telephone|cell`),
		name:        regexp.MustCompile(`(?i)phone|tel`),
		id:          regexp.MustCompile(`(?i)phone|tel`),
	},
	{
		fieldType: types.FieldName,
		label:     regexp.MustCompile(`(?i)\b(first|last|full|user)\s*name|name\b`),
		name:      regexp.MustCompile(`(?i)name`),
		id:        regexp.MustCompile(`(?i)name`),
	},
	{
		fieldType: types.FieldAddress,
		label:     regexp.MustCompile(`(?i)address|street|city|zip|postal`),
	},
	{
		fieldType:   types.FieldNumber,
		nativeTypes: []string{"number"},
		label:       regexp.MustCompile(`(?i)\b(age|quantity|amount|number|count)\b`),
	},
	{
		fieldType:   types.FieldDate,
		nativeTypes: []string{"date"},
		label:       regexp.MustCompile(`(?i)\b(date|birthday|dob)\b`),
	},
	{
		fieldType:   types.FieldURL,
		nativeTypes: []string{"url"},
		label:       regexp.MustCompile(`(?i)\b(website|url|link)\b`),
	},
}

// Classify returns the first field type whose predicate matches, or
// [types.FieldText] when none does.
func Classify(label string, hints Hints) types.FieldType {
	for _, p := range predicates {
		if p.match(label, hints) {
			return p.fieldType
		}
	}
	return types.FieldText
}
