package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MrWong99/formscribe/pkg/types"
)

// ErrMappingParse is wrapped by every [ParseMapping] failure.
var ErrMappingParse = errors.New("oracle: malformed mapping")

// scoredValue is the object form of a mapping value.
type scoredValue struct {
	Value      json.RawMessage `json:"value"`
	Confidence *float64        `json:"confidence"`
}

// ParseMapping decodes a model reply into a field mapping. Markdown code
// fences and text around the outermost JSON object are stripped first. Values
// may be strings, numbers, booleans, or {"value", "confidence"} objects;
// objects whose confidence is below minConfidence are dropped, as are nulls,
// empty keys and entries of any other shape. Only a reply that is not a JSON
// object at all fails.
func ParseMapping(raw string, minConfidence float64) (types.FieldUpdateMapping, error) {
	body := stripFences(raw)
	if body == "" {
		return types.FieldUpdateMapping{}, nil
	}

	var obj map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMappingParse, err)
	}
	if obj == nil {
		return types.FieldUpdateMapping{}, nil
	}

	out := make(types.FieldUpdateMapping, len(obj))
	for key, rawVal := range obj {
		if strings.TrimSpace(key) == "" {
			continue
		}
		val, ok, err := decodeValue(rawVal, minConfidence)
		if err != nil {
			slog.Debug("oracle: skipping mapping entry", "key", key, "err", err)
			continue
		}
		if ok {
			out[key] = val
		}
	}
	return out, nil
}

func decodeValue(raw json.RawMessage, minConfidence float64) (string, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var sv scoredValue
		if err := json.Unmarshal(trimmed, &sv); err != nil {
			return "", false, err
		}
		if sv.Confidence != nil && *sv.Confidence < minConfidence {
			return "", false, nil
		}
		if len(sv.Value) == 0 {
			return "", false, nil
		}
		return scalar(sv.Value)
	}
	return scalar(trimmed)
}

func scalar(raw json.RawMessage) (string, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false, err
	}
	switch t := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return t, true, nil
	case json.Number:
		return t.String(), true, nil
	case bool:
		return strconv.FormatBool(t), true, nil
	}
	return "", false, fmt.Errorf("unsupported value %s", raw)
}

// stripFences removes a surrounding markdown code fence and any prose outside
// the outermost braces.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
