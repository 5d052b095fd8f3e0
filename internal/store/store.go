// Package store persists the last confirmed dictation result so that it
// survives a restart.
//
// The state is three fixed keys. [FileStore] keeps them in a YAML file on
// local disk; [PostgresStore] keeps them in a key/value table.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Keys under which a [Confirmation] is stored.
const (
	KeyTranscript = "v1_confirmedTranscript"
	KeyConfidence = "v1_transcriptConfidence"
	KeyLabel      = "v1_transcriptLabel"
)

// Keys lists every key in storage order.
var Keys = []string{KeyTranscript, KeyConfidence, KeyLabel}

// ErrCorrupt is returned by Load when stored values cannot be decoded.
var ErrCorrupt = errors.New("store: corrupt state")

// Confirmation is the last dictation result the user confirmed.
type Confirmation struct {
	Value      string
	Confidence float64
	Label      string
}

// Store saves and loads the last [Confirmation]. Implementations must be
// safe for concurrent use.
type Store interface {
	// Save replaces the stored confirmation.
	Save(ctx context.Context, c Confirmation) error

	// Load returns the stored confirmation. ok is false when nothing has
	// been saved yet.
	Load(ctx context.Context) (c Confirmation, ok bool, err error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// encode flattens c into its key/value form.
func encode(c Confirmation) map[string]string {
	return map[string]string{
		KeyTranscript: c.Value,
		KeyConfidence: strconv.FormatFloat(c.Confidence, 'f', -1, 64),
		KeyLabel:      c.Label,
	}
}

// decode rebuilds a confirmation from stored values. A missing transcript
// key means nothing was saved.
func decode(kv map[string]string) (Confirmation, bool, error) {
	value, ok := kv[KeyTranscript]
	if !ok {
		return Confirmation{}, false, nil
	}
	c := Confirmation{Value: value, Label: kv[KeyLabel]}
	if raw := kv[KeyConfidence]; raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Confirmation{}, false, fmt.Errorf("%w: %s: %w", ErrCorrupt, KeyConfidence, err)
		}
		c.Confidence = f
	}
	return c, true, nil
}
