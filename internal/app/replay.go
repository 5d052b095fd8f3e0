package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/formscribe/pkg/types"
)

// ErrAmbientUnavailable is returned when ambient capture is requested
// without a mapping oracle.
var ErrAmbientUnavailable = errors.New("app: ambient mode needs an llm provider")

// Replay runs an ambient session over r without a recognizer: every
// non-blank line is fed to the session as one final chunk, in order. Replay
// discovers the surface first, waits for every oracle call to reconcile, and
// returns the registry snapshot.
func (a *App) Replay(ctx context.Context, r io.Reader) (map[string]string, error) {
	amb := a.sessions.ambient
	if amb == nil {
		return nil, ErrAmbientUnavailable
	}
	if _, err := a.registry.Discover(ctx); err != nil {
		return nil, fmt.Errorf("app: replay: discover: %w", err)
	}
	slog.Info("replay started", "fields", a.registry.Len())

	if err := amb.Start(); err != nil {
		return nil, fmt.Errorf("app: replay: %w", err)
	}

	sc := bufio.NewScanner(r)
	index := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			amb.Stop()
			amb.Wait()
			return nil, err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		amb.HandleTranscript(ctx, types.Transcript{Text: line, IsFinal: true, Confidence: 1, Index: index})
		index++
	}
	amb.Stop()
	amb.Wait()
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("app: replay: read: %w", err)
	}

	slog.Info("replay finished", "chunks", index)
	return a.registry.Snapshot(), nil
}
