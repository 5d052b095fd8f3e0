package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_LoadEmpty(t *testing.T) {
	t.Parallel()

	s := NewFileStore(filepath.Join(t.TempDir(), "state.yaml"))
	_, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("ok = true before any Save")
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.yaml")
	s := NewFileStore(path)
	ctx := context.Background()

	want := Confirmation{Value: "ada@example.com", Confidence: 0.87, Label: "Email"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := NewFileStore(path).Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range Keys {
		if !strings.Contains(string(data), k) {
			t.Errorf("file missing key %s:\n%s", k, data)
		}
	}
}

func TestFileStore_SaveOverwritesAndKeepsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("other: kept\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path)
	ctx := context.Background()
	if err := s.Save(ctx, Confirmation{Value: "one", Confidence: 0.5, Label: "A"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, Confirmation{Value: "two", Confidence: 0.9, Label: "B"}); err != nil {
		t.Fatal(err)
	}
	got, _, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != "two" || got.Label != "B" {
		t.Errorf("Load = %+v", got)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "other: kept") {
		t.Errorf("unrelated key dropped:\n%s", data)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not yaml map":   "- a\n- b\n",
		"bad confidence": KeyTranscript + ": x\n" + KeyConfidence + ": high\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "state.yaml")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, _, err := NewFileStore(path).Load(context.Background())
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Load error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestFileStore_Ping(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := NewFileStore(filepath.Join(dir, "state.yaml")).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := NewFileStore(filepath.Join(dir, "missing", "state.yaml")).Ping(context.Background()); err == nil {
		t.Error("Ping succeeded for a missing directory")
	}
}
