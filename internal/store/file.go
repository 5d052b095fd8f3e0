package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps the confirmation in a YAML file. Writes go to a temporary
// file that is renamed into place.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by the file at path. The file is
// created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Save implements [Store].
func (s *FileStore) Save(_ context.Context, c Confirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kv, err := s.readLocked()
	if err != nil {
		return err
	}
	if kv == nil {
		kv = make(map[string]string, len(Keys))
	}
	for k, v := range encode(c) {
		kv[k] = v
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(kv); err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("store: save: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: save: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return nil
}

// Load implements [Store].
func (s *FileStore) Load(_ context.Context) (Confirmation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kv, err := s.readLocked()
	if err != nil {
		return Confirmation{}, false, err
	}
	return decode(kv)
}

// Ping reports whether the directory holding the file exists.
func (s *FileStore) Ping(context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store: ping: %s is not a directory", filepath.Dir(s.path))
	}
	return nil
}

func (s *FileStore) readLocked() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	var kv map[string]string
	if err := yaml.Unmarshal(data, &kv); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, s.path, err)
	}
	return kv, nil
}
