package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nidhogg/engram/memory"
)

// FileBackend persists snapshots as a single JSON document on disk. Saves
// go through a temp file and rename so a crash mid-write never leaves a
// truncated snapshot behind.
type FileBackend struct {
	path string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates the parent directory if needed.
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileBackend{path: path}, nil
}

func (b *FileBackend) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w: %w", b.path, memory.ErrStorage, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w: %w", b.path, memory.ErrSerialization, err)
	}
	if err := checkVersion(snap.Version); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (b *FileBackend) Save(_ context.Context, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w: %w", memory.ErrSerialization, err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w: %w", tmp, memory.ErrStorage, err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("commit snapshot %s: %w: %w", b.path, memory.ErrStorage, err)
	}
	return nil
}

func (b *FileBackend) Close() error {
	return nil
}
