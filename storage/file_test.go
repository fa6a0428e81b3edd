package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/engram/memory"
)

func sampleSnapshot() *Snapshot {
	records := make(map[uuid.UUID]memory.Record)
	r := memory.NewRecord([]float32{0.1, 0.2, 0.3}, 0.6, 30.0, 0.7).
		WithMetadata("topic", "reactor")
	r.Reinforce(0.1)
	records[r.ID] = r.Copy()

	old := memory.NewRecord([]float32{1, 0, 0}, -0.8, 25.0, 0.4)
	old.Timestamp = time.Now().AddDate(0, 0, -100)
	records[old.ID] = old.Copy()

	profile := memory.DefaultProfile()
	profile.Rho = 0.2
	state := memory.DefaultState()
	state.Fatigue = 0.3

	return NewSnapshot(records, profile, state)
}

func TestFileBackendRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap", "engram.json")
	b, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	defer b.Close()
	ctx := context.Background()

	want := sampleSnapshot()
	if err := b.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Version != FormatVersion {
		t.Errorf("expected version %d, got %d", FormatVersion, got.Version)
	}
	if len(got.Records) != len(want.Records) {
		t.Fatalf("expected %d records, got %d", len(want.Records), len(got.Records))
	}
	for id, w := range want.Records {
		g, ok := got.Records[id]
		if !ok {
			t.Fatalf("record %s missing after roundtrip", id)
		}
		if g.Emotion != w.Emotion || g.MemoryStrength != w.MemoryStrength {
			t.Errorf("record %s fields drifted: %+v vs %+v", id, g, w)
		}
		if len(g.SemanticVector) != len(w.SemanticVector) {
			t.Errorf("record %s vector length drifted", id)
		}
	}
	if got.Profile.Rho != 0.2 {
		t.Errorf("expected profile rho 0.2, got %v", got.Profile.Rho)
	}
	if got.State.Fatigue != 0.3 {
		t.Errorf("expected state fatigue 0.3, got %v", got.State.Fatigue)
	}
}

func TestFileBackendAbsentFile(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "never-written.json"))
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}

	snap, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Records) != 0 {
		t.Errorf("expected empty records, got %d", len(snap.Records))
	}
	if snap.Profile != memory.DefaultProfile() {
		t.Errorf("expected default profile, got %+v", snap.Profile)
	}
	if snap.State != memory.DefaultState() {
		t.Errorf("expected default state, got %+v", snap.State)
	}
}

func TestFileBackendVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "records": {}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	b, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	if _, err := b.Load(context.Background()); !errors.Is(err, memory.ErrSerialization) {
		t.Errorf("expected ErrSerialization for version 99, got %v", err)
	}
}

func TestFileBackendErrorKinds(t *testing.T) {
	ctx := context.Background()

	// Corrupted snapshot is a serialization failure, not a storage one.
	path := filepath.Join(t.TempDir(), "engram.json")
	if err := os.WriteFile(path, []byte(`{"version": 1, "records":`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	if _, err := b.Load(ctx); !errors.Is(err, memory.ErrSerialization) {
		t.Errorf("expected ErrSerialization for truncated JSON, got %v", err)
	}
	if _, err := b.Load(ctx); errors.Is(err, memory.ErrStorage) {
		t.Errorf("decode failure misclassified as ErrStorage: %v", err)
	}

	// An unreadable path is a storage failure.
	dir := t.TempDir()
	db, err := NewFileBackend(filepath.Join(dir, "sub", "engram.json"))
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	db.path = filepath.Join(dir, "sub")
	if _, err := db.Load(ctx); !errors.Is(err, memory.ErrStorage) {
		t.Errorf("expected ErrStorage for directory path, got %v", err)
	}
}

func TestFileBackendOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.json")
	b, _ := NewFileBackend(path)
	ctx := context.Background()

	if err := b.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second := NewSnapshot(nil, memory.DefaultProfile(), memory.DefaultState())
	if err := b.Save(ctx, second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Records) != 0 {
		t.Errorf("expected second save to win, got %d records", len(got.Records))
	}
}
