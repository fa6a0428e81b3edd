package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nidhogg/engram/memory"
)

func TestSQLiteRoundtrip(t *testing.T) {
	b, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
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
	if len(got.Records) != len(want.Records) {
		t.Fatalf("expected %d records, got %d", len(want.Records), len(got.Records))
	}
	for id, w := range want.Records {
		g, ok := got.Records[id]
		if !ok {
			t.Fatalf("record %s missing after roundtrip", id)
		}
		if g.Emotion != w.Emotion {
			t.Errorf("record %s emotion drifted: %v vs %v", id, g.Emotion, w.Emotion)
		}
		if g.RetrievalCount != w.RetrievalCount {
			t.Errorf("record %s retrieval count drifted: %d vs %d", id, g.RetrievalCount, w.RetrievalCount)
		}
		if len(g.RecallHistory) != len(w.RecallHistory) {
			t.Errorf("record %s recall history drifted", id)
		}
		if g.DecayParams != w.DecayParams {
			t.Errorf("record %s decay params drifted: %+v vs %+v", id, g.DecayParams, w.DecayParams)
		}
		if !g.Timestamp.Equal(w.Timestamp) {
			t.Errorf("record %s timestamp drifted: %v vs %v", id, g.Timestamp, w.Timestamp)
		}
		if w.Metadata != nil && g.Metadata["topic"] != w.Metadata["topic"] {
			t.Errorf("record %s metadata drifted", id)
		}
	}
	if got.Profile.Rho != want.Profile.Rho {
		t.Errorf("profile drifted: %v vs %v", got.Profile.Rho, want.Profile.Rho)
	}
	if got.State.Fatigue != want.State.Fatigue {
		t.Errorf("state drifted: %v vs %v", got.State.Fatigue, want.State.Fatigue)
	}
}

func TestSQLiteAbsentData(t *testing.T) {
	b, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	snap, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Records) != 0 {
		t.Errorf("expected no records, got %d", len(snap.Records))
	}
	if snap.Profile != memory.DefaultProfile() {
		t.Errorf("expected default profile, got %+v", snap.Profile)
	}
}

func TestSQLiteVersionMismatch(t *testing.T) {
	b, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	ctx := context.Background()

	snap := sampleSnapshot()
	snap.Version = 99
	if err := b.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := b.Load(ctx); !errors.Is(err, memory.ErrSerialization) {
		t.Errorf("expected ErrSerialization for version 99, got %v", err)
	}
}

func TestSQLiteErrorKinds(t *testing.T) {
	b, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	ctx := context.Background()

	if err := b.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mangled column contents are a serialization failure.
	if _, err := b.db.ExecContext(ctx, `UPDATE agent SET profile = 'not json' WHERE id = 1`); err != nil {
		t.Fatalf("corrupt profile: %v", err)
	}
	if _, err := b.Load(ctx); !errors.Is(err, memory.ErrSerialization) {
		t.Errorf("expected ErrSerialization for mangled profile, got %v", err)
	}

	// A dead connection is a storage failure.
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := b.Load(ctx); !errors.Is(err, memory.ErrStorage) {
		t.Errorf("expected ErrStorage on closed db, got %v", err)
	}
	if err := b.Save(ctx, sampleSnapshot()); !errors.Is(err, memory.ErrStorage) {
		t.Errorf("expected ErrStorage on closed db save, got %v", err)
	}
}

func TestSQLiteSaveReplaces(t *testing.T) {
	b, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	ctx := context.Background()

	if err := b.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second := sampleSnapshot()
	if err := b.Save(ctx, second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Records) != len(second.Records) {
		t.Errorf("expected %d records after overwrite, got %d", len(second.Records), len(got.Records))
	}
	for id := range got.Records {
		if _, ok := second.Records[id]; !ok {
			t.Errorf("stale record %s survived overwrite", id)
		}
	}
}

func TestSQLiteOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "engram.db")
	b, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()

	want := sampleSnapshot()
	if err := b.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	b.Close()

	// A fresh handle on the same file sees the snapshot.
	b2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b2.Close()
	got, err := b2.Load(ctx)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if len(got.Records) != len(want.Records) {
		t.Errorf("expected %d records after reopen, got %d", len(want.Records), len(got.Records))
	}
}
