package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/memory/index"
)

// fakeIndex records calls and serves canned hits, standing in for a real
// vector-index backend.
type fakeIndex struct {
	added   map[uuid.UUID][]float32
	removed []uuid.UUID
	hits    []index.Hit
	fail    bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{added: make(map[uuid.UUID][]float32)}
}

func (f *fakeIndex) Add(_ context.Context, id uuid.UUID, vector []float32) error {
	if f.fail {
		return errors.New("index down")
	}
	f.added[id] = vector
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, id uuid.UUID) error {
	if f.fail {
		return errors.New("index down")
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, k int) ([]index.Hit, error) {
	if f.fail {
		return nil, errors.New("index down")
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func TestStoreIndexAddRemove(t *testing.T) {
	idx := newFakeIndex()
	s := NewStore(DefaultProfile(), DefaultState(), zap.NewNop())
	s.SetIndex(idx, 3)

	id := s.Add(NewRecord([]float32{1, 0, 0}, 0.2, 25.0, 0.8))
	if _, ok := idx.added[id]; !ok {
		t.Error("expected record forwarded to the index")
	}

	// Wrong-dimension vectors stay out of the index but in the store.
	other := s.Add(NewRecord([]float32{1, 0}, 0.2, 25.0, 0.8))
	if _, ok := idx.added[other]; ok {
		t.Error("wrong-dimension vector must not reach the index")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 records, got %d", s.Len())
	}

	if err := s.Remove(id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(idx.removed) != 1 || idx.removed[0] != id {
		t.Error("expected removal forwarded to the index")
	}
}

func TestStoreIndexSearchPath(t *testing.T) {
	idx := newFakeIndex()
	s := NewStore(DefaultProfile(), DefaultState(), zap.NewNop())
	s.SetIndex(idx, 3)

	a := s.Add(NewRecord([]float32{1, 0, 0}, 0.2, 25.0, 0.8))
	b := s.Add(NewRecord([]float32{0.9, 0.1, 0}, 0.2, 25.0, 0.8))

	// Index ranks b above a; the store trusts the index's candidates but
	// reweights by retention.
	idx.hits = []index.Hit{
		{ID: b, Distance: 0.0},
		{ID: a, Distance: 0.3},
	}

	results, err := s.FindRelevant([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("find relevant: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Record.ID != b {
		t.Errorf("expected index winner first, got %s", results[0].Record.ID)
	}
	if results[0].Record.RetrievalCount != 1 {
		t.Error("index-path results must still be reinforced")
	}
}

func TestStoreIndexMaintainForwardsEvictions(t *testing.T) {
	idx := newFakeIndex()
	s := NewStore(DefaultProfile(), DefaultState(), zap.NewNop())
	s.SetIndex(idx, 3)

	fresh := s.Add(NewRecord([]float32{1, 0, 0}, 0.2, 25.0, 0.8))

	old := NewRecord([]float32{0, 1, 0}, -0.5, 25.0, 0.8)
	old.Timestamp = time.Now().AddDate(-1, 0, 0)
	oldID := s.Add(old)

	evicted, err := s.Maintain(0.2)
	if err != nil {
		t.Fatalf("maintain: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if len(idx.removed) != 1 || idx.removed[0] != oldID {
		t.Errorf("expected eviction forwarded to the index, removed=%v", idx.removed)
	}

	// With the index in sync, a stale hit cannot shadow the live record.
	idx.hits = []index.Hit{{ID: fresh, Distance: 0.1}}
	results, err := s.FindRelevant([]float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("find relevant: %v", err)
	}
	if len(results) != 1 || results[0].Record.ID != fresh {
		t.Fatalf("expected the surviving record, got %d results", len(results))
	}
}

func TestStoreIndexTieBreakDeterministic(t *testing.T) {
	idx := newFakeIndex()
	s := NewStore(DefaultProfile(), DefaultState(), zap.NewNop())
	s.SetIndex(idx, 3)

	// Identical vectors, attributes and timestamps, so both candidates
	// score exactly equal on every query.
	ra := NewRecord([]float32{1, 0, 0}, 0.2, 25.0, 0.8)
	rb := NewRecord([]float32{1, 0, 0}, 0.2, 25.0, 0.8)
	ts := time.Now()
	ra.Timestamp, rb.Timestamp = ts, ts
	a := s.Add(ra)
	b := s.Add(rb)

	first, second := a, b
	if bytes.Compare(b[:], a[:]) < 0 {
		first, second = b, a
	}

	for i := 0; i < 5; i++ {
		idx.hits = []index.Hit{
			{ID: a, Distance: 0.2},
			{ID: b, Distance: 0.2},
		}
		results, err := s.FindRelevant([]float32{1, 0, 0}, 2)
		if err != nil {
			t.Fatalf("find relevant: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].Record.ID != first || results[1].Record.ID != second {
			t.Fatalf("tie broken nondeterministically on pass %d: got %s, %s",
				i, results[0].Record.ID, results[1].Record.ID)
		}
	}
}

func TestStoreIndexFallback(t *testing.T) {
	idx := newFakeIndex()
	idx.fail = true
	s := NewStore(DefaultProfile(), DefaultState(), zap.NewNop())
	s.SetIndex(idx, 3)

	id := s.Add(NewRecord([]float32{1, 0, 0}, 0.2, 25.0, 0.8))

	// Index failure degrades to the linear scan, not an error.
	results, err := s.FindRelevant([]float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("find relevant: %v", err)
	}
	if len(results) != 1 || results[0].Record.ID != id {
		t.Fatal("expected linear-scan fallback to serve the query")
	}

	// Queries of a different dimension bypass the index entirely.
	if _, err := s.FindRelevant([]float32{1, 0}, 1); err != nil {
		t.Fatalf("off-dimension query: %v", err)
	}
}
