package memory

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// slot guards one record so per-record operations (reinforce, copy-out)
// stay atomic while the surrounding map admits concurrent access.
type slot struct {
	mu  sync.Mutex
	rec Record
}

// ConcurrentStore is safe for arbitrary interleavings of its operations from
// multiple simultaneous callers without external locking. Per-record
// operations are atomic; whole-store scans (FindRelevant, Maintain) observe
// a live view rather than a snapshot, so a record inserted or removed
// mid-scan may or may not be included. That weak consistency is the
// documented trade-off, not a defect.
type ConcurrentStore struct {
	records      sync.Map // uuid.UUID -> *slot
	count        atomic.Int64
	profile      atomic.Pointer[AgentProfile]
	state        atomic.Pointer[AgentState]
	interference Interference
	logger       *zap.Logger
}

// NewConcurrentStore creates an empty concurrent store. A nil logger
// disables logging.
func NewConcurrentStore(profile AgentProfile, state AgentState, logger *zap.Logger) *ConcurrentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ConcurrentStore{logger: logger}
	s.profile.Store(&profile)
	s.state.Store(&state)
	return s
}

// SetInterference installs a query-time interference model. Call before the
// store is shared between goroutines.
func (s *ConcurrentStore) SetInterference(f Interference) {
	s.interference = f
}

// Add inserts a record and returns its ID.
func (s *ConcurrentStore) Add(r *Record) uuid.UUID {
	if _, loaded := s.records.Swap(r.ID, &slot{rec: r.Copy()}); !loaded {
		s.count.Add(1)
	}
	return r.ID
}

// Get returns a value copy of the record.
func (s *ConcurrentStore) Get(id uuid.UUID) (Record, error) {
	v, ok := s.records.Load(id)
	if !ok {
		return Record{}, notFoundErr(id)
	}
	sl := v.(*slot)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.rec.Copy(), nil
}

// Remove deletes a record.
func (s *ConcurrentStore) Remove(id uuid.UUID) error {
	if _, ok := s.records.LoadAndDelete(id); !ok {
		return notFoundErr(id)
	}
	s.count.Add(-1)
	return nil
}

// Len returns the number of live records.
func (s *ConcurrentStore) Len() int {
	return int(s.count.Load())
}

// FindRelevant returns up to limit records ranked by similarity × retention,
// reinforcing the returned set. limit must be >= 1.
func (s *ConcurrentStore) FindRelevant(query []float32, limit int) ([]ScoredRecord, error) {
	return findRelevant(s, query, limit)
}

// FindRelevantBatch runs FindRelevant sequentially for each query vector.
// Reinforcement from earlier queries in the batch is visible to later ones.
func (s *ConcurrentStore) FindRelevantBatch(queries [][]float32, limit int) ([][]ScoredRecord, error) {
	return findRelevantBatch(s, queries, limit)
}

// Maintain evicts every record whose retention, computed against one time
// snapshot, is strictly below threshold. Returns the eviction count.
func (s *ConcurrentStore) Maintain(threshold float64) (int, error) {
	if threshold < 0 || threshold > 1 {
		return 0, thresholdErr(threshold)
	}
	profile, state, interf := s.params()
	now := time.Now()
	evicted := 0
	s.records.Range(func(key, value any) bool {
		sl := value.(*slot)
		sl.mu.Lock()
		below := liveRetention(&sl.rec, now, state, profile, interf) < threshold
		sl.mu.Unlock()
		if below {
			if _, ok := s.records.LoadAndDelete(key); ok {
				s.count.Add(-1)
				evicted++
			}
		}
		return true
	})
	s.logger.Info("maintenance sweep complete",
		zap.Int("evicted", evicted),
		zap.Int64("remaining", s.count.Load()))
	return evicted, nil
}

// UpdateState replaces the agent state wholesale, last writer wins. No
// ordering is guaranteed relative to in-flight scans.
func (s *ConcurrentStore) UpdateState(state AgentState) {
	s.state.Store(&state)
}

// UpdateProfile replaces the agent profile wholesale, last writer wins.
func (s *ConcurrentStore) UpdateProfile(profile AgentProfile) {
	s.profile.Store(&profile)
}

// Profile returns the current agent profile.
func (s *ConcurrentStore) Profile() AgentProfile {
	return *s.profile.Load()
}

// State returns the current agent state.
func (s *ConcurrentStore) State() AgentState {
	return *s.state.Load()
}

// Export returns deep copies of all live records keyed by ID. The capture is
// weakly consistent with concurrent writers.
func (s *ConcurrentStore) Export() map[uuid.UUID]Record {
	out := make(map[uuid.UUID]Record)
	s.records.Range(func(key, value any) bool {
		sl := value.(*slot)
		sl.mu.Lock()
		out[key.(uuid.UUID)] = sl.rec.Copy()
		sl.mu.Unlock()
		return true
	})
	return out
}

// Import inserts records wholesale, typically from a loaded snapshot.
func (s *ConcurrentStore) Import(records map[uuid.UUID]Record) {
	for id, r := range records {
		if _, loaded := s.records.Swap(id, &slot{rec: r.Copy()}); !loaded {
			s.count.Add(1)
		}
	}
}

func (s *ConcurrentStore) forEach(fn func(r *Record)) {
	s.records.Range(func(_, value any) bool {
		sl := value.(*slot)
		sl.mu.Lock()
		fn(&sl.rec)
		sl.mu.Unlock()
		return true
	})
}

func (s *ConcurrentStore) withRecord(id uuid.UUID, fn func(r *Record)) bool {
	v, ok := s.records.Load(id)
	if !ok {
		return false
	}
	sl := v.(*slot)
	sl.mu.Lock()
	fn(&sl.rec)
	sl.mu.Unlock()
	return true
}

func (s *ConcurrentStore) params() (AgentProfile, AgentState, Interference) {
	return *s.profile.Load(), *s.state.Load(), s.interference
}
