package memory

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// shard is one independent partition of the record set.
type shard struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

// ShardedStore partitions records across N independent shards routed by a
// hash of the record ID, reducing write contention by roughly the shard
// count versus a single concurrent map. Atomicity holds only within a
// shard; a ranked query gathers candidates from every shard, each observed
// at a possibly different instant, before the global sort and truncation,
// so the returned ordering is the global top-limit, not per-shard.
type ShardedStore struct {
	shards       []*shard
	profile      atomic.Pointer[AgentProfile]
	state        atomic.Pointer[AgentState]
	interference Interference
	logger       *zap.Logger
}

// NewShardedStore creates a store with numShards partitions. numShards must
// be >= 1.
func NewShardedStore(profile AgentProfile, state AgentState, numShards int, logger *zap.Logger) (*ShardedStore, error) {
	if numShards < 1 {
		return nil, fmt.Errorf("sharded store: shard count %d must be >= 1: %w", numShards, ErrInvalidParameter)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	shards := make([]*shard, numShards)
	for i := range shards {
		shards[i] = &shard{records: make(map[uuid.UUID]*Record)}
	}
	s := &ShardedStore{shards: shards, logger: logger}
	s.profile.Store(&profile)
	s.state.Store(&state)
	return s, nil
}

// shardFor routes an ID to its shard. The routing is deterministic for the
// lifetime of the store.
func (s *ShardedStore) shardFor(id uuid.UUID) *shard {
	return s.shards[xxhash.Sum64(id[:])%uint64(len(s.shards))]
}

// SetInterference installs a query-time interference model. Call before the
// store is shared between goroutines.
func (s *ShardedStore) SetInterference(f Interference) {
	s.interference = f
}

// Add inserts a record into its shard and returns its ID.
func (s *ShardedStore) Add(r *Record) uuid.UUID {
	sh := s.shardFor(r.ID)
	rec := r.Copy()
	sh.mu.Lock()
	sh.records[r.ID] = &rec
	sh.mu.Unlock()
	return r.ID
}

// Get returns a value copy of the record.
func (s *ShardedStore) Get(id uuid.UUID) (Record, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	r, ok := sh.records[id]
	if !ok {
		return Record{}, notFoundErr(id)
	}
	return r.Copy(), nil
}

// Remove deletes a record from its shard.
func (s *ShardedStore) Remove(id uuid.UUID) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.records[id]; !ok {
		return notFoundErr(id)
	}
	delete(sh.records, id)
	return nil
}

// Len returns the number of live records across all shards.
func (s *ShardedStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.records)
		sh.mu.RUnlock()
	}
	return total
}

// NumShards returns the partition count.
func (s *ShardedStore) NumShards() int {
	return len(s.shards)
}

// FindRelevant returns up to limit records ranked by similarity × retention
// across all shards, reinforcing the returned set. limit must be >= 1.
func (s *ShardedStore) FindRelevant(query []float32, limit int) ([]ScoredRecord, error) {
	return findRelevant(s, query, limit)
}

// FindRelevantBatch runs FindRelevant sequentially for each query vector.
// Reinforcement from earlier queries in the batch is visible to later ones.
func (s *ShardedStore) FindRelevantBatch(queries [][]float32, limit int) ([][]ScoredRecord, error) {
	return findRelevantBatch(s, queries, limit)
}

// Maintain sweeps every shard with one time snapshot, evicting records whose
// retention is strictly below threshold. Returns the total eviction count.
func (s *ShardedStore) Maintain(threshold float64) (int, error) {
	if threshold < 0 || threshold > 1 {
		return 0, thresholdErr(threshold)
	}
	profile, state, interf := s.params()
	now := time.Now()
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, r := range sh.records {
			if liveRetention(r, now, state, profile, interf) < threshold {
				delete(sh.records, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	s.logger.Info("maintenance sweep complete",
		zap.Int("evicted", evicted),
		zap.Int("shards", len(s.shards)))
	return evicted, nil
}

// UpdateState replaces the agent state wholesale, last writer wins.
func (s *ShardedStore) UpdateState(state AgentState) {
	s.state.Store(&state)
}

// UpdateProfile replaces the agent profile wholesale, last writer wins.
func (s *ShardedStore) UpdateProfile(profile AgentProfile) {
	s.profile.Store(&profile)
}

// Profile returns the current agent profile.
func (s *ShardedStore) Profile() AgentProfile {
	return *s.profile.Load()
}

// State returns the current agent state.
func (s *ShardedStore) State() AgentState {
	return *s.state.Load()
}

// Export returns deep copies of all live records keyed by ID. Shards are
// captured one at a time, so the result is weakly consistent with
// concurrent writers.
func (s *ShardedStore) Export() map[uuid.UUID]Record {
	out := make(map[uuid.UUID]Record)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, r := range sh.records {
			out[id] = r.Copy()
		}
		sh.mu.RUnlock()
	}
	return out
}

// Import inserts records wholesale, typically from a loaded snapshot.
func (s *ShardedStore) Import(records map[uuid.UUID]Record) {
	for id, r := range records {
		sh := s.shardFor(id)
		rec := r.Copy()
		sh.mu.Lock()
		sh.records[id] = &rec
		sh.mu.Unlock()
	}
}

func (s *ShardedStore) forEach(fn func(r *Record)) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, r := range sh.records {
			fn(r)
		}
		sh.mu.RUnlock()
	}
}

func (s *ShardedStore) withRecord(id uuid.UUID, fn func(r *Record)) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	r, ok := sh.records[id]
	if !ok {
		return false
	}
	fn(r)
	return true
}

func (s *ShardedStore) params() (AgentProfile, AgentState, Interference) {
	return *s.profile.Load(), *s.state.Load(), s.interference
}
