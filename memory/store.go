package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/memory/index"
)

// Store is the single-threaded record store. It assumes exclusive ownership:
// the caller serializes access, typically by owning the store behind one
// controller. For multi-actor access use ConcurrentStore or ShardedStore.
type Store struct {
	records      map[uuid.UUID]*Record
	profile      AgentProfile
	state        AgentState
	interference Interference
	index        index.Index
	indexDim     int
	logger       *zap.Logger
}

// NewStore creates an empty store with the given profile and state. A nil
// logger disables logging.
func NewStore(profile AgentProfile, state AgentState, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		records: make(map[uuid.UUID]*Record),
		profile: profile,
		state:   state,
		logger:  logger,
	}
}

// SetInterference installs a query-time interference model. The default is
// the neutral constant 1.0.
func (s *Store) SetInterference(f Interference) {
	s.interference = f
}

// SetIndex attaches an optional nearest-neighbor index for ranked queries
// over vectors of the given dimensionality. Queries of any other
// dimensionality, or any index failure, fall back to the linear scan.
func (s *Store) SetIndex(idx index.Index, dim int) {
	s.index = idx
	s.indexDim = dim
}

// Add inserts a record and returns its ID.
func (s *Store) Add(r *Record) uuid.UUID {
	rec := r.Copy()
	s.records[r.ID] = &rec
	if s.index != nil && len(r.SemanticVector) == s.indexDim {
		if err := s.index.Add(context.Background(), r.ID, r.SemanticVector); err != nil {
			s.logger.Warn("index add failed", zap.String("id", r.ID.String()), zap.Error(err))
		}
	}
	return r.ID
}

// Get returns a value copy of the record.
func (s *Store) Get(id uuid.UUID) (Record, error) {
	r, ok := s.records[id]
	if !ok {
		return Record{}, notFoundErr(id)
	}
	return r.Copy(), nil
}

// Remove deletes a record. Removed records are unreachable from any
// subsequent query or maintenance pass.
func (s *Store) Remove(id uuid.UUID) error {
	if _, ok := s.records[id]; !ok {
		return notFoundErr(id)
	}
	delete(s.records, id)
	if s.index != nil {
		if err := s.index.Remove(context.Background(), id); err != nil {
			s.logger.Warn("index remove failed", zap.String("id", id.String()), zap.Error(err))
		}
	}
	return nil
}

// Len returns the number of live records.
func (s *Store) Len() int {
	return len(s.records)
}

// FindRelevant returns up to limit records ranked by similarity × retention,
// reinforcing the returned set. limit must be >= 1.
func (s *Store) FindRelevant(query []float32, limit int) ([]ScoredRecord, error) {
	if s.index != nil && len(query) == s.indexDim {
		if res, err := s.findViaIndex(query, limit); err == nil {
			return res, nil
		} else {
			s.logger.Warn("index search failed, falling back to scan", zap.Error(err))
		}
	}
	return findRelevant(s, query, limit)
}

// findViaIndex ranks only the index's nearest candidates, converting each
// hit's distance to a similarity-compatible score before combining it with
// retention.
func (s *Store) findViaIndex(query []float32, limit int) ([]ScoredRecord, error) {
	if limit < 1 {
		return nil, limitErr(limit)
	}
	hits, err := s.index.Search(context.Background(), query, limit)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var scored []candidate
	for _, h := range hits {
		r, ok := s.records[h.ID]
		if !ok {
			continue
		}
		ret := liveRetention(r, now, s.state, s.profile, s.interference)
		scored = append(scored, candidate{id: h.ID, score: index.ScoreFromDistance(h.Distance) * ret})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return bytes.Compare(scored[i].id[:], scored[j].id[:]) < 0
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	results := make([]ScoredRecord, 0, len(scored))
	for _, c := range scored {
		r := s.records[c.id]
		r.Reinforce(s.profile.Rho)
		results = append(results, ScoredRecord{Score: c.score, Record: r.Copy()})
	}
	return results, nil
}

// FindRelevantBatch runs FindRelevant sequentially for each query vector.
// Reinforcement from earlier queries in the batch is visible to later ones.
func (s *Store) FindRelevantBatch(queries [][]float32, limit int) ([][]ScoredRecord, error) {
	return findRelevantBatch(s, queries, limit)
}

// Maintain evicts every record whose retention, computed against one time
// snapshot, is strictly below threshold. Returns the eviction count.
// threshold must lie in [0, 1]. No reinforcement occurs.
func (s *Store) Maintain(threshold float64) (int, error) {
	if threshold < 0 || threshold > 1 {
		return 0, thresholdErr(threshold)
	}
	now := time.Now()
	evicted := 0
	for id, r := range s.records {
		if liveRetention(r, now, s.state, s.profile, s.interference) < threshold {
			delete(s.records, id)
			if s.index != nil {
				if err := s.index.Remove(context.Background(), id); err != nil {
					s.logger.Warn("index remove failed", zap.String("id", id.String()), zap.Error(err))
				}
			}
			evicted++
		}
	}
	s.logger.Info("maintenance sweep complete",
		zap.Int("evicted", evicted),
		zap.Int("remaining", len(s.records)))
	return evicted, nil
}

// UpdateState replaces the agent state wholesale.
func (s *Store) UpdateState(state AgentState) {
	s.state = state
}

// UpdateProfile replaces the agent profile wholesale.
func (s *Store) UpdateProfile(profile AgentProfile) {
	s.profile = profile
}

// Profile returns the current agent profile.
func (s *Store) Profile() AgentProfile {
	return s.profile
}

// State returns the current agent state.
func (s *Store) State() AgentState {
	return s.state
}

// Export returns deep copies of all live records keyed by ID, for snapshot
// persistence.
func (s *Store) Export() map[uuid.UUID]Record {
	out := make(map[uuid.UUID]Record, len(s.records))
	for id, r := range s.records {
		out[id] = r.Copy()
	}
	return out
}

// Import inserts records wholesale, typically from a loaded snapshot.
func (s *Store) Import(records map[uuid.UUID]Record) {
	for id, r := range records {
		rec := r.Copy()
		s.records[id] = &rec
		if s.index != nil && len(rec.SemanticVector) == s.indexDim {
			if err := s.index.Add(context.Background(), id, rec.SemanticVector); err != nil {
				s.logger.Warn("index add failed", zap.String("id", id.String()), zap.Error(err))
			}
		}
	}
}

func (s *Store) forEach(fn func(r *Record)) {
	for _, r := range s.records {
		fn(r)
	}
}

func (s *Store) withRecord(id uuid.UUID, fn func(r *Record)) bool {
	r, ok := s.records[id]
	if !ok {
		return false
	}
	fn(r)
	return true
}

func (s *Store) params() (AgentProfile, AgentState, Interference) {
	return s.profile, s.state, s.interference
}
