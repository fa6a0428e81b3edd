package memory

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ScoredRecord pairs a relevance score with a value copy of the record as it
// stood immediately after reinforcement. The copy does not track concurrent
// reinforcement by other callers.
type ScoredRecord struct {
	Score  float64 `json:"score"`
	Record Record  `json:"record"`
}

// substrate abstracts a store variant down to the two operations the shared
// ranking algorithm needs: visiting live records and atomically mutating one
// record. Implementing the algorithm once guarantees identical ranking
// semantics across all three variants.
type substrate interface {
	// forEach visits every live record. The callback must not retain or
	// mutate the record; whole-store scans observe a live view, not a
	// snapshot.
	forEach(fn func(r *Record))
	// withRecord runs fn against one record under the substrate's per-record
	// atomicity. Returns false when the record no longer exists.
	withRecord(id uuid.UUID, fn func(r *Record)) bool
	// params returns the current profile, state and interference hook.
	params() (AgentProfile, AgentState, Interference)
}

type candidate struct {
	id    uuid.UUID
	score float64
}

// findRelevant scores every live record against the query with a single time
// snapshot, sorts descending, truncates to limit and reinforces exactly the
// returned set. Ties sort by record ID so single-threaded executions are
// deterministic regardless of map iteration order.
func findRelevant(sub substrate, query []float32, limit int) ([]ScoredRecord, error) {
	if limit < 1 {
		return nil, limitErr(limit)
	}

	profile, state, interf := sub.params()
	now := time.Now()

	var scored []candidate
	sub.forEach(func(r *Record) {
		sim := CosineSimilarity(query, r.SemanticVector)
		ret := liveRetention(r, now, state, profile, interf)
		scored = append(scored, candidate{id: r.ID, score: sim * ret})
	})

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
		// A record removed between scoring and reinforcement is skipped.
		sub.withRecord(c.id, func(r *Record) {
			r.Reinforce(profile.Rho)
			results = append(results, ScoredRecord{Score: c.score, Record: r.Copy()})
		})
	}
	return results, nil
}

// findRelevantBatch applies findRelevant sequentially per query vector. Each
// query takes its own time snapshot, and reinforcement from earlier queries
// in the batch is visible to later ones.
func findRelevantBatch(sub substrate, queries [][]float32, limit int) ([][]ScoredRecord, error) {
	results := make([][]ScoredRecord, 0, len(queries))
	for _, q := range queries {
		res, err := findRelevant(sub, q, limit)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
