package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/memory"
)

// PostgresBackend persists snapshots in PostgreSQL through a pgx connection
// pool. The schema mirrors the SQLite layout: one row per record plus a
// single agent row carrying the profile, state and format version.
type PostgresBackend struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ Backend = (*PostgresBackend)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS records (
    id               UUID PRIMARY KEY,
    vector           JSONB NOT NULL,
    emotion          DOUBLE PRECISION NOT NULL,
    age_at_formation DOUBLE PRECISION NOT NULL,
    capacity_weight  DOUBLE PRECISION NOT NULL,
    ts               TIMESTAMPTZ NOT NULL,
    last_retrieved   TIMESTAMPTZ NOT NULL,
    retrieval_count  INTEGER NOT NULL DEFAULT 0,
    metadata         JSONB,
    recall_history   JSONB,
    memory_strength  DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    decay_alpha      DOUBLE PRECISION NOT NULL,
    decay_beta0      DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS agent (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    format_version INTEGER NOT NULL,
    profile        JSONB NOT NULL,
    state          JSONB NOT NULL,
    saved_at       TIMESTAMPTZ NOT NULL
);
`

// NewPostgresBackend connects, pings, and ensures the schema exists.
func NewPostgresBackend(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &PostgresBackend{db: pool, logger: logger}, nil
}

func (b *PostgresBackend) Load(ctx context.Context) (*Snapshot, error) {
	var (
		version              int
		profileRaw, stateRaw []byte
	)
	err := b.db.QueryRow(ctx,
		"SELECT format_version, profile, state FROM agent WHERE id = 1",
	).Scan(&version, &profileRaw, &stateRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load agent row: %w: %w", memory.ErrStorage, err)
	}
	if err := checkVersion(version); err != nil {
		return nil, err
	}

	snap := &Snapshot{Version: version, Records: make(map[uuid.UUID]memory.Record)}
	if err := json.Unmarshal(profileRaw, &snap.Profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", memory.ErrSerialization)
	}
	if err := json.Unmarshal(stateRaw, &snap.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", memory.ErrSerialization)
	}

	rows, err := b.db.Query(ctx, `
		SELECT id, vector, emotion, age_at_formation, capacity_weight,
		       ts, last_retrieved, retrieval_count, metadata, recall_history,
		       memory_strength, decay_alpha, decay_beta0
		FROM records
	`)
	if err != nil {
		return nil, fmt.Errorf("load records: %w: %w", memory.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                       memory.Record
			vectorRaw               []byte
			metadataRaw, historyRaw []byte
		)
		err := rows.Scan(&r.ID, &vectorRaw, &r.Emotion, &r.AgeAtFormation, &r.CapacityWeight,
			&r.Timestamp, &r.LastRetrieved, &r.RetrievalCount, &metadataRaw, &historyRaw,
			&r.MemoryStrength, &r.DecayParams.Alpha, &r.DecayParams.Beta0)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w: %w", memory.ErrStorage, err)
		}
		if err := json.Unmarshal(vectorRaw, &r.SemanticVector); err != nil {
			return nil, fmt.Errorf("record %s vector: %w", r.ID, memory.ErrSerialization)
		}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &r.Metadata); err != nil {
				return nil, fmt.Errorf("record %s metadata: %w", r.ID, memory.ErrSerialization)
			}
		}
		if len(historyRaw) > 0 {
			if err := json.Unmarshal(historyRaw, &r.RecallHistory); err != nil {
				return nil, fmt.Errorf("record %s recall_history: %w", r.ID, memory.ErrSerialization)
			}
		}
		snap.Records[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w: %w", memory.ErrStorage, err)
	}
	return snap, nil
}

func (b *PostgresBackend) Save(ctx context.Context, snap *Snapshot) error {
	profileRaw, err := json.Marshal(snap.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w: %w", memory.ErrSerialization, err)
	}
	stateRaw, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode state: %w: %w", memory.ErrSerialization, err)
	}

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w: %w", memory.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("clear records: %w: %w", memory.ErrStorage, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO agent (id, format_version, profile, state, saved_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			format_version = EXCLUDED.format_version,
			profile        = EXCLUDED.profile,
			state          = EXCLUDED.state,
			saved_at       = EXCLUDED.saved_at
	`, snap.Version, profileRaw, stateRaw, time.Now().UTC()); err != nil {
		return fmt.Errorf("save agent row: %w: %w", memory.ErrStorage, err)
	}

	for _, r := range snap.Records {
		vectorRaw, err := json.Marshal(r.SemanticVector)
		if err != nil {
			return fmt.Errorf("encode record %s vector: %w: %w", r.ID, memory.ErrSerialization, err)
		}
		metadataRaw, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode record %s metadata: %w: %w", r.ID, memory.ErrSerialization, err)
		}
		historyRaw, err := json.Marshal(r.RecallHistory)
		if err != nil {
			return fmt.Errorf("encode record %s recall_history: %w: %w", r.ID, memory.ErrSerialization, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO records (
				id, vector, emotion, age_at_formation, capacity_weight,
				ts, last_retrieved, retrieval_count, metadata, recall_history,
				memory_strength, decay_alpha, decay_beta0
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, r.ID, vectorRaw, r.Emotion, r.AgeAtFormation, r.CapacityWeight,
			r.Timestamp.UTC(), r.LastRetrieved.UTC(), r.RetrievalCount,
			metadataRaw, historyRaw, r.MemoryStrength,
			r.DecayParams.Alpha, r.DecayParams.Beta0); err != nil {
			return fmt.Errorf("insert record %s: %w: %w", r.ID, memory.ErrStorage, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save: %w: %w", memory.ErrStorage, err)
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	b.db.Close()
	return nil
}
