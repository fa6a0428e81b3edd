package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nidhogg/engram/memory"
)

// SQLiteBackend persists snapshots in an embedded SQLite database. Records
// are normalized one row each; the agent profile and state live in a
// single-row table alongside the format version.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

var _ Backend = (*SQLiteBackend)(nil)

type sqliteMigration struct {
	Version     int
	Description string
	SQL         string
}

var sqliteMigrations = []sqliteMigration{
	{
		Version:     1,
		Description: "records and agent tables",
		SQL: `
CREATE TABLE records (
    id               TEXT PRIMARY KEY,
    vector           TEXT NOT NULL,
    emotion          REAL NOT NULL,
    age_at_formation REAL NOT NULL,
    capacity_weight  REAL NOT NULL,
    ts               TEXT NOT NULL,
    last_retrieved   TEXT NOT NULL,
    retrieval_count  INTEGER NOT NULL DEFAULT 0,
    metadata         TEXT,
    recall_history   TEXT,
    memory_strength  REAL NOT NULL DEFAULT 1.0,
    decay_alpha      REAL NOT NULL,
    decay_beta0      REAL NOT NULL
);

CREATE TABLE agent (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    format_version INTEGER NOT NULL,
    profile        TEXT NOT NULL,
    state          TEXT NOT NULL,
    saved_at       TEXT NOT NULL
);
`,
	},
}

// OpenSQLite opens (or creates) the database at path, configures pragmas,
// and runs migrations.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	b := &SQLiteBackend{db: db, path: path}
	if err := b.configurePragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

// OpenSQLiteMemory opens an in-memory database for testing.
func OpenSQLiteMemory() (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	b := &SQLiteBackend{db: db, path: ":memory:"}
	if err := b.configurePragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := b.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (b *SQLiteBackend) migrate() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range sqliteMigrations {
		var count int
		if err := b.db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}
		tx, err := b.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (b *SQLiteBackend) Load(ctx context.Context) (*Snapshot, error) {
	var (
		version              int
		profileRaw, stateRaw string
		savedAt              string
	)
	err := b.db.QueryRowContext(ctx,
		"SELECT format_version, profile, state, saved_at FROM agent WHERE id = 1",
	).Scan(&version, &profileRaw, &stateRaw, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load agent row: %w: %w", memory.ErrStorage, err)
	}
	if err := checkVersion(version); err != nil {
		return nil, err
	}

	snap := &Snapshot{Version: version, Records: make(map[uuid.UUID]memory.Record)}
	if err := json.Unmarshal([]byte(profileRaw), &snap.Profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", memory.ErrSerialization)
	}
	if err := json.Unmarshal([]byte(stateRaw), &snap.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", memory.ErrSerialization)
	}

	rows, err := b.db.QueryContext(ctx, `
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
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		snap.Records[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w: %w", memory.ErrStorage, err)
	}
	return snap, nil
}

func scanRecord(rows *sql.Rows) (memory.Record, error) {
	var (
		r                          memory.Record
		idRaw, vectorRaw, ts, last string
		metadataRaw, historyRaw    sql.NullString
	)
	err := rows.Scan(&idRaw, &vectorRaw, &r.Emotion, &r.AgeAtFormation, &r.CapacityWeight,
		&ts, &last, &r.RetrievalCount, &metadataRaw, &historyRaw,
		&r.MemoryStrength, &r.DecayParams.Alpha, &r.DecayParams.Beta0)
	if err != nil {
		return memory.Record{}, fmt.Errorf("scan record: %w: %w", memory.ErrStorage, err)
	}
	if r.ID, err = uuid.Parse(idRaw); err != nil {
		return memory.Record{}, fmt.Errorf("record id %q: %w", idRaw, memory.ErrSerialization)
	}
	if err := json.Unmarshal([]byte(vectorRaw), &r.SemanticVector); err != nil {
		return memory.Record{}, fmt.Errorf("record %s vector: %w", r.ID, memory.ErrSerialization)
	}
	if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return memory.Record{}, fmt.Errorf("record %s timestamp: %w", r.ID, memory.ErrSerialization)
	}
	if r.LastRetrieved, err = time.Parse(time.RFC3339Nano, last); err != nil {
		return memory.Record{}, fmt.Errorf("record %s last_retrieved: %w", r.ID, memory.ErrSerialization)
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		if err := json.Unmarshal([]byte(metadataRaw.String), &r.Metadata); err != nil {
			return memory.Record{}, fmt.Errorf("record %s metadata: %w", r.ID, memory.ErrSerialization)
		}
	}
	if historyRaw.Valid && historyRaw.String != "" {
		if err := json.Unmarshal([]byte(historyRaw.String), &r.RecallHistory); err != nil {
			return memory.Record{}, fmt.Errorf("record %s recall_history: %w", r.ID, memory.ErrSerialization)
		}
	}
	return r, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, snap *Snapshot) error {
	profileRaw, err := json.Marshal(snap.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w: %w", memory.ErrSerialization, err)
	}
	stateRaw, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode state: %w: %w", memory.ErrSerialization, err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w: %w", memory.ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("clear records: %w: %w", memory.ErrStorage, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agent (id, format_version, profile, state, saved_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			format_version = excluded.format_version,
			profile        = excluded.profile,
			state          = excluded.state,
			saved_at       = excluded.saved_at
	`, snap.Version, string(profileRaw), string(stateRaw), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
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
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records (
				id, vector, emotion, age_at_formation, capacity_weight,
				ts, last_retrieved, retrieval_count, metadata, recall_history,
				memory_strength, decay_alpha, decay_beta0
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID.String(), string(vectorRaw), r.Emotion, r.AgeAtFormation, r.CapacityWeight,
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.LastRetrieved.UTC().Format(time.RFC3339Nano),
			r.RetrievalCount, string(metadataRaw), string(historyRaw),
			r.MemoryStrength, r.DecayParams.Alpha, r.DecayParams.Beta0); err != nil {
			return fmt.Errorf("insert record %s: %w: %w", r.ID, memory.ErrStorage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w: %w", memory.ErrStorage, err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
