// Package storage persists memory store snapshots across process
// restarts. A snapshot captures the full record set plus the agent profile
// and state, versioned so an incompatible on-disk format fails loudly
// instead of loading garbage.
package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nidhogg/engram/memory"
)

// Backend is implemented by every persistence substrate. Load returns a
// snapshot with default profile, default state and no records when nothing
// has been saved yet; absence of data is not an error.
type Backend interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Close() error
}

// FormatVersion is the current snapshot format. Backends refuse to load
// snapshots written with a different version.
const FormatVersion = 1

// Snapshot is a point-in-time capture of a memory store.
type Snapshot struct {
	Version int                         `json:"version"`
	Records map[uuid.UUID]memory.Record `json:"records"`
	Profile memory.AgentProfile         `json:"profile"`
	State   memory.AgentState           `json:"state"`
}

// NewSnapshot builds a snapshot at the current format version.
func NewSnapshot(records map[uuid.UUID]memory.Record, profile memory.AgentProfile, state memory.AgentState) *Snapshot {
	return &Snapshot{
		Version: FormatVersion,
		Records: records,
		Profile: profile,
		State:   state,
	}
}

// emptySnapshot is what Load returns when the backend holds no data yet.
func emptySnapshot() *Snapshot {
	return &Snapshot{
		Version: FormatVersion,
		Records: make(map[uuid.UUID]memory.Record),
		Profile: memory.DefaultProfile(),
		State:   memory.DefaultState(),
	}
}

// checkVersion rejects snapshots written with a different format version.
func checkVersion(v int) error {
	if v != FormatVersion {
		return fmt.Errorf("snapshot version %d, want %d: %w", v, FormatVersion, memory.ErrSerialization)
	}
	return nil
}
