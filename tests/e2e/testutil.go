package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/memory"
	"github.com/nidhogg/engram/storage"
)

// Package-level shared state — set by TestMain, used by all subtests.
var (
	testLogger   *zap.Logger
	testPGDSN    string
	testRedisURL string
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("engram_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// skipIfNoContainers skips when TestMain ran in short mode and never
// started the backing services.
func skipIfNoContainers(t *testing.T) {
	t.Helper()
	if testPGDSN == "" || testRedisURL == "" {
		t.Skip("backing containers not started (short mode)")
	}
}

// seedStore fills a store with a small population whose retention spread is
// wide enough to exercise ranking, reinforcement and eviction.
func seedStore(s *memory.Store) map[string]uuid.UUID {
	fresh := s.Add(memory.NewRecord([]float32{1, 0, 0}, 0.4, 25.0, 0.9).
		WithMetadata("label", "fresh"))

	shock := memory.NewRecord([]float32{0.8, 0.2, 0}, -0.9, 25.0, 0.8).
		WithMetadata("label", "shock")
	shock.Timestamp = time.Now().AddDate(0, 0, -60)
	shockID := s.Add(shock)

	faded := memory.NewRecord([]float32{0, 1, 0}, -0.4, 25.0, 0.5).
		WithMetadata("label", "faded")
	faded.Timestamp = time.Now().AddDate(-1, 0, 0)
	fadedID := s.Add(faded)

	return map[string]uuid.UUID{
		"fresh": fresh,
		"shock": shockID,
		"faded": fadedID,
	}
}

// snapshotOf captures a store the way the daemon does at shutdown.
func snapshotOf(s *memory.Store) *storage.Snapshot {
	return storage.NewSnapshot(s.Export(), s.Profile(), s.State())
}
