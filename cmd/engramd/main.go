package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/api"
	"github.com/nidhogg/engram/internal/config"
	"github.com/nidhogg/engram/memory"
	chromemindex "github.com/nidhogg/engram/memory/index/chromem"
	qdrantindex "github.com/nidhogg/engram/memory/index/qdrant"
	"github.com/nidhogg/engram/storage"
)

// engineStore is the HTTP store surface plus snapshot import/export. All
// three store variants satisfy it.
type engineStore interface {
	api.MemoryStore
	Export() map[uuid.UUID]memory.Record
	Import(records map[uuid.UUID]memory.Record)
}

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting engram...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/engram.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	ctx := context.Background()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open persistence backend", zap.Error(err))
	}

	snap := storage.NewSnapshot(nil, memory.DefaultProfile(), memory.DefaultState())
	if backend != nil {
		snap, err = backend.Load(ctx)
		if err != nil {
			logger.Fatal("failed to load snapshot", zap.Error(err))
		}
		logger.Info("Snapshot loaded", zap.Int("records", len(snap.Records)))
	}

	store, err := buildStore(ctx, cfg, snap, logger)
	if err != nil {
		logger.Fatal("failed to build store", zap.Error(err))
	}

	handler := api.NewHandler(store, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("engram listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Background retention sweep.
	stopSweep := make(chan struct{})
	if cfg.Maintenance.IntervalSeconds > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(cfg.Maintenance.IntervalSeconds) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if _, err := store.Maintain(*cfg.Maintenance.Threshold); err != nil {
						logger.Warn("maintenance sweep failed", zap.Error(err))
					}
				case <-stopSweep:
					return
				}
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down engram...")
	close(stopSweep)
	srv.Shutdown(ctx)

	if backend != nil {
		final := storage.NewSnapshot(store.Export(), store.Profile(), store.State())
		if err := backend.Save(ctx, final); err != nil {
			logger.Error("failed to save final snapshot", zap.Error(err))
		} else {
			logger.Info("Snapshot saved", zap.Int("records", len(final.Records)))
		}
		backend.Close()
	}
}

// openBackend selects the persistence backend from config. Backend "none"
// returns nil and the daemon runs purely in memory.
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Backend, error) {
	switch cfg.Persistence.Backend {
	case "none":
		return nil, nil
	case "file":
		return storage.NewFileBackend(cfg.Persistence.File.Path)
	case "sqlite":
		return storage.OpenSQLite(cfg.Persistence.SQLite.Path)
	case "postgres":
		return storage.NewPostgresBackend(ctx, cfg.Persistence.Postgres.DSN, logger)
	case "redis":
		return storage.NewRedisBackend(ctx, cfg.Persistence.Redis.URL, cfg.Persistence.Redis.Key)
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Persistence.Backend)
	}
}

// buildStore constructs the configured store variant, imports the snapshot,
// and attaches an optional similarity index. Index attachment only applies
// to the single variant; the concurrent and sharded variants always scan
// linearly.
func buildStore(ctx context.Context, cfg *config.Config, snap *storage.Snapshot, logger *zap.Logger) (engineStore, error) {
	switch cfg.Store.Variant {
	case "single":
		s := memory.NewStore(snap.Profile, snap.State, logger)
		if err := attachIndex(ctx, cfg, s, logger); err != nil {
			return nil, err
		}
		s.Import(snap.Records)
		return s, nil
	case "concurrent":
		s := memory.NewConcurrentStore(snap.Profile, snap.State, logger)
		s.Import(snap.Records)
		return s, nil
	case "sharded":
		s, err := memory.NewShardedStore(snap.Profile, snap.State, cfg.Store.Shards, logger)
		if err != nil {
			return nil, err
		}
		s.Import(snap.Records)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store variant %q", cfg.Store.Variant)
	}
}

func attachIndex(ctx context.Context, cfg *config.Config, s *memory.Store, logger *zap.Logger) error {
	switch cfg.Index.Backend {
	case "none", "":
		return nil
	case "qdrant":
		idx, err := qdrantindex.New(ctx, qdrantindex.Config{
			Host:       cfg.Index.Qdrant.Host,
			Port:       cfg.Index.Qdrant.Port,
			Collection: cfg.Index.Collection,
		}, uint64(cfg.Index.Dimension))
		if err != nil {
			return fmt.Errorf("qdrant index: %w", err)
		}
		s.SetIndex(idx, cfg.Index.Dimension)
		logger.Info("Qdrant index attached", zap.String("collection", cfg.Index.Collection))
		return nil
	case "chromem":
		idx, err := chromemindex.New(cfg.Index.Collection)
		if err != nil {
			return fmt.Errorf("chromem index: %w", err)
		}
		s.SetIndex(idx, cfg.Index.Dimension)
		logger.Info("chromem index attached", zap.String("collection", cfg.Index.Collection))
		return nil
	default:
		return fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}
