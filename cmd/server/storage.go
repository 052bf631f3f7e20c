package main

import (
	"context"
	"fmt"
	"time"

	"stockpile/internal/config"
	"stockpile/internal/core/tx"
	"stockpile/internal/domain/grn"
	"stockpile/internal/infrastructure/http/v1/handlers"
	"stockpile/internal/infrastructure/storage/memory"
	"stockpile/internal/infrastructure/storage/postgres"
	"stockpile/internal/infrastructure/storage/postgres/grn_repo"
	"stockpile/pkg/logger"
)

// storage bundles the backend chosen by configuration.
type storage struct {
	Drafts     grn.DraftStore
	History    grn.HistoryIndex
	References grn.ReferenceDirectory
	Journal    grn.Journal
	TxManager  tx.Manager

	// DB is nil for in-memory storage.
	DB   handlers.Pinger
	Pool *postgres.Pool
}

// Close releases the connection pool, if any.
func (s *storage) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func openStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return openMemory(cfg)
	case config.StoragePostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

func openMemory(cfg config.Config) (*storage, error) {
	refs, err := memory.LoadReferences(cfg.ReferencesFile)
	if err != nil {
		return nil, err
	}
	drafts := memory.NewDraftStore()
	return &storage{
		Drafts:     drafts,
		History:    drafts,
		References: refs,
		Journal:    memory.NewJournal(),
		TxManager:  tx.Passthrough{},
	}, nil
}

func openPostgres(ctx context.Context, cfg config.Config) (*storage, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "database connection established")

	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	txManager := postgres.NewTxManager(pool)
	journal, err := postgres.NewJournal(txManager, cfg.AuditCompressThreshold)
	if err != nil {
		pool.Close()
		return nil, err
	}

	drafts := grn_repo.NewDraftRepo(txManager)
	refs := grn_repo.NewReferenceRepo(txManager)

	if cfg.ReferencesFile != "" {
		if err := importReferences(ctx, refs, cfg.ReferencesFile); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &storage{
		Drafts:     drafts,
		History:    drafts,
		References: refs,
		Journal:    journal,
		TxManager:  txManager,
		DB:         pool,
		Pool:       pool,
	}, nil
}

// importReferences upserts the YAML reference fixture.
func importReferences(ctx context.Context, repo *grn_repo.ReferenceRepo, path string) error {
	dir, err := memory.LoadReferences(path)
	if err != nil {
		return err
	}
	refs, err := dir.Search(ctx, "")
	if err != nil {
		return err
	}
	if err := repo.Import(ctx, refs); err != nil {
		return fmt.Errorf("import references: %w", err)
	}
	logger.Info(ctx, "references imported", "file", path, "count", len(refs))
	return nil
}

// reportPoolStats logs pool statistics until ctx is cancelled.
func reportPoolStats(ctx context.Context, s *storage, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			postgres.LogPoolStats(ctx, s.Pool)
		}
	}
}
