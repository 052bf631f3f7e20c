// Package main provides a CLI tool for loading GRN references (purchase
// orders and catalog articles) from YAML files into the database.
//
// Usage:
//
//	seed [file.yaml ...]
//
// Without arguments the file named by REFERENCES_FILE is loaded.
package main

import (
	"context"
	"fmt"
	"os"

	"stockpile/internal/config"
	"stockpile/internal/infrastructure/storage/memory"
	"stockpile/internal/infrastructure/storage/postgres"
	"stockpile/internal/infrastructure/storage/postgres/grn_repo"
	"stockpile/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.Storage != config.StoragePostgres {
		log.Fatal("seed requires STORAGE=postgres")
	}

	files := os.Args[1:]
	if len(files) == 0 && cfg.ReferencesFile != "" {
		files = []string{cfg.ReferencesFile}
	}
	if len(files) == 0 {
		log.Fatal("no reference files given and REFERENCES_FILE is not set")
	}

	ctx := logger.WithLogger(context.Background(), log)

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalw("failed to apply migrations", "error", err)
	}

	repo := grn_repo.NewReferenceRepo(postgres.NewTxManager(pool))

	total := 0
	for _, file := range files {
		dir, err := memory.LoadReferences(file)
		if err != nil {
			log.Fatalw("failed to read references", "file", file, "error", err)
		}
		refs, err := dir.Search(ctx, "")
		if err != nil {
			log.Fatalw("failed to list references", "file", file, "error", err)
		}
		if err := repo.Import(ctx, refs); err != nil {
			log.Fatalw("failed to import references", "file", file, "error", err)
		}
		log.Infow("references imported", "file", file, "count", len(refs))
		total += len(refs)
	}

	log.Infow("seeding completed successfully", "references", total)
}
