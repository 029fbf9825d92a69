// Package main provides the causeway seed tool. It loads knowledge
// entries and historical cases from JSON fixture files into the core
// store, typically before first start or in test environments.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/harborops/causeway/internal/config"
	gormdb "github.com/harborops/causeway/internal/db/gorm"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	knowledgePath := flag.String("knowledge", "", "JSON file with an array of knowledge entries")
	casesPath := flag.String("cases", "", "JSON file with an array of historical cases")
	dbPath := flag.String("db", "", "SQLite database path (default: configured core store)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides -db)")
	flag.Parse()

	if *knowledgePath == "" && *casesPath == "" {
		fmt.Fprintln(os.Stderr, "usage: seed [-db path | -dsn dsn] -knowledge entries.json -cases cases.json")
		os.Exit(2)
	}

	cfg := config.Get()
	storeCfg := gormdb.Config{
		DSN:      cfg.DatabaseDSN,
		Path:     cfg.DBPath,
		LogLevel: logger.Silent,
	}
	if *dbPath != "" {
		storeCfg.DSN = ""
		storeCfg.Path = *dbPath
	}
	if *dsn != "" {
		storeCfg.DSN = *dsn
	}

	store, err := gormdb.NewStore(storeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open core store")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *knowledgePath != "" {
		n, err := seedKnowledge(ctx, store, *knowledgePath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *knowledgePath).Msg("Failed to seed knowledge entries")
		}
		log.Info().Int("entries", n).Msg("Seeded knowledge entries")
	}

	if *casesPath != "" {
		n, err := seedCases(ctx, store, *casesPath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *casesPath).Msg("Failed to seed historical cases")
		}
		log.Info().Int("cases", n).Msg("Seeded historical cases")
	}
}

func seedKnowledge(ctx context.Context, store *gormdb.Store, path string) (int, error) {
	var entries []gormdb.KnowledgeEntry
	if err := loadJSON(path, &entries); err != nil {
		return 0, err
	}

	for i := range entries {
		entry := &entries[i]
		entry.ID = 0
		if entry.Title == "" || entry.Content == "" {
			return i, fmt.Errorf("entry %d: title and content are required", i)
		}
		if err := store.CreateKnowledge(ctx, entry); err != nil {
			return i, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return len(entries), nil
}

func seedCases(ctx context.Context, store *gormdb.Store, path string) (int, error) {
	var records []gormdb.HistoricalCase
	if err := loadJSON(path, &records); err != nil {
		return 0, err
	}

	for i := range records {
		record := &records[i]
		record.ID = 0
		if record.Description == "" {
			return i, fmt.Errorf("case %d: description is required", i)
		}
		if err := store.CreateCase(ctx, record); err != nil {
			return i, fmt.Errorf("case %d: %w", i, err)
		}
	}
	return len(records), nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
