package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/dental-gateway/internal/config"
	"github.com/tbourn/dental-gateway/internal/repo"
	"github.com/tbourn/dental-gateway/internal/sysutil"
)

// loadConfig reads and validates the environment, then configures the global
// logger from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	sysutil.ConfigureLogging(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	return cfg, nil
}

// openDB opens the configured database. The returned func closes it.
func openDB(ctx context.Context, cfg config.Config) (*gorm.DB, func(), error) {
	db, err := repo.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn().Err(err).Msg("close database")
			}
		}
	}
	return db, closeDB, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
