package cache

import (
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

// ClearCmd empties one cache source
type ClearCmd struct {
	Source string `arg:"" help:"Cache source to clear: openlibrary" default:"openlibrary"`
}

func (c *ClearCmd) Run() error {
	dbPath := viper.GetString("cache.dbfile")
	tableName := c.Source + "_cache"

	if !ValidCacheTableNames[tableName] {
		return fmt.Errorf("invalid cache source '%s'; valid sources are: openlibrary", c.Source)
	}

	slog.Info("Clearing cache", "source", c.Source, "database", dbPath)

	cacheDB, err := Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	defer func() { _ = cacheDB.Close() }()

	if _, err := cacheDB.ClearAll(tableName); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
