package testutil

import (
	"testing"

	"github.com/spf13/viper"
)

// ResetViper clears the global viper instance and schedules another reset
// when the test completes.
func ResetViper(t *testing.T) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
}

// SetViperValue sets a viper configuration value and schedules cleanup.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	oldValue := viper.Get(key)
	hadValue := viper.IsSet(key)

	viper.Set(key, value)

	t.Cleanup(func() {
		if hadValue {
			viper.Set(key, oldValue)
		}
		// viper has no Unset, so an unset key can't be restored
	})
}

// SetupTestCache points the response cache at a database inside env.
// Returns the cache directory.
func SetupTestCache(t *testing.T, env *TestEnv) string {
	t.Helper()

	cacheDir := env.Path("cache")
	env.MkdirAll("cache")

	SetViperValue(t, "cache.enabled", true)
	SetViperValue(t, "cache.dbfile", env.Path("cache", "test-cache.db"))
	SetViperValue(t, "cache.ttl", "24h")

	return cacheDir
}

// SetupLocalDB configures the local SQLite database and staging directory
// inside env. Returns the database path.
func SetupLocalDB(t *testing.T, env *TestEnv) string {
	t.Helper()

	dbPath := env.Path("books_authors.db")
	env.MkdirAll("staging")

	SetViperValue(t, "local.dbfile", dbPath)
	SetViperValue(t, "local.staging_dir", env.Path("staging"))

	return dbPath
}
