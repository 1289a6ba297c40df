// Package config loads pipeline settings from defaults, an optional
// config.yaml, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lepinkainen/bookpipeline/internal/openlibrary"
	"github.com/spf13/viper"
)

// Mode selects the pipeline variant
type Mode string

const (
	// ModeCloud writes directly to the database named by DB_URL
	ModeCloud Mode = "cloud"
	// ModeLocal stages CSV files and loads them into a local SQLite file
	ModeLocal Mode = "local"
)

// Config is the typed view of all settings
type Config struct {
	Subject     string            `mapstructure:"subject"`
	OpenLibrary OpenLibraryConfig `mapstructure:"openlibrary"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Local       LocalConfig       `mapstructure:"local"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	History     HistoryConfig     `mapstructure:"history"`
}

type OpenLibraryConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	RootCert string `mapstructure:"root_cert"`
}

type LocalConfig struct {
	DBFile     string `mapstructure:"dbfile"`
	StagingDir string `mapstructure:"staging_dir"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	DBFile  string        `mapstructure:"dbfile"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job"`
}

type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

type HistoryConfig struct {
	Table string        `mapstructure:"table"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// SetDefaults registers every default value on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("subject", openlibrary.DefaultSubject)

	v.SetDefault("openlibrary.base_url", openlibrary.DefaultBaseURL)
	v.SetDefault("openlibrary.user_agent", openlibrary.DefaultUserAgent)
	v.SetDefault("openlibrary.timeout", openlibrary.DefaultTimeout.String())
	v.SetDefault("openlibrary.rate_per_second", 1.0)

	v.SetDefault("database.url", "")
	v.SetDefault("database.root_cert", "./root.crt")

	v.SetDefault("local.dbfile", "books_authors.db")
	v.SetDefault("local.staging_dir", ".")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.dbfile", "./cache.db")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("metrics.pushgateway", "")
	v.SetDefault("metrics.job", "bookpipeline")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "bookpipeline")

	v.SetDefault("history.table", "")
	v.SetDefault("history.ttl", "2160h")
}

// Init wires defaults, environment variables and the optional config file
// into v. A missing config file is not an error.
func Init(v *viper.Viper, configPaths ...string) error {
	SetDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", "DB_URL"); err != nil {
		return fmt.Errorf("failed to bind DB_URL: %w", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{"."}
	}
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Debug("Config file not found, using defaults and environment")
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	slog.Debug("Loaded config file", "file", v.ConfigFileUsed())
	return nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds a Config from v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate enforces the values the given mode needs
func (c *Config) Validate(mode Mode) error {
	if c.Subject == "" {
		return errors.New("subject must be set")
	}
	if c.OpenLibrary.Timeout <= 0 {
		return errors.New("openlibrary.timeout must be > 0")
	}
	if c.Cache.Enabled && c.Cache.DBFile == "" {
		return errors.New("cache.dbfile must be set when the cache is enabled")
	}

	switch mode {
	case ModeCloud:
		if c.Database.URL == "" {
			return errors.New("database URL is required (set DB_URL or database.url in config)")
		}
	case ModeLocal:
		if c.Local.DBFile == "" {
			return errors.New("local.dbfile must be set")
		}
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	return nil
}

// SourceURL is the subject listing the pipeline reads
func (c *Config) SourceURL() string {
	return openlibrary.SubjectURL(c.OpenLibrary.BaseURL, c.Subject)
}
