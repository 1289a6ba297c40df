package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/bookpipeline/internal/cache"
	"github.com/lepinkainen/bookpipeline/internal/config"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"
)

// CLI represents the complete command structure for the bookpipeline application
type CLI struct {
	// Global flags
	LogLevel  string `help:"Log level (debug, info, warn, error)" default:"info" enum:"debug,info,warn,error"`
	Subject   string `help:"Open Library subject to fetch (defaults to subject in config)"`
	ConfigDir string `help:"Directory searched for config.yaml" default:"." type:"path"`
	Report    string `help:"Also write the run status as YAML to this file" type:"path"`

	// Cache flags
	CacheResponses bool   `help:"Cache Open Library responses in the cache database"`
	CacheDBFile    string `help:"Path to cache SQLite database file"`
	CacheTTL       string `help:"Cache time-to-live duration (e.g., 24h)"`

	// Metrics flags
	Pushgateway string `help:"Prometheus Pushgateway URL for run metrics"`

	Cloud CloudCmd `cmd:"" help:"Fetch and upsert directly into the cloud database named by DB_URL"`
	Local LocalCmd `cmd:"" help:"Fetch, stage to CSV and load into a local SQLite database"`
	Cache CacheCmd `cmd:"" help:"Manage the Open Library response cache"`
}

// CloudCmd represents the cloud pipeline command
type CloudCmd struct {
	DBURL    string `name:"db-url" help:"Database connection string (defaults to DB_URL)"`
	RootCert string `help:"TLS root certificate appended to the connection string"`
}

// LocalCmd represents the local pipeline command
type LocalCmd struct {
	DBFile        string `help:"Path to the SQLite database file"`
	StagingDir    string `help:"Directory for the staged CSV files" type:"path"`
	ArchiveBucket string `help:"S3 bucket receiving a copy of the staged files"`
}

// CacheCmd represents the cache command and its subcommands
type CacheCmd struct {
	Clear cache.ClearCmd `cmd:"" help:"Remove every cached response for a source"`
}

// Execute runs the Kong-based CLI
func Execute() {
	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("bookpipeline"),
		kong.Description("Fetch Open Library subject listings into a relational store and report books per author."),
		kong.UsageOnError(),
	)

	InitLogging(cli.LogLevel)

	if err := initConfig(viper.GetViper(), &cli); err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := ctx.Run(&cli); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig(v *viper.Viper, cli *CLI) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	if err := config.Init(v, cli.ConfigDir); err != nil {
		return err
	}
	applyGlobalFlags(v, cli)
	return nil
}

// applyGlobalFlags lets explicitly set flags override config values
func applyGlobalFlags(v *viper.Viper, cli *CLI) {
	setIfNotEmpty(v, "subject", cli.Subject)
	setIfNotEmpty(v, "cache.dbfile", cli.CacheDBFile)
	setIfNotEmpty(v, "cache.ttl", cli.CacheTTL)
	setIfNotEmpty(v, "metrics.pushgateway", cli.Pushgateway)
	if cli.CacheResponses {
		v.Set("cache.enabled", true)
	}
}

func setIfNotEmpty(v *viper.Viper, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// Run methods for each command

func (c *CloudCmd) Run(cli *CLI) error {
	v := viper.GetViper()
	setIfNotEmpty(v, "database.url", c.DBURL)
	setIfNotEmpty(v, "database.root_cert", c.RootCert)

	return runCommand(v, config.ModeCloud, cli.Report)
}

func (l *LocalCmd) Run(cli *CLI) error {
	v := viper.GetViper()
	setIfNotEmpty(v, "local.dbfile", l.DBFile)
	setIfNotEmpty(v, "local.staging_dir", l.StagingDir)
	setIfNotEmpty(v, "archive.bucket", l.ArchiveBucket)

	return runCommand(v, config.ModeLocal, cli.Report)
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// InitLogging installs the human-readable slog handler at level
func InitLogging(level string) {
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: parseLogLevel(level),
	})

	slog.SetDefault(slog.New(handler))
}
