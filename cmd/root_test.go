package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/bookpipeline/internal/cache"
	"github.com/lepinkainen/bookpipeline/internal/catalog"
	"github.com/lepinkainen/bookpipeline/internal/datastore"
	perrors "github.com/lepinkainen/bookpipeline/internal/errors"
	"github.com/lepinkainen/bookpipeline/internal/pipeline"
	"github.com/lepinkainen/bookpipeline/internal/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func resetCmdState(t *testing.T) *testutil.TestEnv {
	t.Helper()

	testutil.ResetViper(t)
	t.Setenv("DB_URL", "")

	origPostgres, origSQLite, origArchiver, origRecorder, origStdout := openPostgres, openSQLite, newArchiver, newRunRecorder, stdout
	t.Cleanup(func() {
		openPostgres, openSQLite, newArchiver, newRunRecorder, stdout = origPostgres, origSQLite, origArchiver, origRecorder, origStdout
	})

	return testutil.NewTestEnv(t)
}

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()

	originalArgs := os.Args
	os.Args = append([]string{"bookpipeline"}, args...)
	t.Cleanup(func() { os.Args = originalArgs })

	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("bookpipeline"),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			t.Fatalf("unexpected Kong exit %d", code)
		}),
	)

	return cli, ctx
}

// runCLI parses args, loads config from env's root and runs the command,
// returning what it printed
func runCLI(t *testing.T, env *testutil.TestEnv, args ...string) (string, error) {
	t.Helper()

	cli, ctx := parseCLI(t, append([]string{"--config-dir", env.RootDir()}, args...)...)
	require.NoError(t, initConfig(viper.GetViper(), cli))

	var out bytes.Buffer
	stdout = &out

	err := ctx.Run(cli)
	return out.String(), err
}

func decodeStatus(t *testing.T, out string) pipeline.Status {
	t.Helper()

	var status pipeline.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	return status
}

type fakeArchiver struct {
	uploaded []string
}

func (a *fakeArchiver) Upload(_ context.Context, files ...string) ([]string, error) {
	a.uploaded = append(a.uploaded, files...)
	return files, nil
}

type fakeRunRecorder struct {
	statuses []pipeline.Status
}

func (r *fakeRunRecorder) Record(_ context.Context, status pipeline.Status) (string, error) {
	r.statuses = append(r.statuses, status)
	return "run-1", nil
}

type brokenSchemaStore struct {
	closed bool
}

func (s *brokenSchemaStore) EnsureSchema(context.Context) error {
	return errors.New("permission denied")
}

func (s *brokenSchemaStore) UpsertAuthors(context.Context, []catalog.Author) (int, error) {
	return 0, nil
}

func (s *brokenSchemaStore) UpsertBooks(context.Context, []catalog.Book) (int, error) {
	return 0, nil
}

func (s *brokenSchemaStore) AverageBooksPerAuthor(context.Context) (*float64, error) {
	return nil, nil
}

func (s *brokenSchemaStore) Counts(context.Context) (datastore.Counts, error) {
	return datastore.Counts{}, nil
}

func (s *brokenSchemaStore) Close() error {
	s.closed = true
	return nil
}

func TestCommandParsing(t *testing.T) {
	resetCmdState(t)

	cli, ctx := parseCLI(t, "--subject", "fantasy", "cloud", "--db-url", "postgresql://u@host/db", "--root-cert", "ca.crt")
	assert.Equal(t, "cloud", ctx.Command())
	assert.Equal(t, "fantasy", cli.Subject)
	assert.Equal(t, "postgresql://u@host/db", cli.Cloud.DBURL)
	assert.Equal(t, "ca.crt", cli.Cloud.RootCert)
	assert.Equal(t, "info", cli.LogLevel)

	cli, ctx = parseCLI(t, "local", "--db-file", "books.db", "--archive-bucket", "books")
	assert.Equal(t, "local", ctx.Command())
	assert.Equal(t, "books.db", cli.Local.DBFile)
	assert.Equal(t, "books", cli.Local.ArchiveBucket)

	cli, ctx = parseCLI(t, "cache", "clear")
	assert.Equal(t, "cache clear <source>", ctx.Command())
	assert.Equal(t, "openlibrary", cli.Cache.Clear.Source)
}

func TestApplyGlobalFlags(t *testing.T) {
	resetCmdState(t)

	v := viper.New()
	v.Set("subject", "science_fiction")
	v.Set("cache.dbfile", "./cache.db")

	applyGlobalFlags(v, &CLI{
		Subject:        "fantasy",
		CacheResponses: true,
		CacheTTL:       "12h",
		Pushgateway:    "http://localhost:9091",
	})

	assert.Equal(t, "fantasy", v.GetString("subject"))
	assert.True(t, v.GetBool("cache.enabled"))
	assert.Equal(t, "./cache.db", v.GetString("cache.dbfile"), "unset flags keep config values")
	assert.Equal(t, "12h", v.GetString("cache.ttl"))
	assert.Equal(t, "http://localhost:9091", v.GetString("metrics.pushgateway"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLogLevel("debug").String())
	assert.Equal(t, "WARN", parseLogLevel("warn").String())
	assert.Equal(t, "INFO", parseLogLevel("bogus").String())
}

func TestLocalCommandRunsStagedPipeline(t *testing.T) {
	env := resetCmdState(t)
	server := testutil.NewSubjectServer(t, http.StatusOK, testutil.DuneSubjectJSON)
	testutil.SetViperValue(t, "openlibrary.base_url", server.URL)

	reportPath := env.Path("report.yaml")
	out, err := runCLI(t, env,
		"--report", reportPath,
		"local",
		"--db-file", env.Path("books_authors.db"),
		"--staging-dir", env.Path("staging"),
	)
	require.NoError(t, err)

	status := decodeStatus(t, out)
	assert.Equal(t, http.StatusOK, status.StatusCode)
	assert.Equal(t, "Pipeline executed successfully", status.Body)
	assert.Equal(t, "staged", status.Report.Destination)
	assert.Equal(t, server.URL+"/subjects/science_fiction.json", status.Report.SourceURL)
	assert.Equal(t, 1, status.Report.BooksUpserted)
	assert.Equal(t, 1, status.Report.AuthorsUpserted)
	require.NotNil(t, status.Report.AverageBooksPerAuthor)
	assert.InDelta(t, 1.0, *status.Report.AverageBooksPerAuthor, 1e-9)

	env.RequireFileExists("staging/books.csv")
	env.RequireFileExists("staging/authors.csv")

	var report pipeline.Status
	require.NoError(t, yaml.Unmarshal(env.ReadFile("report.yaml"), &report))
	assert.Equal(t, status.Report.BooksUpserted, report.Report.BooksUpserted)
	assert.Empty(t, report.Report.FailedStages)

	store, err := datastore.OpenSQLite(context.Background(), env.Path("books_authors.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, datastore.Counts{Authors: 1, Books: 1}, counts)
}

func TestLocalCommandArchivesStagedFiles(t *testing.T) {
	env := resetCmdState(t)
	server := testutil.NewSubjectServer(t, http.StatusOK, testutil.DuneSubjectJSON)
	testutil.SetViperValue(t, "openlibrary.base_url", server.URL)

	archiver := &fakeArchiver{}
	var gotBucket, gotPrefix string
	newArchiver = func(_ context.Context, bucket, prefix string) (pipeline.Archiver, error) {
		gotBucket, gotPrefix = bucket, prefix
		return archiver, nil
	}

	_, err := runCLI(t, env,
		"local",
		"--db-file", env.Path("books_authors.db"),
		"--staging-dir", env.Path("staging"),
		"--archive-bucket", "book-archive",
	)
	require.NoError(t, err)

	assert.Equal(t, "book-archive", gotBucket)
	assert.Equal(t, "bookpipeline", gotPrefix)
	assert.Equal(t, []string{env.Path("staging", "books.csv"), env.Path("staging", "authors.csv")}, archiver.uploaded)
}

func TestLocalCommandRecordsRunHistory(t *testing.T) {
	env := resetCmdState(t)
	server := testutil.NewSubjectServer(t, http.StatusOK, testutil.DuneSubjectJSON)
	testutil.SetViperValue(t, "openlibrary.base_url", server.URL)
	testutil.SetViperValue(t, "history.table", "bookpipeline-runs")

	runs := &fakeRunRecorder{}
	var gotTable string
	var gotTTL time.Duration
	newRunRecorder = func(_ context.Context, table string, ttl time.Duration) (runRecorder, error) {
		gotTable, gotTTL = table, ttl
		return runs, nil
	}

	_, err := runCLI(t, env,
		"local",
		"--db-file", env.Path("books_authors.db"),
		"--staging-dir", env.Path("staging"),
	)
	require.NoError(t, err)

	assert.Equal(t, "bookpipeline-runs", gotTable)
	assert.Equal(t, 90*24*time.Hour, gotTTL)
	require.Len(t, runs.statuses, 1)
	assert.Equal(t, 1, runs.statuses[0].Report.BooksUpserted)
}

func TestLocalCommandReportsFetchFailure(t *testing.T) {
	env := resetCmdState(t)
	server := testutil.NewSubjectServer(t, http.StatusServiceUnavailable, `{"error": "down"}`)
	testutil.SetViperValue(t, "openlibrary.base_url", server.URL)

	out, err := runCLI(t, env,
		"local",
		"--db-file", env.Path("books_authors.db"),
		"--staging-dir", env.Path("staging"),
	)
	require.NoError(t, err)

	status := decodeStatus(t, out)
	assert.Equal(t, http.StatusOK, status.StatusCode)
	assert.Equal(t, "Pipeline executed with failures: fetch", status.Body)
	assert.Equal(t, []string{"fetch"}, status.Report.FailedStages)
	assert.Nil(t, status.Report.AverageBooksPerAuthor)
	env.RequireFileNotExists("staging/books.csv")
}

func TestCloudCommandUsesRootCert(t *testing.T) {
	env := resetCmdState(t)
	server := testutil.NewSubjectServer(t, http.StatusOK, testutil.DuneSubjectJSON)
	testutil.SetViperValue(t, "openlibrary.base_url", server.URL)

	var gotDSN string
	openPostgres = func(ctx context.Context, dsn string) (datastore.Store, error) {
		gotDSN = dsn
		return openSQLite(ctx, env.Path("cloud.db"))
	}

	out, err := runCLI(t, env,
		"cloud",
		"--db-url", "postgresql://reader@db.example.com:26257/books?sslmode=verify-full",
		"--root-cert", "./root.crt",
	)
	require.NoError(t, err)

	assert.Equal(t, "postgresql://reader@db.example.com:26257/books?sslmode=verify-full&sslrootcert=./root.crt", gotDSN)

	status := decodeStatus(t, out)
	assert.Equal(t, "direct", status.Report.Destination)
	assert.Equal(t, 1, status.Report.BooksUpserted)
	env.RequireFileNotExists("books.csv")
}

func TestCloudCommandRequiresDatabaseURL(t *testing.T) {
	env := resetCmdState(t)

	_, err := runCLI(t, env, "cloud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}

func TestCloudCommandPropagatesSchemaFailure(t *testing.T) {
	env := resetCmdState(t)
	server := testutil.NewSubjectServer(t, http.StatusOK, testutil.DuneSubjectJSON)
	testutil.SetViperValue(t, "openlibrary.base_url", server.URL)

	store := &brokenSchemaStore{}
	openPostgres = func(context.Context, string) (datastore.Store, error) {
		return store, nil
	}

	out, err := runCLI(t, env, "cloud", "--db-url", "postgresql://u@host/db")
	require.Error(t, err)
	assert.True(t, perrors.IsSchemaError(err))
	assert.True(t, store.closed)
	assert.Zero(t, server.Hits(), "nothing is fetched without a schema")

	status := decodeStatus(t, out)
	assert.Equal(t, http.StatusInternalServerError, status.StatusCode)
}

func TestRunCloudReadsEnvironment(t *testing.T) {
	env := resetCmdState(t)
	env.Chdir(".")
	server := testutil.NewSubjectServer(t, http.StatusOK, testutil.DuneSubjectJSON)

	t.Setenv("DB_URL", "postgresql://u@host/db")
	t.Setenv("OPENLIBRARY_BASE_URL", server.URL)
	t.Setenv("DATABASE_ROOT_CERT", "")

	var gotDSN string
	openPostgres = func(ctx context.Context, dsn string) (datastore.Store, error) {
		gotDSN = dsn
		return openSQLite(ctx, env.Path("cloud.db"))
	}

	status, err := RunCloud(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "postgresql://u@host/db?sslrootcert=./root.crt", gotDSN)
	assert.Equal(t, http.StatusOK, status.StatusCode)
	assert.Equal(t, 1, status.Report.AuthorsUpserted)
	assert.Equal(t, int64(1), server.Hits())
}

func TestCacheClearCommand(t *testing.T) {
	env := resetCmdState(t)
	testutil.SetupTestCache(t, env)

	cacheDB, err := cache.Open(env.Path("cache", "test-cache.db"))
	require.NoError(t, err)
	require.NoError(t, cacheDB.Set("openlibrary_cache", "https://openlibrary.org/subjects/science_fiction.json", "{}"))
	_, found, err := cacheDB.Get("openlibrary_cache", "https://openlibrary.org/subjects/science_fiction.json", time.Hour)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, cacheDB.Close())

	cli, ctx := parseCLI(t, "cache", "clear", "openlibrary")
	require.NoError(t, ctx.Run(cli))

	cacheDB, err = cache.Open(env.Path("cache", "test-cache.db"))
	require.NoError(t, err)
	defer func() { _ = cacheDB.Close() }()

	_, found, err = cacheDB.Get("openlibrary_cache", "https://openlibrary.org/subjects/science_fiction.json", time.Hour)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheClearRejectsUnknownSource(t *testing.T) {
	resetCmdState(t)

	cli, ctx := parseCLI(t, "cache", "clear", "wikidata")
	err := ctx.Run(cli)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cache source")
}
