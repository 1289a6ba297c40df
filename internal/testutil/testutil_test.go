package testutil

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestEnv_Path(t *testing.T) {
	env := NewTestEnv(t)

	// Test basic path
	path := env.Path("subdir", "file.txt")
	assert.True(t, filepath.IsAbs(path))
	assert.Contains(t, path, "subdir")
	assert.Contains(t, path, "file.txt")
}

func TestTestEnv_Path_WithinSandbox(t *testing.T) {
	env := NewTestEnv(t)

	// These should work
	_ = env.Path("subdir")
	_ = env.Path("subdir", "nested")
	_ = env.Path("file.txt")
}

func TestTestEnv_WriteReadFile(t *testing.T) {
	env := NewTestEnv(t)

	content := []byte("test content")
	env.WriteFile("test.txt", content)

	read := env.ReadFile("test.txt")
	assert.Equal(t, content, read)
}

func TestTestEnv_WriteReadFileString(t *testing.T) {
	env := NewTestEnv(t)

	content := "test string content"
	env.WriteFileString("test.txt", content)

	read := env.ReadFileString("test.txt")
	assert.Equal(t, content, read)
}

func TestTestEnv_MkdirAll(t *testing.T) {
	env := NewTestEnv(t)

	env.MkdirAll("nested/dir/structure")

	path := env.Path("nested/dir/structure")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestTestEnv_FileExists(t *testing.T) {
	env := NewTestEnv(t)

	assert.False(t, env.FileExists("nonexistent.txt"))

	env.WriteFileString("exists.txt", "content")
	assert.True(t, env.FileExists("exists.txt"))
}

func TestTestEnv_RequireFileExists(t *testing.T) {
	env := NewTestEnv(t)
	env.WriteFileString("exists.txt", "content")

	// This should not panic
	env.RequireFileExists("exists.txt")
}

func TestTestEnv_RequireFileNotExists(t *testing.T) {
	env := NewTestEnv(t)

	// This should not panic
	env.RequireFileNotExists("nonexistent.txt")
}

func TestTestEnv_AssertFileContains(t *testing.T) {
	env := NewTestEnv(t)

	env.WriteFileString("test.txt", "hello world")
	env.AssertFileContains("test.txt", "world")
}

func TestTestEnv_AssertFileEquals(t *testing.T) {
	env := NewTestEnv(t)

	content := "exact content"
	env.WriteFileString("test.txt", content)
	env.AssertFileEquals("test.txt", content)
}

// GoldenHelper tests

func TestGoldenHelper_AssertGolden(t *testing.T) {
	env := NewTestEnv(t)

	// Create a golden directory
	goldenDir := env.Path("golden")
	env.MkdirAll("golden")

	// Create a golden file
	expectedContent := []byte("expected content")
	env.WriteFile("golden/test.golden", expectedContent)

	// Create helper
	golden := NewGoldenHelper(t, goldenDir)

	// Test assertion
	golden.AssertGolden("test.golden", expectedContent)
}

func TestGoldenHelper_AssertGoldenString(t *testing.T) {
	env := NewTestEnv(t)

	goldenDir := env.Path("golden")
	env.MkdirAll("golden")

	expectedContent := "expected string content"
	env.WriteFileString("golden/test.golden", expectedContent)

	golden := NewGoldenHelper(t, goldenDir)
	golden.AssertGoldenString("test.golden", expectedContent)
}

func TestGoldenHelper_GoldenPath(t *testing.T) {
	golden := NewGoldenHelper(t, "/some/golden/dir")

	path := golden.GoldenPath("test.golden")
	assert.Equal(t, "/some/golden/dir/test.golden", path)
}

func TestGoldenHelper_IsUpdateMode(t *testing.T) {
	// Without UPDATE_GOLDEN env var
	golden := NewGoldenHelper(t, "testdata")
	assert.False(t, golden.IsUpdateMode())
}

func TestGoldenHelper_MustReadGolden(t *testing.T) {
	env := NewTestEnv(t)

	goldenDir := env.Path("golden")
	env.MkdirAll("golden")

	content := []byte("golden content")
	env.WriteFile("golden/test.golden", content)

	golden := NewGoldenHelper(t, goldenDir)
	read := golden.MustReadGolden("test.golden")
	assert.Equal(t, content, read)
}

func TestGoldenHelper_Exists(t *testing.T) {
	env := NewTestEnv(t)

	goldenDir := env.Path("golden")
	env.MkdirAll("golden")

	golden := NewGoldenHelper(t, goldenDir)
	assert.False(t, golden.Exists("nonexistent.golden"))

	env.WriteFileString("golden/exists.golden", "content")
	assert.True(t, golden.Exists("exists.golden"))
}

// Viper helper tests

func TestResetViper(t *testing.T) {
	viper.Set("subject", "outer")
	defer viper.Reset()

	t.Run("inner", func(t *testing.T) {
		ResetViper(t)
		assert.False(t, viper.IsSet("subject"))
		viper.Set("subject", "inner")
	})

	assert.False(t, viper.IsSet("subject"))
}

func TestSetViperValue(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("subject", "fantasy")

	t.Run("inner", func(t *testing.T) {
		SetViperValue(t, "subject", "science_fiction")
		assert.Equal(t, "science_fiction", viper.GetString("subject"))
	})

	assert.Equal(t, "fantasy", viper.GetString("subject"))
}

func TestSetupTestCache(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	env := NewTestEnv(t)
	cacheDir := SetupTestCache(t, env)

	assert.DirExists(t, cacheDir)
	assert.True(t, viper.GetBool("cache.enabled"))
	assert.Contains(t, viper.GetString("cache.dbfile"), "test-cache.db")
	assert.Equal(t, "24h", viper.GetString("cache.ttl"))
}

func TestSetupLocalDB(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	env := NewTestEnv(t)
	dbPath := SetupLocalDB(t, env)

	assert.Equal(t, filepath.Join(env.RootDir(), "books_authors.db"), dbPath)
	assert.Equal(t, dbPath, viper.GetString("local.dbfile"))
	assert.DirExists(t, viper.GetString("local.staging_dir"))
}

func TestGoldenHelper_AssertGoldenJSON(t *testing.T) {
	env := NewTestEnv(t)
	env.WriteFileString("golden/status.json", `{"statusCode": 200, "body": "ok"}`)

	golden := NewGoldenHelper(t, env.Path("golden"))
	golden.AssertGoldenJSON("status.json", []byte(`{"body":"ok","statusCode":200}`))
}

func TestSubjectServer(t *testing.T) {
	server := NewSubjectServer(t, http.StatusOK, DuneSubjectJSON)

	resp, err := http.Get(server.URL + "/subjects/science_fiction.json")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, DuneSubjectJSON, string(body))
	assert.Equal(t, int64(1), server.Hits())
}
