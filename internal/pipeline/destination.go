package pipeline

import (
	"context"
	"log/slog"

	"github.com/lepinkainen/bookpipeline/internal/catalog"
	"github.com/lepinkainen/bookpipeline/internal/datastore"
	perrors "github.com/lepinkainen/bookpipeline/internal/errors"
	"github.com/lepinkainen/bookpipeline/internal/staging"
)

// Stage names reported in failures
const (
	StageFetch         = "fetch"
	StageExtract       = "extract"
	StageStageWrite    = "stage_write"
	StageArchive       = "archive"
	StageStageRead     = "stage_read"
	StageUpsertAuthors = "upsert_authors"
	StageUpsertBooks   = "upsert_books"
	StageAggregate     = "aggregate"
)

// Destination decides how extracted records reach the store
type Destination interface {
	// Name identifies the destination in reports
	Name() string
	// Save writes the extraction to store. Failures are logged and
	// returned in the result, never as an error.
	Save(ctx context.Context, store datastore.Store, extraction catalog.Extraction) SaveResult
}

// SaveResult summarizes one Save call
type SaveResult struct {
	AuthorsUpserted int
	BooksUpserted   int
	Failures        []*perrors.StageError
}

func (r *SaveResult) fail(stage string, err error) {
	r.Failures = append(r.Failures, perrors.NewStageError(stage, err))
}

// DirectDestination upserts the in-memory records straight into the store
type DirectDestination struct{}

func (DirectDestination) Name() string { return "direct" }

func (DirectDestination) Save(ctx context.Context, store datastore.Store, extraction catalog.Extraction) SaveResult {
	return upsertAll(ctx, store, extraction.Books, extraction.Authors)
}

// Archiver copies staged files somewhere durable
type Archiver interface {
	Upload(ctx context.Context, files ...string) ([]string, error)
}

// StagedDestination writes the records to CSV files under Dir, optionally
// archives them, then loads the files back into the store
type StagedDestination struct {
	Dir      string
	Archiver Archiver
}

func (d StagedDestination) Name() string { return "staged" }

func (d StagedDestination) Save(ctx context.Context, store datastore.Store, extraction catalog.Extraction) SaveResult {
	var result SaveResult

	files, err := staging.Write(d.Dir, extraction.Books, extraction.Authors)
	if err != nil {
		slog.Error("Error saving data to CSV files", "dir", d.Dir, "error", err)
		result.fail(StageStageWrite, err)
		return result
	}

	if d.Archiver != nil {
		if _, err := d.Archiver.Upload(ctx, files.Books, files.Authors); err != nil {
			slog.Error("Error archiving staging files", "error", err)
			result.fail(StageArchive, err)
		}
	}

	authors, err := staging.ReadAuthors(files.Authors)
	if err != nil {
		slog.Error("Error reading staged authors", "file", files.Authors, "error", err)
		result.fail(StageStageRead, err)
		return result
	}
	books, err := staging.ReadBooks(files.Books)
	if err != nil {
		slog.Error("Error reading staged books", "file", files.Books, "error", err)
		result.fail(StageStageRead, err)
		return result
	}

	loaded := upsertAll(ctx, store, books, authors)
	loaded.Failures = append(result.Failures, loaded.Failures...)
	return loaded
}

// upsertAll writes authors before books so every referenced author exists
func upsertAll(ctx context.Context, store datastore.Store, books []catalog.Book, authors []catalog.Author) SaveResult {
	var result SaveResult

	slog.Info("Inserting data into the database", "authors", len(authors), "books", len(books))

	n, err := store.UpsertAuthors(ctx, authors)
	if err != nil {
		slog.Error("Error inserting authors into the database", "error", err)
		result.fail(StageUpsertAuthors, err)
	} else {
		result.AuthorsUpserted = n
	}

	n, err = store.UpsertBooks(ctx, books)
	if err != nil {
		slog.Error("Error inserting books into the database", "error", err)
		result.fail(StageUpsertBooks, err)
	} else {
		result.BooksUpserted = n
	}

	if len(result.Failures) == 0 {
		slog.Info("Data has been inserted into the database")
	}
	return result
}
