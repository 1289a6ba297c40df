package datastore

import (
	"context"

	"github.com/lepinkainen/bookpipeline/internal/catalog"
)

// Store persists authors and books and answers the per-author aggregate.
// Implementations open their connection on construction and release it on Close.
type Store interface {
	// EnsureSchema creates the authors and books tables if they don't exist
	EnsureSchema(ctx context.Context) error

	// UpsertAuthors merges authors by author_id in a single transaction and
	// returns the number of rows written
	UpsertAuthors(ctx context.Context, authors []catalog.Author) (int, error)

	// UpsertBooks merges books by book_id in a single transaction and
	// returns the number of rows written
	UpsertBooks(ctx context.Context, books []catalog.Book) (int, error)

	// AverageBooksPerAuthor returns the mean number of books per author_id,
	// or nil when the books table is empty
	AverageBooksPerAuthor(ctx context.Context) (*float64, error)

	// Counts returns the current number of author and book rows
	Counts(ctx context.Context) (Counts, error)

	// Close releases the underlying connection
	Close() error
}

// Counts holds table row counts
type Counts struct {
	Authors int64 `json:"authors" yaml:"authors"`
	Books   int64 `json:"books" yaml:"books"`
}

// Both dialects accept the same aggregate; the cast keeps Postgres and
// CockroachDB from returning NUMERIC.
const averageBooksPerAuthorSQL = `
SELECT CAST(AVG(book_count) AS DOUBLE PRECISION)
FROM (
	SELECT author_id, COUNT(book_id) AS book_count
	FROM books
	GROUP BY author_id
) AS per_author`

const countsSQL = `SELECT (SELECT COUNT(*) FROM authors), (SELECT COUNT(*) FROM books)`
