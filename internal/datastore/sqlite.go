package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/bookpipeline/internal/catalog"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS authors (
	author_id TEXT PRIMARY KEY NOT NULL,
	author_name TEXT
);

CREATE TABLE IF NOT EXISTS books (
	book_id TEXT PRIMARY KEY NOT NULL,
	book_title TEXT,
	author_id TEXT REFERENCES authors(author_id)
);

CREATE INDEX IF NOT EXISTS idx_books_author_id ON books(author_id);
`

const (
	sqliteUpsertAuthorSQL = `
INSERT INTO authors (author_id, author_name) VALUES (?, ?)
ON CONFLICT(author_id) DO UPDATE SET author_name = excluded.author_name`

	sqliteUpsertBookSQL = `
INSERT INTO books (book_id, book_title, author_id) VALUES (?, ?, ?)
ON CONFLICT(book_id) DO UPDATE SET
	book_title = excluded.book_title,
	author_id = excluded.author_id`
)

// SQLiteStore implements the Store interface for a local SQLite file
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLiteStore instance
func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{
		dbPath: dbPath,
	}
}

// OpenSQLite creates and connects a SQLiteStore
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	s := NewSQLiteStore(dbPath)
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Connect opens a connection to the SQLite database with foreign keys enforced
func (s *SQLiteStore) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// foreign_keys is a per-connection pragma
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return errors.Join(fmt.Errorf("failed to connect to database: %w", err), db.Close())
	}

	s.db = db
	return nil
}

// EnsureSchema creates the authors and books tables if they don't exist
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	slog.Info("Checking and creating tables if they do not exist", "database", s.dbPath)
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// UpsertAuthors merges authors by author_id
func (s *SQLiteStore) UpsertAuthors(ctx context.Context, authors []catalog.Author) (int, error) {
	rows := make([][]any, 0, len(authors))
	for _, a := range authors {
		rows = append(rows, []any{a.AuthorID, a.AuthorName})
	}
	return s.upsert(ctx, sqliteUpsertAuthorSQL, rows)
}

// UpsertBooks merges books by book_id
func (s *SQLiteStore) UpsertBooks(ctx context.Context, books []catalog.Book) (int, error) {
	rows := make([][]any, 0, len(books))
	for _, b := range books {
		rows = append(rows, []any{b.BookID, b.BookTitle, b.AuthorID})
	}
	return s.upsert(ctx, sqliteUpsertBookSQL, rows)
}

func (s *SQLiteStore) upsert(ctx context.Context, query string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback if we don't commit - ignore errors as they're expected if transaction was committed
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to upsert record %v: %w", args[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(rows), nil
}

// AverageBooksPerAuthor returns the mean book count per author, nil if there are no books
func (s *SQLiteStore) AverageBooksPerAuthor(ctx context.Context) (*float64, error) {
	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, averageBooksPerAuthorSQL).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to query average books per author: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// Counts returns the number of author and book rows
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.db.QueryRowContext(ctx, countsSQL).Scan(&c.Authors, &c.Books); err != nil {
		return Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
