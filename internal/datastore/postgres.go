package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lepinkainen/bookpipeline/internal/catalog"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS authors (
		author_id VARCHAR PRIMARY KEY,
		author_name VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		book_id VARCHAR PRIMARY KEY,
		book_title VARCHAR,
		author_id VARCHAR REFERENCES authors(author_id)
	)`,
}

const (
	postgresUpsertAuthorSQL = `
INSERT INTO authors (author_id, author_name) VALUES ($1, $2)
ON CONFLICT (author_id) DO UPDATE SET author_name = EXCLUDED.author_name`

	postgresUpsertBookSQL = `
INSERT INTO books (book_id, book_title, author_id) VALUES ($1, $2, $3)
ON CONFLICT (book_id) DO UPDATE SET
	book_title = EXCLUDED.book_title,
	author_id = EXCLUDED.author_id`
)

// pgxPool is the subset of *pgxpool.Pool the store needs, so pgxmock can stand in
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements the Store interface for Postgres-compatible
// databases such as CockroachDB
type PostgresStore struct {
	pool pgxPool
}

// OpenPostgres connects a pool to dsn and verifies it with a ping
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewPostgresStoreWithPool(pool), nil
}

// NewPostgresStoreWithPool wraps an existing pool
func NewPostgresStoreWithPool(pool pgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CloudDSN appends the TLS root certificate parameter to dbURL.
// An empty rootCert or a URL that already names one is returned unchanged.
func CloudDSN(dbURL, rootCert string) string {
	if rootCert == "" || strings.Contains(dbURL, "sslrootcert=") {
		return dbURL
	}
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return dbURL + sep + "sslrootcert=" + rootCert
}

// EnsureSchema creates the authors and books tables if they don't exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	slog.Info("Checking and creating tables if they do not exist")
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// UpsertAuthors merges authors by author_id
func (s *PostgresStore) UpsertAuthors(ctx context.Context, authors []catalog.Author) (int, error) {
	rows := make([][]any, 0, len(authors))
	for _, a := range authors {
		rows = append(rows, []any{a.AuthorID, a.AuthorName})
	}
	return s.upsert(ctx, postgresUpsertAuthorSQL, rows)
}

// UpsertBooks merges books by book_id
func (s *PostgresStore) UpsertBooks(ctx context.Context, books []catalog.Book) (int, error) {
	rows := make([][]any, 0, len(books))
	for _, b := range books {
		rows = append(rows, []any{b.BookID, b.BookTitle, b.AuthorID})
	}
	return s.upsert(ctx, postgresUpsertBookSQL, rows)
}

func (s *PostgresStore) upsert(ctx context.Context, query string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, args := range rows {
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return 0, errors.Join(
				fmt.Errorf("failed to upsert record %v: %w", args[0], err),
				rollback(ctx, tx),
			)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(rows), nil
}

func rollback(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// AverageBooksPerAuthor returns the mean book count per author, nil if there are no books
func (s *PostgresStore) AverageBooksPerAuthor(ctx context.Context) (*float64, error) {
	var avg pgtype.Float8
	if err := s.pool.QueryRow(ctx, averageBooksPerAuthorSQL).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to query average books per author: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// Counts returns the number of author and book rows
func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.pool.QueryRow(ctx, countsSQL).Scan(&c.Authors, &c.Books); err != nil {
		return Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
