// Package staging writes extracted records to CSV files and reads them back
// for the file-backed load path.
package staging

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/lepinkainen/bookpipeline/internal/catalog"
	"github.com/lepinkainen/bookpipeline/internal/csvutil"
)

const (
	BooksFile   = "books.csv"
	AuthorsFile = "authors.csv"
)

var (
	BooksHeader   = []string{"Book ID", "Book Title", "Author ID", "Author Name"}
	AuthorsHeader = []string{"Author ID", "Author Name"}
)

// Files are the paths of one staged extraction
type Files struct {
	Books   string
	Authors string
}

// FilesIn returns the staging file paths under dir
func FilesIn(dir string) Files {
	return Files{
		Books:   filepath.Join(dir, BooksFile),
		Authors: filepath.Join(dir, AuthorsFile),
	}
}

// Write stages books and authors as CSV files under dir
func Write(dir string, books []catalog.Book, authors []catalog.Author) (Files, error) {
	files := FilesIn(dir)

	if err := csvutil.WriteCSV(files.Books, BooksHeader, books, func(b catalog.Book) []string {
		return []string{b.BookID, b.BookTitle, b.AuthorID, b.AuthorName}
	}); err != nil {
		return files, fmt.Errorf("failed to write %s: %w", files.Books, err)
	}

	if err := csvutil.WriteCSV(files.Authors, AuthorsHeader, authors, func(a catalog.Author) []string {
		return []string{a.AuthorID, a.AuthorName}
	}); err != nil {
		return files, fmt.Errorf("failed to write %s: %w", files.Authors, err)
	}

	slog.Info("Data saved to CSV files", "books", files.Books, "authors", files.Authors)
	return files, nil
}

// ReadBooks parses a staged books file
func ReadBooks(path string) ([]catalog.Book, error) {
	return csvutil.ProcessCSV(path, func(record []string) (catalog.Book, error) {
		return catalog.Book{
			BookID:     record[0],
			BookTitle:  record[1],
			AuthorID:   record[2],
			AuthorName: record[3],
		}, nil
	}, csvutil.ProcessorOptions{
		FieldsPerRecord: len(BooksHeader),
		Header:          BooksHeader,
		SkipInvalid:     true,
	})
}

// ReadAuthors parses a staged authors file
func ReadAuthors(path string) ([]catalog.Author, error) {
	return csvutil.ProcessCSV(path, func(record []string) (catalog.Author, error) {
		return catalog.Author{
			AuthorID:   record[0],
			AuthorName: record[1],
		}, nil
	}, csvutil.ProcessorOptions{
		FieldsPerRecord: len(AuthorsHeader),
		Header:          AuthorsHeader,
		SkipInvalid:     true,
	})
}
