package catalog

import (
	"log/slog"
	"strings"

	"github.com/lepinkainen/bookpipeline/internal/openlibrary"
)

// LastSegment returns the part of key after its final "/"
func LastSegment(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Extract normalizes a subject listing into books and authors.
// A nil listing or one without a works collection yields an empty Extraction.
func Extract(resp *openlibrary.SubjectResponse) Extraction {
	if resp == nil || resp.Works == nil {
		slog.Error("Invalid data format", "reason", "missing works collection")
		return Extraction{}
	}

	result := Extraction{Works: len(resp.Works)}
	seen := make(map[Author]struct{})

	for _, work := range resp.Works {
		bookID := LastSegment(valueOr(work.Key, UnknownID))
		bookTitle := valueOr(work.Title, UnknownTitle)

		if len(work.Authors) == 0 {
			result.AuthorlessWorks++
			slog.Warn("Work has no authors, skipping", "book_id", bookID, "title", bookTitle)
			continue
		}

		for _, ref := range work.Authors {
			author := Author{
				AuthorID:   LastSegment(valueOr(ref.Key, UnknownID)),
				AuthorName: valueOr(ref.Name, UnknownAuthor),
			}
			if _, ok := seen[author]; !ok {
				seen[author] = struct{}{}
				result.Authors = append(result.Authors, author)
			}

			result.Books = append(result.Books, Book{
				BookID:     bookID,
				BookTitle:  bookTitle,
				AuthorID:   author.AuthorID,
				AuthorName: author.AuthorName,
			})
		}
	}

	slog.Info("Extracted records",
		"works", result.Works,
		"books", len(result.Books),
		"authors", len(result.Authors),
		"authorless_works", result.AuthorlessWorks,
	)

	return result
}

func valueOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
