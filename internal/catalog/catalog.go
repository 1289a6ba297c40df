// Package catalog holds the normalized Book and Author records and the
// extraction of those records from Open Library subject listings.
package catalog

const (
	UnknownTitle  = "Unknown Title"
	UnknownID     = "Unknown ID"
	UnknownAuthor = "Unknown Author"
)

// Author is identified by the last path segment of its Open Library key
type Author struct {
	AuthorID   string `json:"author_id" yaml:"author_id"`
	AuthorName string `json:"author_name" yaml:"author_name"`
}

// Book is one (work, author) pair. Multi-author works yield one Book per author.
type Book struct {
	BookID     string `json:"book_id" yaml:"book_id"`
	BookTitle  string `json:"book_title" yaml:"book_title"`
	AuthorID   string `json:"author_id" yaml:"author_id"`
	AuthorName string `json:"author_name" yaml:"author_name"`
}

// Extraction is the result of normalizing a subject listing
type Extraction struct {
	Books   []Book
	Authors []Author
	// Works is the number of works in the listing
	Works int
	// AuthorlessWorks counts works that produced no Book because they list no authors
	AuthorlessWorks int
}

// Empty reports whether there is nothing to save
func (e Extraction) Empty() bool {
	return len(e.Books) == 0 || len(e.Authors) == 0
}
