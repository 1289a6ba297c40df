package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// DuneSubjectJSON is a one-work subject listing.
const DuneSubjectJSON = `{
  "key": "/subjects/science_fiction",
  "name": "Science fiction",
  "work_count": 1,
  "works": [
    {
      "key": "/works/OL1W",
      "title": "Dune",
      "authors": [{"key": "/authors/OL1A", "name": "Frank Herbert"}]
    }
  ]
}`

// SubjectServer serves body as JSON on every request and counts the hits.
type SubjectServer struct {
	*httptest.Server
	hits atomic.Int64
}

// NewSubjectServer starts a server that answers every request with status
// and body. It is closed when the test completes.
func NewSubjectServer(t *testing.T, status int, body string) *SubjectServer {
	t.Helper()

	s := &SubjectServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)

	return s
}

// Hits returns the number of requests served.
func (s *SubjectServer) Hits() int64 {
	return s.hits.Load()
}
