// Package pipeline runs one fetch, extract, save and aggregate pass over an
// Open Library subject.
package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lepinkainen/bookpipeline/internal/catalog"
	"github.com/lepinkainen/bookpipeline/internal/datastore"
	perrors "github.com/lepinkainen/bookpipeline/internal/errors"
	"github.com/lepinkainen/bookpipeline/internal/metrics"
	"github.com/lepinkainen/bookpipeline/internal/openlibrary"
)

const (
	successBody = "Pipeline executed successfully"
	failureBody = "Pipeline executed with failures"
	abortBody   = "Pipeline aborted"
)

// Fetcher retrieves a subject listing, returning nil when nothing could be fetched
type Fetcher interface {
	Fetch(ctx context.Context, url string) *openlibrary.SubjectResponse
}

// Status is returned by every run. StatusCode stays 200 unless the schema
// could not be created; recovered failures are listed in Report.
type Status struct {
	StatusCode int    `json:"statusCode" yaml:"statusCode"`
	Body       string `json:"body" yaml:"body"`
	Report     Report `json:"report" yaml:"report"`
}

// Report describes what a run did
type Report struct {
	Destination           string   `json:"destination" yaml:"destination"`
	SourceURL             string   `json:"source_url" yaml:"source_url"`
	Works                 int      `json:"works" yaml:"works"`
	BooksExtracted        int      `json:"books_extracted" yaml:"books_extracted"`
	AuthorsExtracted      int      `json:"authors_extracted" yaml:"authors_extracted"`
	AuthorlessWorks       int      `json:"authorless_works" yaml:"authorless_works"`
	AuthorsUpserted       int      `json:"authors_upserted" yaml:"authors_upserted"`
	BooksUpserted         int      `json:"books_upserted" yaml:"books_upserted"`
	FailedStages          []string `json:"failed_stages" yaml:"failed_stages"`
	AverageBooksPerAuthor *float64 `json:"average_books_per_author" yaml:"average_books_per_author"`
	DurationMS            int64    `json:"duration_ms" yaml:"duration_ms"`
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithMetrics records run metrics into r
func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Pipeline) {
		p.metrics = r
	}
}

// Pipeline wires a store, a fetcher and a destination together
type Pipeline struct {
	store       datastore.Store
	fetcher     Fetcher
	destination Destination
	sourceURL   string
	metrics     *metrics.Recorder
	now         func() time.Time
}

// New creates a Pipeline reading sourceURL
func New(store datastore.Store, fetcher Fetcher, destination Destination, sourceURL string, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:       store,
		fetcher:     fetcher,
		destination: destination,
		sourceURL:   sourceURL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline once. The only error returned is a
// *errors.SchemaError; every other failure is logged and reported in Status.
func (p *Pipeline) Run(ctx context.Context) (Status, error) {
	start := p.now()
	report := Report{
		Destination:  p.destination.Name(),
		SourceURL:    p.sourceURL,
		FailedStages: []string{},
	}

	if err := p.store.EnsureSchema(ctx); err != nil {
		slog.Error("Error creating tables", "error", err)
		report.DurationMS = p.now().Sub(start).Milliseconds()
		p.metrics.ObserveRun("aborted", p.now().Sub(start))
		return Status{StatusCode: http.StatusInternalServerError, Body: abortBody, Report: report}, perrors.NewSchemaError(err)
	}
	slog.Info("Tables checked and created if necessary")

	resp := p.fetcher.Fetch(ctx, p.sourceURL)
	switch {
	case resp == nil:
		p.recordFailure(&report, StageFetch)
	case resp.Works == nil:
		p.recordFailure(&report, StageExtract)
	}

	extraction := catalog.Extract(resp)
	report.Works = extraction.Works
	report.BooksExtracted = len(extraction.Books)
	report.AuthorsExtracted = len(extraction.Authors)
	report.AuthorlessWorks = extraction.AuthorlessWorks
	p.metrics.AddExtracted("books", report.BooksExtracted)
	p.metrics.AddExtracted("authors", report.AuthorsExtracted)
	p.metrics.AddAuthorlessWorks(extraction.AuthorlessWorks)

	if extraction.Empty() {
		slog.Warn("Nothing to save, skipping database write")
	} else {
		saved := p.destination.Save(ctx, p.store, extraction)
		report.AuthorsUpserted = saved.AuthorsUpserted
		report.BooksUpserted = saved.BooksUpserted
		p.metrics.AddUpserted("authors", saved.AuthorsUpserted)
		p.metrics.AddUpserted("books", saved.BooksUpserted)
		for _, failure := range saved.Failures {
			p.recordFailure(&report, failure.Stage)
		}
	}

	avg, err := averageBooksPerAuthor(ctx, p.store)
	if err != nil {
		p.recordFailure(&report, StageAggregate)
	}
	report.AverageBooksPerAuthor = avg
	if avg != nil {
		p.metrics.SetAverage(*avg)
	}

	elapsed := p.now().Sub(start)
	report.DurationMS = elapsed.Milliseconds()

	status := Status{StatusCode: http.StatusOK, Body: successBody, Report: report}
	result := "success"
	if len(report.FailedStages) > 0 {
		status.Body = failureBody + ": " + strings.Join(report.FailedStages, ", ")
		result = "partial"
	}
	p.metrics.ObserveRun(result, elapsed)

	slog.Info("Pipeline finished",
		"destination", report.Destination,
		"books", report.BooksUpserted,
		"authors", report.AuthorsUpserted,
		"failed_stages", report.FailedStages,
		"duration", elapsed,
	)

	return status, nil
}

func (p *Pipeline) recordFailure(report *Report, stage string) {
	report.FailedStages = append(report.FailedStages, stage)
	p.metrics.ObserveStageFailure(stage)
}
