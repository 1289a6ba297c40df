package pipeline

import (
	"context"
	"log/slog"

	"github.com/lepinkainen/bookpipeline/internal/datastore"
)

// AverageBooksPerAuthor returns the store's average book count per author,
// or nil when it cannot be computed. Errors are logged, not returned.
func AverageBooksPerAuthor(ctx context.Context, store datastore.Store) *float64 {
	avg, _ := averageBooksPerAuthor(ctx, store)
	return avg
}

func averageBooksPerAuthor(ctx context.Context, store datastore.Store) (*float64, error) {
	slog.Info("Calculating the average number of books written by each author")

	avg, err := store.AverageBooksPerAuthor(ctx)
	if err != nil {
		slog.Error("Error calculating average books per author", "error", err)
		return nil, err
	}
	if avg == nil {
		slog.Info("Average number of books written by an author", "average", nil)
		return nil, nil
	}

	slog.Info("Average number of books written by an author", "average", *avg)
	return avg, nil
}
