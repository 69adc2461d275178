package scrape

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Resolution is the remaining work for a batch.
type Resolution struct {
	Remaining []string
	// Done counts distinct completed targets reported by the store.
	Done int
	// Bootstrapped is set when the completed-target table did not exist yet.
	Bootstrapped bool
}

// Resolver diffs desired targets against targets already persisted.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(store Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve returns desired minus the distinct values of column in table.
// Order of desired is kept and duplicates are dropped. A missing table means
// nothing has been scraped yet; any other store error is returned.
func (r *Resolver) Resolve(ctx context.Context, desired []string, column, table string) (Resolution, error) {
	var res Resolution
	done := map[string]struct{}{}

	values, err := r.store.DistinctValues(ctx, column, table)
	switch {
	case err == nil:
		for _, v := range values {
			done[v] = struct{}{}
		}
		res.Done = len(done)
		r.logger.Info("already scraped targets detected", zap.Int("done", res.Done), zap.String("table", table))
	case errors.Is(err, ErrTableAbsent):
		res.Bootstrapped = true
		r.logger.Warn("completed-target table not found; assuming nothing has been scraped yet",
			zap.String("table", table),
			zap.String("column", column),
			zap.Error(err),
		)
	default:
		return Resolution{}, fmt.Errorf("query completed targets: %w", err)
	}

	seen := make(map[string]struct{}, len(desired))
	for _, target := range desired {
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		if _, ok := done[target]; ok {
			continue
		}
		res.Remaining = append(res.Remaining, target)
	}
	r.logger.Info("targets needing scraping detected", zap.Int("remaining", len(res.Remaining)))
	return res, nil
}
