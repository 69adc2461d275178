package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/metrics"
	"github.com/JakeFAU/menu-scraper/internal/record"
)

// Scraper runs fetch, parse and persist for one target at a time.
type Scraper struct {
	fetcher Fetcher
	parser  Parser
	store   Store
	table   string
	logger  *zap.Logger
}

// NewScraper constructs a Scraper writing parsed rows to table.
func NewScraper(fetcher Fetcher, parser Parser, store Store, table string, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		fetcher: fetcher,
		parser:  parser,
		store:   store,
		table:   table,
		logger:  logger,
	}
}

// Scrape processes one target.
//
// A fetch failure returns an error wrapping ErrFetch and no Outcome. A parse
// or persist failure returns an Outcome holding the fetched page (and the
// parsed rows for persist failures) with a nil error; the caller owns that
// page and must Release it. Success returns (nil, nil), also when the page
// produced no rows.
func (s *Scraper) Scrape(ctx context.Context, target string) (*Outcome, error) {
	start := time.Now()
	logger := s.logger.With(zap.String("target", target))

	page, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		logger.Error("fetch failed; terminating target with nothing to preserve", zap.Error(err))
		metrics.ObserveTarget(target, metrics.OutcomeFetchFailure, time.Since(start))
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, target, err)
	}

	records, err := s.parser.Parse(ctx, page)
	if err != nil {
		logger.Error("parse failed; possibly unanticipated page structure, returning page", zap.Error(err))
		metrics.ObserveTarget(target, metrics.OutcomeParseFailure, time.Since(start))
		return &Outcome{Kind: ParseFailure, Target: target, Resource: page, Err: err}, nil
	}
	if records == nil {
		records = record.NewTable()
	}
	metrics.ObserveRows(target, records.Len())

	if err := s.store.AppendRecords(ctx, s.table, records); err != nil {
		logger.Error("persist failed; returning page and parsed rows",
			zap.Int("rows", records.Len()),
			zap.Error(err),
		)
		metrics.ObserveTarget(target, metrics.OutcomePersistFailure, time.Since(start))
		return &Outcome{Kind: PersistFailure, Target: target, Resource: page, Records: records, Err: err}, nil
	}

	page.Close()
	metrics.ObserveTarget(target, metrics.OutcomeSuccess, time.Since(start))
	logger.Debug("target persisted", zap.Int("rows", records.Len()), zap.String("table", s.table))
	return nil, nil
}
