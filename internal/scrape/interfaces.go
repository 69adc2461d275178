package scrape

import (
	"context"
	"time"

	"github.com/JakeFAU/menu-scraper/internal/record"
)

// Page is a fetched resource handed to parsers. Implementations may hold a
// live browser tab; Close releases it and must be safe to call twice.
type Page interface {
	URL() string
	// Expand triggers every control matched by xpath and waits, bounded, for
	// the content it reveals. It returns the number of controls triggered.
	Expand(ctx context.Context, xpath string) (int, error)
	// HTML returns the current DOM. Nodes that are not rendered carry the
	// HiddenAttr attribute.
	HTML(ctx context.Context) ([]byte, error)
	Close()
}

// HiddenAttr marks list items that were not displayed when the DOM was captured.
const HiddenAttr = "data-scrape-hidden"

// Fetcher loads a target URL into a Page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Parser turns a fetched page into rows.
type Parser interface {
	Parse(ctx context.Context, page Page) (*record.Table, error)
}

// Store is the persistence collaborator.
type Store interface {
	// DistinctValues returns the distinct non-null values of column in table.
	// It returns an error matching ErrTableAbsent when the table does not exist.
	DistinctValues(ctx context.Context, column, table string) ([]string, error)
	// AppendRecords appends rows to table, creating it or adding columns as needed.
	AppendRecords(ctx context.Context, table string, records *record.Table) error
}

// Spool keeps the payload of failed targets for later inspection.
type Spool interface {
	Save(ctx context.Context, runID string, outcome *Outcome) (string, error)
}

// Sleeper waits between targets (useful for testing).
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
