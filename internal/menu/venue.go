package menu

import (
	"context"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/metrics"
	"github.com/JakeFAU/menu-scraper/internal/record"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

const (
	nycNeighborhood = `([^,]*), ((?:[^,]*), NY)`
	cityState       = `((?:[^,]*), [A-Z][A-Z])`
	venueType       = `([a-zA-Z]+ [a-zA-Z]+|[a-zA-Z]+)`
)

type subheadingFormat struct {
	re   *regexp.Regexp
	keys []string
}

// subheadingFormats are tried in order; the first match wins.
var subheadingFormats = []subheadingFormat{
	{regexp.MustCompile(venueType + ` in ` + nycNeighborhood), []string{ColEstablishmentType, ColNeighborhood, ColCity}},
	{regexp.MustCompile(venueType + ` in ` + cityState), []string{ColEstablishmentType, ColCity}},
	{regexp.MustCompile(`in ` + nycNeighborhood), []string{ColNeighborhood, ColCity}},
	{regexp.MustCompile(`in ` + cityState), []string{ColCity}},
	{regexp.MustCompile(venueType), []string{ColEstablishmentType}},
}

var venueKeys = []string{ColEstablishmentType, ColNeighborhood, ColCity}

// VenueParser reads the venue header into a single row.
type VenueParser struct {
	logger *zap.Logger
}

var _ scrape.Parser = (*VenueParser)(nil)

// NewVenueParser constructs a VenueParser.
func NewVenueParser(logger *zap.Logger) *VenueParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VenueParser{logger: logger}
}

// Parse returns a one-row table with the venue name, its type and location.
func (v *VenueParser) Parse(ctx context.Context, page scrape.Page) (*record.Table, error) {
	doc, err := snapshot(ctx, page)
	if err != nil {
		return nil, err
	}
	header := doc.Find("div").FilterFunction(func(_ int, div *goquery.Selection) bool {
		return div.ChildrenFiltered("h1").Length() > 0
	}).First()
	if header.Length() == 0 {
		return nil, ErrNoHeader
	}

	name := collapse(header.ChildrenFiltered("h1").First().Text())
	subheading := collapse(header.Find("p").First().Text())
	fields := MatchSubheading(subheading)
	if fields == nil {
		metrics.ObserveExtractionNotice("venue_subheading")
		v.logger.Warn("venue subheading did not match any known format",
			zap.String("url", page.URL()),
			zap.String("subheading", subheading),
		)
	}

	row := record.NewRow(record.Text(ColVenueName, name))
	for _, key := range venueKeys {
		row.Set(record.Opt(key, fields[key]))
	}
	row.Set(record.Text(ColSourceURL, page.URL()))

	tbl := record.NewTable()
	tbl.Append(row)
	return tbl, nil
}

// MatchSubheading applies the subheading formats in order and returns the
// captured fields of the first match, or nil when none matches.
func MatchSubheading(subheading string) map[string]*string {
	for _, f := range subheadingFormats {
		m := f.re.FindStringSubmatch(subheading)
		if m == nil {
			continue
		}
		out := make(map[string]*string, len(f.keys))
		for i, key := range f.keys {
			val := m[i+1]
			out[key] = &val
		}
		return out
	}
	return nil
}
