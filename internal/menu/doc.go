// Package menu turns fetched venue pages into record tables.
//
// PageParser walks the grouped item lists of a menu page and hands each
// visible item to the Assembler, which runs the paragraph extractors and
// merges the results with page metadata. VenueParser reads the venue header
// of the same site into a single row.
package menu

import "errors"

// Column names written by the parsers in this package.
const (
	ColName      = "name"
	ColItemURL   = "item_url"
	ColCategory  = "category"
	ColStrength  = "strength"
	ColOrigin    = "origin"
	ColSize      = "size"
	ColKind      = "serving_kind"
	ColPrice     = "price"
	ColGrouping  = "grouping"
	ColSourceURL = "source_url"
	ColAddress   = "address"

	ColVenueName         = "venue_name"
	ColEstablishmentType = "establishment_type"
	ColNeighborhood      = "neighborhood"
	ColCity              = "city"
)

var (
	// ErrNoAddress means the "Place Info" block or its link was not found.
	ErrNoAddress = errors.New("place info address not found")
	// ErrNoHeader means the venue header block was not found.
	ErrNoHeader = errors.New("venue header not found")
)
