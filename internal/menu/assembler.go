package menu

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/extract"
	"github.com/JakeFAU/menu-scraper/internal/metrics"
	"github.com/JakeFAU/menu-scraper/internal/record"
)

// Assembler builds one row per item from its title, paragraphs and the
// metadata of the page it was found on.
type Assembler struct {
	extractor *extract.Extractor
	logger    *zap.Logger
}

// NewAssembler constructs an Assembler.
func NewAssembler(extractor *extract.Extractor, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = extract.New(nil, logger)
	}
	return &Assembler{extractor: extractor, logger: logger}
}

// Assemble returns the row for item, or false when the item has no usable
// name. Rule A keeps the first matching paragraph; Rule B keeps the longest
// matching paragraph, the earliest on ties. Metadata cells are applied last
// and override anything extracted under the same column.
func (a *Assembler) Assemble(item Item, meta []record.Cell) (record.Row, bool) {
	if item.Title == nil {
		metrics.ObserveItemDropped()
		a.logger.Warn("item name could not be resolved; dropping item", zap.String("text", item.Text))
		return record.Row{}, false
	}

	row := record.NewRow(
		record.Text(ColName, item.Title.Name),
		record.Opt(ColItemURL, item.Title.URL),
	)

	var (
		typeA  extract.TypeA
		foundA bool
		typeB  extract.TypeB
		foundB bool
		bLen   int
	)
	for _, par := range item.Paragraphs {
		if !foundA {
			typeA, foundA = extract.ParseTypeA(par)
		}
		b, ok := a.extractor.ParseTypeB(par)
		if ok && (!foundB || len(par) > bLen) {
			typeB, foundB, bLen = b, true, len(par)
		}
	}

	if foundA {
		row.Set(record.Opt(ColCategory, typeA.Category))
		row.Set(record.Opt(ColStrength, typeA.Strength))
		row.Set(record.Opt(ColOrigin, typeA.Origin))
	}
	if foundB {
		row.Set(record.Opt(ColSize, typeB.Size))
		row.Set(record.Opt(ColKind, typeB.Kind))
		row.Set(record.Opt(ColPrice, typeB.Price))
	}
	for _, c := range meta {
		row.Set(c)
	}
	return row, true
}
