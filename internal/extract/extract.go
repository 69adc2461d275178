// Package extract classifies single menu paragraphs into typed partial records.
//
// Two independent rules exist. Rule A reads "category · strength · origin"
// lines split on a middle-dot separator. Rule B detects short serving lines
// such as "12oz Can $4" and reports size, serving kind and price separately.
// Both are heuristics: a paragraph that breaks the conventions yields nulls,
// and Rule B reports missing fields through the logger instead of failing.
package extract

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/metrics"
)

// Separator splits Rule A paragraphs.
const Separator = "·"

// MaxServingTokens is the largest whitespace token count Rule B accepts.
const MaxServingTokens = 6

// Serving field names used in notices.
const (
	FieldSize  = "size"
	FieldKind  = "serving_kind"
	FieldPrice = "price"
)

var (
	volumeUnits        = []string{"oz", "cl", "Liter Keg", "ml", "L"}
	volumePhrases      = []string{`Pint`, `1/\d Keg`, `\d\d L Keg`}
	servingKinds       = []string{"Draft", "Can", "Bottle", "Growler", "Crowler (can)", "Cask", "Pitcher", "By the glass", "Glass", "Pour", "Keg"}
	volumePattern      = buildVolumePattern()
	servingKindPattern = buildKindPattern()
	pricePattern       = regexp.MustCompile(`\$([0-9.]*)`)
)

// TypeA is the positional category/strength/origin shape.
type TypeA struct {
	Category *string
	Strength *string
	Origin   *string
}

// TypeB is the size/kind/price serving shape. Each field is independent.
type TypeB struct {
	Size  *string
	Kind  *string
	Price *string
}

// ParseTypeA applies Rule A. Fields are assigned positionally and trimmed;
// anything past the third field is ignored and empty fields stay nil.
func ParseTypeA(par string) (TypeA, bool) {
	if !strings.Contains(par, Separator) {
		return TypeA{}, false
	}
	parts := strings.Split(par, Separator)
	fields := make([]*string, 3)
	for i := 0; i < len(parts) && i < len(fields); i++ {
		fields[i] = nonEmpty(parts[i])
	}
	return TypeA{Category: fields[0], Strength: fields[1], Origin: fields[2]}, true
}

// Extractor applies Rule B and reports missing fields once per distinct
// paragraph.
type Extractor struct {
	seen   *Seen
	logger *zap.Logger
}

// New builds an Extractor. seen is owned by the caller; a nil seen disables
// deduplication so every missing field is reported.
func New(seen *Seen, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{seen: seen, logger: logger}
}

// ParseTypeB applies Rule B.
func (e *Extractor) ParseTypeB(par string) (TypeB, bool) {
	if len(strings.Fields(par)) > MaxServingTokens {
		return TypeB{}, false
	}

	vol := volumePattern.FindStringSubmatch(par)
	kind := servingKindPattern.FindStringSubmatch(par)
	price := pricePattern.FindStringSubmatch(par)
	if vol == nil && kind == nil && price == nil {
		return TypeB{}, false
	}

	var out TypeB
	if vol != nil {
		out.Size = nonEmpty(vol[1])
	}
	if kind != nil {
		out.Kind = nonEmpty(kind[1])
	}
	if price != nil {
		out.Price = nonEmpty(price[1])
	}
	e.reportMissing(par, out)
	return out, true
}

func (e *Extractor) reportMissing(par string, out TypeB) {
	var missing []string
	if out.Size == nil {
		missing = append(missing, FieldSize)
	}
	if out.Kind == nil {
		missing = append(missing, FieldKind)
	}
	if out.Price == nil {
		missing = append(missing, FieldPrice)
	}
	if len(missing) == 0 || !e.seen.MarkIfNew(par) {
		return
	}
	for _, field := range missing {
		metrics.ObserveExtractionNotice(field)
		e.logger.Warn("serving field missing",
			zap.String("field", field),
			zap.String("paragraph", par),
		)
	}
}

func buildVolumePattern() *regexp.Regexp {
	units := make([]string, len(volumeUnits))
	for i, u := range volumeUnits {
		units[i] = regexp.QuoteMeta(u)
	}
	return regexp.MustCompile(`([0-9.]+(?:` + strings.Join(units, "|") + `)|` + strings.Join(volumePhrases, "|") + `)`)
}

// buildKindPattern matches a serving kind with an optional "N Pack" prefix and
// plural suffix. The kind must start at a word edge and be followed by
// whitespace or the end of the paragraph.
func buildKindPattern() *regexp.Regexp {
	alts := make([]string, len(servingKinds))
	for i, k := range servingKinds {
		alts[i] = `((?:\d\d? Pack)?(?:\s|^)` + regexp.QuoteMeta(k) + `s?)(?:\s|$)`
	}
	return regexp.MustCompile(`(` + strings.Join(alts, "|") + `)`)
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
