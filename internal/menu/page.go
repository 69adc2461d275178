package menu

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/record"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

// ExpanderXPath matches the "View all" controls of truncated item lists.
const ExpanderXPath = `//ul[./lh]/li/a[contains(text(),'View all')]`

const placeInfoHeading = "Place Info"

// PageParser extracts item rows from a menu page.
type PageParser struct {
	assembler *Assembler
	logger    *zap.Logger
}

var _ scrape.Parser = (*PageParser)(nil)

// NewPageParser constructs a PageParser.
func NewPageParser(assembler *Assembler, logger *zap.Logger) *PageParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if assembler == nil {
		assembler = NewAssembler(nil, logger)
	}
	return &PageParser{assembler: assembler, logger: logger}
}

// Parse reads the venue address, expands truncated lists and returns one row
// per visible item in document order.
func (p *PageParser) Parse(ctx context.Context, page scrape.Page) (*record.Table, error) {
	doc, err := snapshot(ctx, page)
	if err != nil {
		return nil, err
	}
	address, err := findAddress(doc)
	if err != nil {
		return nil, err
	}

	expanded, err := page.Expand(ctx, ExpanderXPath)
	if err != nil {
		return nil, fmt.Errorf("expand item lists: %w", err)
	}
	if expanded > 0 {
		p.logger.Debug("expanded item lists", zap.String("url", page.URL()), zap.Int("controls", expanded))
		if doc, err = snapshot(ctx, page); err != nil {
			return nil, err
		}
	}

	base, err := url.Parse(page.URL())
	if err != nil {
		base = nil
	}

	tbl := record.NewTable()
	doc.Find("ul").Each(func(_ int, group *goquery.Selection) {
		label := group.ChildrenFiltered("lh").First()
		if label.Length() == 0 {
			return
		}
		meta := []record.Cell{
			record.Text(ColGrouping, collapse(label.Text())),
			record.Text(ColSourceURL, page.URL()),
			record.Text(ColAddress, address),
		}
		group.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			if isHidden(li) {
				return
			}
			if row, ok := p.assembler.Assemble(ItemFromSelection(li, base), meta); ok {
				tbl.Append(row)
			}
		})
	})
	return tbl, nil
}

func snapshot(ctx context.Context, page scrape.Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture page html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return doc, nil
}

func findAddress(doc *goquery.Document) (string, error) {
	block := doc.Find("div").FilterFunction(func(_ int, div *goquery.Selection) bool {
		return div.ChildrenFiltered("h4").FilterFunction(func(_ int, h *goquery.Selection) bool {
			return strings.TrimSpace(h.Text()) == placeInfoHeading
		}).Length() > 0
	}).First()
	if block.Length() == 0 {
		return "", ErrNoAddress
	}
	link := block.Find("a").First()
	if link.Length() == 0 {
		return "", fmt.Errorf("%w: place info block has no link", ErrNoAddress)
	}
	return collapse(link.Text()), nil
}
