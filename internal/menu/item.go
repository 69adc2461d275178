package menu

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

// Title is the resolved name of an item.
type Title struct {
	Name string
	// URL is nil for unlinked titles.
	URL *string
}

// Item is the part of a list entry the Assembler needs.
type Item struct {
	// Title is nil when neither a linked nor a plain title exists.
	Title      *Title
	Paragraphs []string
	// Text is the collapsed text of the whole entry, used in notices.
	Text string
}

// ItemFromSelection reads an item out of a list entry. A linked title
// (h3 > a) wins over a plain one (h3 > span). Relative links are resolved
// against base when base is non-nil.
func ItemFromSelection(sel *goquery.Selection, base *url.URL) Item {
	item := Item{Text: collapse(sel.Text())}

	if a := sel.Find("h3 > a").First(); a.Length() > 0 {
		t := &Title{Name: collapse(a.Text())}
		if href, ok := a.Attr("href"); ok {
			resolved := resolveHref(base, href)
			t.URL = &resolved
		}
		item.Title = t
	} else if span := sel.Find("h3 > span").First(); span.Length() > 0 {
		item.Title = &Title{Name: collapse(span.Text())}
	}

	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		item.Paragraphs = append(item.Paragraphs, collapse(p.Text()))
	})
	return item
}

// isHidden reports whether a node was not displayed when the DOM was captured.
func isHidden(sel *goquery.Selection) bool {
	if _, ok := sel.Attr(scrape.HiddenAttr); ok {
		return true
	}
	if _, ok := sel.Attr("hidden"); ok {
		return true
	}
	style, _ := sel.Attr("style")
	style = strings.ToLower(strings.Join(strings.Fields(style), ""))
	return strings.Contains(style, "display:none")
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// collapse mirrors rendered text: runs of whitespace become one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
