package collyfetcher

import (
	"context"

	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

// StaticPage is a server-rendered document held in memory.
type StaticPage struct {
	url        string
	finalURL   string
	body       []byte
	StatusCode int
	// RobotsLenient is set when the host's robots.txt could not be read and
	// was treated as allowing everything.
	RobotsLenient bool
}

var _ scrape.Page = (*StaticPage)(nil)

// NewStaticPage wraps an already downloaded document.
func NewStaticPage(url string, body []byte) *StaticPage {
	return &StaticPage{url: url, finalURL: url, body: body}
}

// URL returns the requested URL.
func (p *StaticPage) URL() string { return p.url }

// FinalURL returns the URL after redirects.
func (p *StaticPage) FinalURL() string { return p.finalURL }

// Expand is a no-op: a static document has nothing to click.
func (p *StaticPage) Expand(context.Context, string) (int, error) { return 0, nil }

// HTML returns the response body.
func (p *StaticPage) HTML(context.Context) ([]byte, error) { return p.body, nil }

// Close drops the body.
func (p *StaticPage) Close() { p.body = nil }
