// Package collyfetcher implements a static Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/clock/system"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher loads pages with a plain HTTP GET. Pages it returns carry the
// server's HTML as is; nothing is rendered or expanded.
type Fetcher struct {
	base   *colly.Collector
	robots *robotsTransport
	logger *zap.Logger
}

var _ scrape.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher. Every Fetch clones one configured collector, so the
// transport and the robots.txt cache are shared across targets.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	f := &Fetcher{logger: logger}
	var transport http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		f.robots = newRobotsTransport(transport, system.New(), logger)
		transport = f.robots
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	f.base = c
	return f
}

// Fetch executes a single HTTP GET. Non-2xx responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, target string) (scrape.Page, error) {
	c := f.base.Clone()
	c.Context = ctx
	res := &fetchResult{}
	res.attach(c)

	// The page request carries ctx and ends with it. Colly's own robots.txt
	// lookup does not, so a canceled visit can outlive Fetch by at most the
	// request timeout; res is only read after done.
	done := make(chan error, 1)
	go func() {
		done <- c.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("colly response failed: %w", res.err)
		}
		if err != nil {
			return nil, fmt.Errorf("colly visit failed: %w", err)
		}
	}
	if res.page == nil {
		return nil, fmt.Errorf("colly returned no response for %s", target)
	}

	page := res.page
	page.url = target
	if f.robots != nil {
		if u, err := url.Parse(target); err == nil {
			page.RobotsLenient = f.robots.Lenient(u.Hostname())
		}
	}
	f.logger.Debug("static page fetched",
		zap.String("url", target),
		zap.Int("status", page.StatusCode),
		zap.Int("bytes", len(page.body)),
	)
	return page, nil
}

type hookRegistrar interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchResult captures what the collector callbacks saw for one visit.
type fetchResult struct {
	page *StaticPage
	err  error
}

func (r *fetchResult) attach(h hookRegistrar) {
	h.OnResponse(func(resp *colly.Response) {
		r.page = &StaticPage{
			finalURL:   resp.Request.URL.String(),
			StatusCode: resp.StatusCode,
			body:       append([]byte(nil), resp.Body...),
		}
	})
	h.OnError(func(_ *colly.Response, err error) {
		r.err = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
	}
}
