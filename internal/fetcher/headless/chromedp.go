// Package headless drives a single headless Chrome session through chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

const (
	defaultNavTimeout   = 45 * time.Second
	defaultExpandWait   = 2 * time.Second
	defaultPollInterval = 500 * time.Millisecond
)

// Config controls the browser session.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// ExpandTimeout bounds the wait for content revealed by one expand control.
	ExpandTimeout time.Duration
	// ExpandPollInterval is how often the reveal predicate is evaluated.
	ExpandPollInterval time.Duration
	// NoSandbox disables the Chrome sandbox, which refuses to start as root
	// inside most containers.
	NoSandbox bool
}

// Browser is one headless Chrome process shared by a batch. It serves one
// page at a time; Fetch blocks until the previous page is closed.
type Browser struct {
	cfg           Config
	logger        *zap.Logger
	slot          chan struct{}
	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

var _ scrape.Fetcher = (*Browser)(nil)

// Open prepares a browser session. Chrome itself is started on the first Fetch.
func Open(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.NavigationTimeout < 0 || cfg.ExpandTimeout < 0 || cfg.ExpandPollInterval < 0 {
		return nil, fmt.Errorf("browser timeouts must be >= 0")
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Browser{
		cfg:           cfg,
		logger:        logger,
		slot:          make(chan struct{}, 1),
		allocCancel:   allocCancel,
		browser:       browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser down. Pages still open become unusable.
func (b *Browser) Close() {
	b.closeOnce.Do(func() {
		b.browserCancel()
		b.allocCancel()
	})
}

// Fetch opens url in a new tab. The returned page holds the session until
// it is closed.
func (b *Browser) Fetch(ctx context.Context, url string) (scrape.Page, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(b.browser)
	page := &Page{
		url:     url,
		tab:     tabCtx,
		cancel:  tabCancel,
		release: b.release,
		cfg:     b.cfg,
		logger:  b.logger.With(zap.String("url", url)),
	}
	// Allocate the tab on the long-lived context before any deadline applies.
	if err := chromedp.Run(tabCtx); err != nil {
		page.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := &responseMeta{}
	chromedp.ListenTarget(navCtx, meta.captureEvent)

	var finalURL string
	err := chromedp.Run(navCtx,
		b.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if status := meta.statusOr(http.StatusOK); status >= http.StatusBadRequest {
		page.Close()
		return nil, fmt.Errorf("navigate: unexpected status %d", status)
	}
	page.finalURL = finalURL
	return page, nil
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	select {
	case b.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	select {
	case <-b.slot:
	default:
	}
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout == 0 {
		c.NavigationTimeout = defaultNavTimeout
	}
	if c.ExpandTimeout == 0 {
		c.ExpandTimeout = defaultExpandWait
	}
	if c.ExpandPollInterval == 0 {
		c.ExpandPollInterval = defaultPollInterval
	}
	return c
}

// responseMeta records the status of the main document response.
type responseMeta struct {
	mu     sync.Mutex
	status int
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	if m.status == 0 {
		m.status = int(resp.Response.Status)
	}
	m.mu.Unlock()
}

func (m *responseMeta) statusOr(fallback int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == 0 {
		return fallback
	}
	return m.status
}

func isPollTimeout(err error) bool {
	return errors.Is(err, chromedp.ErrPollingTimeout) || errors.Is(err, context.DeadlineExceeded)
}
