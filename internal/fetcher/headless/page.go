package headless

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/metrics"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

const expanderAttr = "data-scrape-expander"

// Page is a live browser tab.
type Page struct {
	url       string
	finalURL  string
	tab       context.Context
	cancel    context.CancelFunc
	release   func()
	cfg       Config
	logger    *zap.Logger
	closeOnce sync.Once
}

var _ scrape.Page = (*Page)(nil)

// URL returns the requested URL.
func (p *Page) URL() string { return p.url }

// FinalURL returns the location after redirects.
func (p *Page) FinalURL() string { return p.finalURL }

// Expand clicks every element matched by xpath in document order. After each
// click it polls until the surrounding list shows more items or the control
// goes away. A poll that times out is logged and counted but not returned.
func (p *Page) Expand(ctx context.Context, xpath string) (int, error) {
	ctx, stop := p.bind(ctx)
	defer stop()

	var count int
	if err := chromedp.Run(ctx, chromedp.Evaluate(tagExpandersJS(xpath), &count)); err != nil {
		return 0, fmt.Errorf("locate expand controls: %w", err)
	}

	for i := 0; i < count; i++ {
		var clicked bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(clickExpanderJS(i), &clicked)); err != nil {
			return i, fmt.Errorf("click expand control %d: %w", i, err)
		}
		if !clicked {
			continue
		}
		var ready bool
		err := chromedp.Run(ctx, chromedp.Poll(expandedJS(i), &ready,
			chromedp.WithPollingInterval(p.cfg.ExpandPollInterval),
			chromedp.WithPollingTimeout(p.cfg.ExpandTimeout),
		))
		switch {
		case err == nil:
		case isPollTimeout(err) && ctx.Err() == nil:
			metrics.ObserveExpansionTimeout()
			p.logger.Warn("expanded content did not appear in time",
				zap.Int("control", i),
				zap.Duration("timeout", p.cfg.ExpandTimeout),
			)
		default:
			return i, fmt.Errorf("wait for expand control %d: %w", i, err)
		}
	}
	return count, nil
}

// HTML marks list items that are not rendered and returns the document.
func (p *Page) HTML(ctx context.Context) ([]byte, error) {
	ctx, stop := p.bind(ctx)
	defer stop()

	var (
		marked int
		html   string
	)
	err := chromedp.Run(ctx,
		chromedp.Evaluate(markHiddenJS(), &marked),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("capture dom: %w", err)
	}
	p.logger.Debug("captured dom", zap.Int("hidden_items", marked), zap.Int("bytes", len(html)))
	return []byte(html), nil
}

// Close closes the tab and frees the browser for the next page.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.release != nil {
			p.release()
		}
	})
}

// bind derives a tab context that is also canceled with ctx.
func (p *Page) bind(ctx context.Context) (context.Context, func()) {
	tab, cancel := context.WithCancel(p.tab)
	stop := context.AfterFunc(ctx, cancel)
	return tab, func() {
		stop()
		cancel()
	}
}

func tagExpandersJS(xpath string) string {
	return `(() => {
  const found = document.evaluate(` + strconv.Quote(xpath) + `, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  for (let i = 0; i < found.snapshotLength; i++) {
    const el = found.snapshotItem(i);
    el.setAttribute("` + expanderAttr + `", String(i));
    const list = el.closest("ul");
    el.dataset.scrapeBefore = list ? String(` + visibleItemsJS("list") + `) : "0";
  }
  return found.snapshotLength;
})()`
}

func clickExpanderJS(i int) string {
	return `(() => {
  const el = document.querySelector(` + expanderSelector(i) + `);
  if (!el) return false;
  el.click();
  return true;
})()`
}

// expandedJS is truthy once the control is gone or hidden, or its list has
// more rendered items than before the click.
func expandedJS(i int) string {
	return `(() => {
  const el = document.querySelector(` + expanderSelector(i) + `);
  if (!el || !el.isConnected || el.offsetParent === null) return true;
  const list = el.closest("ul");
  if (!list) return true;
  return ` + visibleItemsJS("list") + ` > Number(el.dataset.scrapeBefore || "0");
})()`
}

func markHiddenJS() string {
	return `(() => {
  let n = 0;
  document.querySelectorAll("ul > li").forEach((li) => {
    if (li.offsetParent === null && getComputedStyle(li).position !== "fixed") {
      li.setAttribute("` + scrape.HiddenAttr + `", "true");
      n++;
    } else {
      li.removeAttribute("` + scrape.HiddenAttr + `");
    }
  });
  return n;
})()`
}

func visibleItemsJS(list string) string {
	return `Array.from(` + list + `.children).filter((c) => c.tagName === "LI" && c.offsetParent !== null).length`
}

func expanderSelector(i int) string {
	return strconv.Quote(`[` + expanderAttr + `="` + strconv.Itoa(i) + `"]`)
}
