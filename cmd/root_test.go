package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/config"
	collyfetcher "github.com/JakeFAU/menu-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/menu-scraper/internal/menu"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
	"github.com/JakeFAU/menu-scraper/internal/spool"
	"github.com/JakeFAU/menu-scraper/internal/storage/local"
	"github.com/JakeFAU/menu-scraper/internal/storage/sqlite"
)

const itemsPage = `<html><body>
<div><h4>Place Info</h4><p><a href="/map">1 Main St, Brooklyn, NY</a></p></div>
<ul><lh>On Tap</lh>
  <li><h3><a href="/items/pils">House Pils</a></h3><p>Pilsner · 4.8% ABV · Local</p><p>16oz Draft $7</p></li>
</ul>
</body></html>`

const venuePage = `<html><body><div><h1>The Tap Room</h1><p>Beer Bar in Williamsburg, Brooklyn, NY</p></div></body></html>`

type pageFetcher struct {
	pages map[string]string
}

func (f *pageFetcher) Fetch(_ context.Context, url string) (scrape.Page, error) {
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return collyfetcher.NewStaticPage(url, []byte(body)), nil
}

// testApp builds an App on a temp SQLite database. mutate adjusts config
// before the App is assembled.
func testApp(t *testing.T, fetcher scrape.Fetcher, mutate func(*config.Config)) (appFactory, *sqlite.Store) {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.DSN = filepath.Join(t.TempDir(), "menu.db")
	cfg.Scrape.Delay = 0
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := sqlite.Open(cfg.Store.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	factory := func(context.Context, string) (*App, error) {
		app := &App{
			Config: cfg,
			Logger: zap.NewNop(),
			Store:  store,
			RunID:  "run-test",
			NewBrowser: func() (scrape.Fetcher, func(), error) {
				return fetcher, func() {}, nil
			},
			NewStatic: func() scrape.Fetcher { return fetcher },
		}
		if cfg.Spool.Backend == config.SpoolLocal {
			blobs, err := local.New(local.Config{BaseDir: cfg.Spool.Dir})
			if err != nil {
				return nil, err
			}
			sp, err := spool.New(blobs, cfg.Spool.Prefix, nil)
			if err != nil {
				return nil, err
			}
			app.Spool = sp
		}
		return app, nil
	}
	return factory, store
}

func TestItemsCommandPersistsRows(t *testing.T) {
	t.Parallel()

	fetcher := &pageFetcher{pages: map[string]string{"https://bars.example/a": itemsPage}}
	factory, store := testApp(t, fetcher, nil)

	var out bytes.Buffer
	err := run(context.Background(), &cli{factory: factory}, []string{"items", "https://bars.example/a"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "1 attempted, 1 succeeded, 0 failed")

	done, err := store.DistinctValues(context.Background(), menu.ColSourceURL, "items")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://bars.example/a"}, done)
}

func TestItemsCommandAbortsAndSpoolsFailedTarget(t *testing.T) {
	t.Parallel()

	spoolDir := t.TempDir()
	fetcher := &pageFetcher{pages: map[string]string{
		"https://bars.example/a": itemsPage,
		"https://bars.example/b": `<html><body><ul><lh>On Tap</lh></ul></body></html>`,
		"https://bars.example/c": itemsPage,
	}}
	factory, store := testApp(t, fetcher, func(c *config.Config) {
		c.Scrape.Targets = []string{"https://bars.example/a", "https://bars.example/b", "https://bars.example/c"}
		c.Spool.Backend = config.SpoolLocal
		c.Spool.Dir = spoolDir
	})

	var out bytes.Buffer
	err := run(context.Background(), &cli{factory: factory}, []string{"items"}, &out)
	require.Error(t, err)

	var outcome *scrape.Outcome
	require.ErrorAs(t, err, &outcome)
	assert.Equal(t, scrape.ParseFailure, outcome.Kind)
	assert.ErrorIs(t, err, menu.ErrNoAddress)
	assert.Contains(t, out.String(), "stopped at https://bars.example/b")
	assert.Contains(t, out.String(), "spooled file://")

	done, err := store.DistinctValues(context.Background(), menu.ColSourceURL, "items")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://bars.example/a"}, done)
}

func TestItemsCommandFetchFailureIsFatal(t *testing.T) {
	t.Parallel()

	factory, _ := testApp(t, &pageFetcher{}, func(c *config.Config) {
		c.Scrape.Policy = string(scrape.PolicyContinue)
	})

	err := run(context.Background(), &cli{factory: factory}, []string{"items", "https://bars.example/gone"}, &bytes.Buffer{})
	require.ErrorIs(t, err, scrape.ErrFetch)
}

func TestVenuesCommandResumes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(venuePage))
	}))
	t.Cleanup(srv.Close)

	targets := []string{srv.URL + "/venue/1", srv.URL + "/venue/2"}
	factory, store := testApp(t, nil, func(c *config.Config) {
		c.Scrape.Targets = targets
	})
	base := factory
	factory = func(ctx context.Context, path string) (*App, error) {
		app, err := base(ctx, path)
		if err != nil {
			return nil, err
		}
		app.NewStatic = func() scrape.Fetcher {
			return collyfetcher.New(collyfetcher.Config{UserAgent: "menu-test", Timeout: app.Config.Browser.HTTPTimeout}, nil)
		}
		return app, nil
	}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &cli{factory: factory}, []string{"venues"}, &out))
	assert.Contains(t, out.String(), "2 attempted, 2 succeeded")

	done, err := store.DistinctValues(context.Background(), menu.ColSourceURL, "venues")
	require.NoError(t, err)
	assert.ElementsMatch(t, targets, done)

	out.Reset()
	require.NoError(t, run(context.Background(), &cli{factory: factory}, []string{"venues"}, &out))
	assert.NotContains(t, out.String(), "attempted")
}

func TestRemainingCommandListsUnscrapedTargets(t *testing.T) {
	t.Parallel()

	fetcher := &pageFetcher{pages: map[string]string{"https://bars.example/a": itemsPage}}
	factory, _ := testApp(t, fetcher, func(c *config.Config) {
		c.Scrape.Targets = []string{"https://bars.example/a", "https://bars.example/b"}
	})

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &cli{factory: factory}, []string{"remaining"}, &out))
	assert.Equal(t, "https://bars.example/a\nhttps://bars.example/b\n# 2 remaining, 0 done in items\n", out.String())

	require.NoError(t, run(context.Background(), &cli{factory: factory}, []string{"items", "https://bars.example/a"}, &bytes.Buffer{}))

	out.Reset()
	require.NoError(t, run(context.Background(), &cli{factory: factory}, []string{"remaining", "items"}, &out))
	assert.Equal(t, "https://bars.example/b\n# 1 remaining, 1 done in items\n", out.String())
}

func TestRemainingRejectsUnknownTable(t *testing.T) {
	t.Parallel()

	factory, _ := testApp(t, &pageFetcher{}, nil)
	err := run(context.Background(), &cli{factory: factory}, []string{"remaining", "bogus"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestFactoryErrorSurfaces(t *testing.T) {
	t.Parallel()

	factory := func(context.Context, string) (*App, error) { return nil, errors.New("boom") }
	err := run(context.Background(), &cli{factory: factory}, []string{"items"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize application services")
}

func TestAppCloseRunsNewestFirst(t *testing.T) {
	t.Parallel()

	var order []int
	app := &App{}
	app.onClose(func() { order = append(order, 1) })
	app.onClose(func() { order = append(order, 2) })
	app.Close()
	app.Close()
	assert.Equal(t, []int{2, 1}, order)

	var nilApp *App
	assert.NotPanics(t, nilApp.Close)
}
