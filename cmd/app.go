package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/clock/system"
	"github.com/JakeFAU/menu-scraper/internal/config"
	collyfetcher "github.com/JakeFAU/menu-scraper/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/menu-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/menu-scraper/internal/id/uuid"
	"github.com/JakeFAU/menu-scraper/internal/logging"
	"github.com/JakeFAU/menu-scraper/internal/metrics"
	"github.com/JakeFAU/menu-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
	"github.com/JakeFAU/menu-scraper/internal/spool"
	"github.com/JakeFAU/menu-scraper/internal/storage/gcs"
	"github.com/JakeFAU/menu-scraper/internal/storage/local"
	"github.com/JakeFAU/menu-scraper/internal/storage/postgres"
	"github.com/JakeFAU/menu-scraper/internal/storage/sqlite"
)

// App holds the services shared by every subcommand.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Store   scrape.Store
	Spool   scrape.Spool
	Sleeper scrape.Sleeper
	RunID   string

	// NewBrowser starts the headless fetcher used by items.
	NewBrowser func() (scrape.Fetcher, func(), error)
	// NewStatic builds the plain HTTP fetcher used by venues.
	NewStatic func() scrape.Fetcher

	closers []func()
}

// appFactory builds an App from a config file path. Tests swap it out.
type appFactory func(ctx context.Context, cfgPath string) (*App, error)

// Close releases everything the App opened, newest first.
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// buildApp wires configuration, logging, storage and the optional spool and
// metrics listener.
func buildApp(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, err
	}
	clock := system.New()
	app := &App{
		Config:  cfg,
		Logger:  logger.With(zap.String("run_id", runID)),
		Sleeper: clock,
		RunID:   runID,
	}
	app.onClose(func() { _ = logger.Sync() })

	if err := app.openStore(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.openSpool(ctx, clock); err != nil {
		app.Close()
		return nil, err
	}
	app.serveMetrics()

	var limiter *ratelimit.Limiter
	if cfg.Scrape.HostRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{RPS: cfg.Scrape.HostRPS, Burst: cfg.Scrape.HostBurst})
	}

	app.NewBrowser = func() (scrape.Fetcher, func(), error) {
		browser, err := headlessfetcher.Open(headlessfetcher.Config{
			UserAgent:          cfg.Browser.UserAgent,
			NavigationTimeout:  cfg.Browser.NavTimeout,
			ExpandTimeout:      cfg.Browser.ExpandTimeout,
			ExpandPollInterval: cfg.Browser.ExpandPollInterval,
			NoSandbox:          cfg.Browser.NoSandbox,
		}, app.Logger.Named("browser"))
		if err != nil {
			return nil, nil, fmt.Errorf("open browser: %w", err)
		}
		return ratelimit.Wrap(browser, limiter), browser.Close, nil
	}
	app.NewStatic = func() scrape.Fetcher {
		return ratelimit.Wrap(collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Browser.UserAgent,
			RespectRobots: cfg.Browser.RespectRobots,
			Timeout:       cfg.Browser.HTTPTimeout,
		}, app.Logger.Named("static")), limiter)
	}
	return app, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Driver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             a.Config.Store.DSN,
			MaxConns:        a.Config.Store.MaxConns,
			MaxConnLifetime: a.Config.Store.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		a.Store = store
		a.onClose(store.Close)
	default:
		store, err := sqlite.Open(a.Config.Store.DSN)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.Store = store
		a.onClose(func() {
			if err := store.Close(); err != nil {
				a.Logger.Warn("sqlite close failed", zap.Error(err))
			}
		})
	}
	a.Logger.Info("store ready", zap.String("driver", a.Config.Store.Driver))
	return nil
}

func (a *App) openSpool(ctx context.Context, clock spool.Clock) error {
	var blobs spool.BlobStore
	switch a.Config.Spool.Backend {
	case config.SpoolLocal:
		store, err := local.New(local.Config{BaseDir: a.Config.Spool.Dir})
		if err != nil {
			return fmt.Errorf("open local spool: %w", err)
		}
		blobs = store
	case config.SpoolGCS:
		store, closeFn, err := gcs.Open(ctx, gcs.Config{Bucket: a.Config.Spool.Bucket})
		if err != nil {
			return fmt.Errorf("open gcs spool: %w", err)
		}
		a.onClose(func() {
			if err := closeFn(); err != nil {
				a.Logger.Warn("gcs client close failed", zap.Error(err))
			}
		})
		blobs = store
	default:
		return nil
	}
	sp, err := spool.New(blobs, a.Config.Spool.Prefix, clock)
	if err != nil {
		return err
	}
	a.Spool = sp
	a.Logger.Info("failure spool ready", zap.String("backend", a.Config.Spool.Backend))
	return nil
}

func (a *App) serveMetrics() {
	if a.Config.Metrics.Addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              a.Config.Metrics.Addr,
		Handler:           metrics.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.Logger.Info("metrics server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics server error", zap.Error(err))
		}
	}()
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.Logger.Warn("metrics server shutdown error", zap.Error(err))
		}
	})
}
