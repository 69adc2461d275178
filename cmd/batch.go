package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/extract"
	"github.com/JakeFAU/menu-scraper/internal/menu"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

func newItemsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "items [url...]",
		Short: "Scrape menu items with a headless browser",
		Long: `Loads each venue page in a headless browser, expands collapsed menu
sections and appends one row per menu item to the items table. URLs given as
arguments replace the configured targets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.resolveApp()
			if err != nil {
				return err
			}
			seen, err := extract.NewSeen(app.Config.Dedup.Size)
			if err != nil {
				return err
			}
			logger := app.Logger.Named("items")
			parser := menu.NewPageParser(menu.NewAssembler(extract.New(seen, logger), logger), logger)

			fetcher, closeBrowser, err := app.NewBrowser()
			if err != nil {
				return err
			}
			defer closeBrowser()

			return runBatch(cmd.Context(), app, batch{
				fetcher: fetcher,
				parser:  parser,
				table:   app.Config.Scrape.ItemsTable,
				args:    args,
				logger:  logger,
			}, cmd.OutOrStdout())
		},
	}
}

func newVenuesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "venues [url...]",
		Short: "Scrape venue details from static pages",
		Long: `Fetches each venue page over plain HTTP and appends the venue name, type
and location to the venues table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.resolveApp()
			if err != nil {
				return err
			}
			logger := app.Logger.Named("venues")
			return runBatch(cmd.Context(), app, batch{
				fetcher: app.NewStatic(),
				parser:  menu.NewVenueParser(logger),
				table:   app.Config.Scrape.VenuesTable,
				args:    args,
				logger:  logger,
			}, cmd.OutOrStdout())
		},
	}
}

type batch struct {
	fetcher scrape.Fetcher
	parser  scrape.Parser
	table   string
	args    []string
	logger  *zap.Logger
}

// targets returns positional arguments when present, otherwise the configured list.
func targets(app *App, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	desired, err := app.Config.Targets()
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	return desired, nil
}

func runBatch(ctx context.Context, app *App, b batch, out io.Writer) error {
	desired, err := targets(app, b.args)
	if err != nil {
		return err
	}
	res, err := scrape.NewResolver(app.Store, b.logger).Resolve(ctx, desired, app.Config.Scrape.TargetColumn, b.table)
	if err != nil {
		return err
	}
	if len(res.Remaining) == 0 {
		b.logger.Info("nothing left to scrape", zap.String("table", b.table))
		return nil
	}

	policy := app.Config.FailurePolicy()
	scraper := scrape.NewScraper(b.fetcher, b.parser, app.Store, b.table, b.logger)
	runner := scrape.NewRunner(scraper, app.Spool, app.Sleeper, scrape.RunnerConfig{
		Policy: policy,
		Delay:  app.Config.Scrape.Delay,
		RunID:  app.RunID,
	}, b.logger)

	outcome, runErr := runner.Run(ctx, res.Remaining)
	sum := runner.Summary()
	b.logger.Info("batch finished",
		zap.Int("attempted", sum.Attempted),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("spooled", len(sum.Spooled)),
	)
	fmt.Fprintf(out, "run %s: %d attempted, %d succeeded, %d failed\n",
		sum.RunID, sum.Attempted, sum.Succeeded, sum.Failed)
	for _, uri := range sum.Spooled {
		fmt.Fprintf(out, "spooled %s\n", uri)
	}
	if runErr != nil {
		return runErr
	}
	if outcome == nil {
		return nil
	}
	return abortWith(ctx, app, outcome, out)
}

// abortWith reports the outcome that stopped an abort-policy batch. The
// outcome is spooled when a spool is configured, then released.
func abortWith(ctx context.Context, app *App, outcome *scrape.Outcome, out io.Writer) error {
	defer outcome.Release()
	fmt.Fprintf(out, "stopped at %s (%s): %v\n", outcome.Target, outcome.Kind, outcome.Err)
	if app.Spool != nil {
		uri, err := app.Spool.Save(ctx, app.RunID, outcome)
		if uri != "" {
			fmt.Fprintf(out, "spooled %s\n", uri)
		}
		if err != nil {
			app.Logger.Warn("spooling aborted target failed", zap.String("target", outcome.Target), zap.Error(err))
		}
	}
	return outcome
}
