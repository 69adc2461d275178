package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

func newRemainingCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "remaining [items|venues]",
		Short:     "List targets not yet present in a table",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"items", "venues"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.resolveApp()
			if err != nil {
				return err
			}
			table := app.Config.Scrape.ItemsTable
			if len(args) == 1 && args[0] == "venues" {
				table = app.Config.Scrape.VenuesTable
			}
			desired, err := app.Config.Targets()
			if err != nil {
				return fmt.Errorf("load targets: %w", err)
			}
			res, err := scrape.NewResolver(app.Store, app.Logger).Resolve(cmd.Context(), desired, app.Config.Scrape.TargetColumn, table)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, target := range res.Remaining {
				fmt.Fprintln(out, target)
			}
			fmt.Fprintf(out, "# %d remaining, %d done in %s\n", len(res.Remaining), res.Done, table)
			return nil
		},
	}
}
