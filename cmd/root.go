// Package cmd defines and implements the CLI commands for the menuscraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// cli carries state shared by the root command and its subcommands.
type cli struct {
	factory appFactory
	cfgFile string
	app     *App
}

// newRootCmd creates and configures the root command.
func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menuscraper",
		Short: "Scrapes venue menus into a relational store.",
		Long: `menuscraper visits venue pages one at a time, extracts menu items or venue
details, and appends them to a table. Targets already present in the table are
skipped, so an interrupted batch can simply be run again.`,
		SilenceUsage: true,

		// Runs after flags are parsed but before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.factory(cmd.Context(), c.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			c.app = app
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newItemsCmd(c))
	cmd.AddCommand(newVenuesCmd(c))
	cmd.AddCommand(newRemainingCmd(c))

	return cmd
}

func (c *cli) resolveApp() (*App, error) {
	if c.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return c.app, nil
}

func (c *cli) close() {
	c.app.Close()
	c.app = nil
}

// run executes the command tree with args and always closes the App.
func run(ctx context.Context, c *cli, args []string, out io.Writer) error {
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(out)
	defer c.close()
	return root.ExecuteContext(ctx)
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cli{factory: buildApp}, os.Args[1:], os.Stdout); err != nil {
		stop()
		os.Exit(1)
	}
}
