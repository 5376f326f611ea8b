package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-crosspost/internal/app"
	"github.com/blackmichael/bluesky-crosspost/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "crosspost",
		Short:         "Mirror Mastodon posts and profiles to a Bluesky PDS",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")

	open := func() (*app.App, error) {
		level := cfg.LogLevel
		if strings.TrimSpace(logLevel) != "" {
			level = logLevel
		}
		logger, err := app.NewLogger(os.Stderr, level)
		if err != nil {
			return nil, err
		}
		return app.New(cfg, logger)
	}

	cmd.AddCommand(
		newPostCmd(open),
		newDeleteCmd(open),
		newSyncProfileCmd(open),
		newCreateAccountCmd(open),
		newSetCrossPostingCmd(open, true),
		newSetCrossPostingCmd(open, false),
		newAccountCmd(open),
	)

	return cmd
}

// opener builds the application stack for a single command invocation.
type opener func() (*app.App, error)
