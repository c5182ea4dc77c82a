package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sykelle/myanimelist-bot/internal/app"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single check cycle and exit",
	Long: `Check executes one poll-and-publish cycle synchronously, without
starting the HTTP endpoint. Useful under cron or for smoke-testing the
configuration. Exits non-zero when the cycle ends in an error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}

		return application.CheckOnce(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
