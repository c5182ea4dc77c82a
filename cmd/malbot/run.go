package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sykelle/myanimelist-bot/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot and its trigger endpoint",
	Long: `Run starts the HTTP trigger surface and waits for pings:

  GET /        triggers a check cycle when the bot is idle
  GET /status  reports the current cycle status
  GET /history lists recently published completions

Each cycle fetches the profile's completed anime and manga lists, publishes
at most one new completion, and persists which ids have been posted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}

		if err := application.Run(cmd.Context()); err != nil {
			return fmt.Errorf("run failed: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
