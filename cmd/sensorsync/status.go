package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sensorsync/internal/dashboard"
)

var (
	statusURL      string
	statusInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Watch a running agent in the terminal",
	Long:  "status opens a live terminal dashboard against a running agent's admin endpoint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("status needs an interactive terminal; query %s/status directly for machine-readable output", statusURL)
		}
		return dashboard.Run(statusURL, statusInterval)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "http://127.0.0.1:8080", "Admin endpoint base URL of the agent")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", dashboard.DefaultInterval, "Poll interval (e.g. 1s, 5s)")
}
