package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hwscraper-backend/lib/telemetry"
)

var verbose *bool

var rootCmd = &cobra.Command{
	Use:   "scraperd",
	Short: "scraperd pulls homework and exam schedules out of the school portals.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
