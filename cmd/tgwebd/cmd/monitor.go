package cmd

import (
	"github.com/spf13/cobra"

	"github.com/okulovsky/tgweb-automation/internal/tui"
)

var monitorAddr string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live terminal view of a running daemon",
	Long: `Opens a full-screen monitor showing active jobs, their states, input
deadlines, and slot usage, refreshed every couple of seconds.

Examples:
  tgwebd monitor
  tgwebd monitor --addr http://127.0.0.1:9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.Run(monitorAddr)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorAddr, "addr", "http://127.0.0.1:8484", "Daemon base URL")
}
