// Package cmd implements the CLI commands for tgwebd.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tgwebd",
	Short: "Telegram Web login automation daemon",
	Long: `tgwebd automates interactive Telegram Web logins.

A login is a multi-step conversation: the daemon opens a browser, enters the
phone number, and then waits for you to relay the one-time code (and the cloud
password, if the account has one) through the HTTP API. Successful logins are
exported and stored as reusable session files.

Run "tgwebd serve" to start the daemon, then drive it over HTTP:

  curl -X POST localhost:8484/auth/start -d '{"phone":"+15551234567"}'
  curl localhost:8484/auth/status/<job_id>
  curl -X POST localhost:8484/auth/submit-otp -d '{"job_id":"...","code":"12345"}'`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
