package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okulovsky/tgweb-automation/internal/config"
	"github.com/okulovsky/tgweb-automation/internal/orchestrator"
	"github.com/okulovsky/tgweb-automation/internal/sessionstore"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored login sessions",
	Long: `Shows every session file in the sessions directory, with creation and
last-use timestamps. Operates directly on disk; the daemon need not run.

Use --json for machine-readable output.

Examples:
  tgwebd sessions
  tgwebd sessions --json`,
	RunE: runSessions,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <phone>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.Flags().Bool("json", false, "JSON output")
}

func openStore() (*sessionstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return sessionstore.New(cfg.SessionsDir,
		sessionstore.WithEncryptionKey(cfg.EncryptionKey))
}

func runSessions(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	metas, err := store.List()
	if err != nil {
		return err
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(metas)
	}

	if len(metas) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHONE\tCREATED\tLAST USED")
	for _, m := range metas {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			m.Phone,
			m.CreatedAt.Format(time.DateTime),
			m.LastUsedAt.Format(time.DateTime))
	}
	return w.Flush()
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	phone, err := orchestrator.NormalizePhone(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	removed, err := store.Delete(phone)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no session stored for %s", phone)
	}
	fmt.Printf("Deleted session for %s\n", phone)
	return nil
}
