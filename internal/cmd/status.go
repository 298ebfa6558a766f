package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Iron-Ham/wrangler/internal/config"
	"github.com/Iron-Ham/wrangler/internal/errors"
	"github.com/Iron-Ham/wrangler/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last persisted system snapshot",
	Long: `Reads the snapshot written by a running (or cleanly stopped) coordinator
and prints the workers and work units it recorded. Pooled workers are cache
and are not part of the snapshot.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "print the raw snapshot as JSON")
	_ = viper.BindPFlag("status.json", statusCmd.Flags().Lookup("json"))
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	st, err := newStore(cfg, logging.NopLogger())
	if err != nil {
		return err
	}

	snap, err := st.LoadSnapshot()
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			fmt.Println("No snapshot found; the coordinator has not run yet.")
			return nil
		}
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if viper.GetBool("status.json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Printf("Snapshot from %s\n\n", snap.SavedAt.Format("2006-01-02 15:04:05"))

	if len(snap.Workers) == 0 {
		fmt.Println("No workers.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WORKER\tROLE\tSTATE\tTEAM")
		for _, wk := range snap.Workers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", wk.ID, wk.Role, wk.State, wk.TeamID)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(snap.Work) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WORK\tWORKER\tDONE\tDESCRIPTION")
		for _, u := range snap.Work {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", u.ID, u.WorkerID, u.Done, u.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(snap.ContextIDs) > 0 {
		fmt.Printf("\n%d resumable context(s); run 'wrangler contexts' to inspect.\n", len(snap.ContextIDs))
	}
	return nil
}
