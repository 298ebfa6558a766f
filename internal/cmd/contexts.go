package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Iron-Ham/wrangler/internal/config"
	"github.com/Iron-Ham/wrangler/internal/logging"
	"github.com/spf13/cobra"
)

var contextsCmd = &cobra.Command{
	Use:   "contexts",
	Short: "List suspended workers that can be resumed",
	Long: `Lists every persisted resumable context, oldest first. Each entry is a
suspended conversation that a future run can continue. Contexts are only
removed on resume or explicit discard; they survive restarts and worker
destruction.`,
	RunE: runContexts,
}

var contextsDiscardCmd = &cobra.Command{
	Use:   "discard <worker-id>",
	Short: "Permanently discard a resumable context",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextsDiscard,
}

func init() {
	rootCmd.AddCommand(contextsCmd)
	contextsCmd.AddCommand(contextsDiscardCmd)
}

func runContexts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	st, err := newStore(cfg, logging.NopLogger())
	if err != nil {
		return err
	}

	contexts, err := st.ListContexts()
	if err != nil {
		return fmt.Errorf("failed to list resumable contexts: %w", err)
	}
	if len(contexts) == 0 {
		fmt.Println("No resumable contexts.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WORKER\tROLE\tREASON\tSUSPENDED\tWORK")
	for _, rc := range contexts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rc.WorkerID,
			rc.Role,
			rc.Reason,
			rc.SuspendedAt.Format("2006-01-02 15:04:05"),
			rc.WorkDescription)
	}
	return w.Flush()
}

func runContextsDiscard(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	st, err := newStore(cfg, logging.NopLogger())
	if err != nil {
		return err
	}

	if err := st.DeleteContext(args[0]); err != nil {
		return fmt.Errorf("failed to discard context: %w", err)
	}
	fmt.Printf("Discarded resumable context for worker %s\n", args[0])
	return nil
}
