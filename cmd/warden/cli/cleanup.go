package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/majorcontext/warden/internal/audit"
	"github.com/majorcontext/warden/internal/run"
	"github.com/majorcontext/warden/internal/ui"
)

var cleanupAll bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove containers left behind by earlier sessions",
	Long: `Remove warden session containers that are no longer in use.

Running containers may belong to another warden process and are kept
unless --all is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		store, err := openAudit(cfg)
		if err != nil {
			return err
		}
		var rec *audit.Recorder
		if store != nil {
			defer store.Close()
			rec = audit.NewRecorder(store, "")
		}

		mgr, err := run.NewManager(run.ManagerOptions{
			Engine:      conn,
			Planner:     newPlanner(cfg),
			RuntimeRoot: cfg.Runtime.Dir,
			Audit:       rec,
		})
		if err != nil {
			return err
		}

		removed, err := mgr.Cleanup(ctx, cleanupAll)
		for _, id := range removed {
			ui.Info(fmt.Sprintf("%s removed %s", ui.OKTag(), shortID(id)))
		}
		if len(removed) == 0 && err == nil {
			ui.Info("Nothing to clean up.")
		}
		return err
	},
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "also remove running containers")
}
