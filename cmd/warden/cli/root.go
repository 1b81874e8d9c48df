// Package cli implements the warden command-line interface using Cobra.
package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/majorcontext/warden/internal/config"
	"github.com/majorcontext/warden/internal/log"
	"github.com/majorcontext/warden/internal/term"
	"github.com/majorcontext/warden/internal/ui"
)

var (
	verbose bool
	jsonOut bool

	// cfg is loaded once per invocation by the root pre-run hook.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - run AI coding agents inside isolated containers",
	Long: `Warden runs AI coding agents (claude, codex, gemini or your own command)
inside a container. The host keeps the credentials and decides what the
agent may see: mounts are confined to allowlisted roots, and agents hosted
over the Agent Client Protocol cannot reach the host's terminal or files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		// Warnings would tear an interactive raw-mode display.
		quiet := cmd.Name() == "run" && !verbose &&
			term.IsTerminal(os.Stdin) && term.IsTerminal(os.Stdout)

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			Quiet:         quiet,
			DebugDir:      config.DebugDir(),
			RetentionDays: cfg.Debug.RetentionDays,
		}); err != nil {
			// Non-fatal: the default stderr logger stays in place.
			ui.Warnf("failed to initialize debug logging: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// exitError carries the agent's exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "agent exited with a non-zero status" }

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return exitCode(rootCmd.Execute())
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	ui.ReportError(err)
	return 1
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "write diagnostics as JSON")
}
