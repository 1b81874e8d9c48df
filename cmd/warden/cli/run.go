package cli

import (
	"github.com/spf13/cobra"

	"github.com/majorcontext/warden/internal/plan"
	"github.com/majorcontext/warden/internal/term"
)

var runFlags launchFlags

var runCmd = &cobra.Command{
	Use:   "run [flags] [-- command [args...]]",
	Short: "Run an agent interactively in a fresh container",
	Long: `Run an agent attached to your terminal. The container is removed when
the agent exits, and warden exits with the agent's status.

With no command the built-in agent selected by --agent is started. Anything
after -- runs instead, as a custom agent.

` + term.EscapeHelpText() + `

Examples:
  warden run
  warden run --agent codex --credentials codex
  warden run --repo https://github.com/example/app --github-token
  warden run -m ~/datasets:/data:ro -- bash`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := runFlags.request(plan.Interactive, plan.ProtocolNone, args)
		if err != nil {
			return err
		}
		return launch(req)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addLaunchFlags(runCmd, &runFlags)
}
