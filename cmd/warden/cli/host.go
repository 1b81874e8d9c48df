package cli

import (
	"github.com/spf13/cobra"

	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/plan"
)

var (
	hostFlags    launchFlags
	hostProtocol string
)

var hostCmd = &cobra.Command{
	Use:   "host [flags] [-- command [args...]]",
	Short: "Host an agent as a protocol server on stdin/stdout",
	Long: `Host an agent so an editor or other client can talk to it over stdio.
Standard output carries only the agent's bytes; every diagnostic goes to
standard error.

With --protocol acp (the default) the Agent Client Protocol handshake is
filtered so the agent cannot use the client's terminal or filesystem.
Set acp_delegate in the config, or WARDEN_ACP_DELEGATE=1, to lift that.

Examples:
  warden host --agent claude
  warden host --protocol raw -- my-mcp-server --stdio`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var proto plan.Protocol
		switch hostProtocol {
		case "acp":
			proto = plan.ProtocolACP
		case "raw":
			proto = plan.ProtocolRaw
		default:
			return fault.Invalid("agent.protocol", "--protocol must be acp or raw")
		}
		req, err := hostFlags.request(plan.Hosting, proto, args)
		if err != nil {
			return err
		}
		return launch(req)
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
	addLaunchFlags(hostCmd, &hostFlags)
	hostCmd.Flags().StringVar(&hostProtocol, "protocol", "acp", "protocol the agent speaks: acp or raw")
}
