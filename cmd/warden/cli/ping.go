package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/warden/internal/engine"
	"github.com/majorcontext/warden/internal/ui"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the container engine is reachable",
	Long: `Connect to the configured engine endpoint and run a health check.

The endpoint comes from engine.host in the config file, WARDEN_ENGINE_HOST,
or DOCKER_HOST, in that order of precedence for the environment variables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), engine.HealthCheckTimeout+5*time.Second)
		defer cancel()

		start := time.Now()
		conn, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		ui.Info(fmt.Sprintf("%s %s (%s, %s)", ui.OKTag(), conn.Endpoint().String(),
			conn.Endpoint().Mode, time.Since(start).Round(time.Millisecond)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
