package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/warden/internal/audit"
	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/ui"
)

var auditType string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the security audit log",
	Long: `Warden appends security-relevant events (mounts, container lifecycle,
credential copies, ACP denials and trust-boundary changes) to a
hash-chained log. Each entry commits to the one before it, so any edit
or deletion breaks the chain.`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log hash chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := requireAudit()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Verify()
		if err != nil {
			ui.Error(fmt.Sprintf("%s chain broken after %d entries", ui.FailTag(), n))
			return err
		}
		ui.Info(fmt.Sprintf("%s %d entries verified", ui.OKTag(), n))
		return nil
	},
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print audit entries",
	Long: `Print audit entries to stdout, oldest first. With --json each entry is
written as one JSON object per line.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := requireAudit()
		if err != nil {
			return err
		}
		defer store.Close()

		var entries []*audit.Entry
		if auditType != "" {
			entries, err = store.ByType(audit.EntryType(auditType))
		} else if n := store.Count(); n > 0 {
			entries, err = store.Range(audit.FirstSequence, n)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			enc := json.NewEncoder(out)
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		}
		for _, e := range entries {
			data, _ := json.Marshal(e.Data)
			fmt.Fprintf(out, "%6d  %s  %-14s %s\n", e.Sequence, e.Timestamp.Local().Format(time.DateTime), e.Type, data)
		}
		return nil
	},
}

func requireAudit() (*audit.Store, error) {
	store, err := openAudit(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fault.Missing("audit.path")
	}
	return store, nil
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditListCmd)
	auditListCmd.Flags().StringVar(&auditType, "type", "", "only entries of this type (mount, container, credential, acp_denial, trust_boundary)")
}
