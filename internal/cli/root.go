package cli

import (
	"github.com/spf13/cobra"

	"clinicagenda/internal/config"
)

// NewRootCmd builds the clinicctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clinicctl",
		Short: "Operate the clinic agenda service",
		Long: `clinicctl manages the agenda database schema, mints staff session tokens
for local use and queries slot availability over gRPC.

Settings come from the same CLINIC_* environment variables and optional
config file the server reads.`,
		SilenceUsage: true,
	}

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newSlotsCmd())
	return root
}

// Execute runs clinicctl with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

var loadConfig = config.Load
