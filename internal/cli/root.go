// Package cli defines the warden command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/syntrixbase/warden/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigDir string
}

// NewRootCommand creates the root command for the warden CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Priority event dispatcher and cache invalidator",
		Long: `warden consumes gateway events, dispatches them through priority
queues, and keeps the entity cache coherent by following MongoDB change streams.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", config.DefaultDir, "directory holding config.yml and config.local.yml")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}
