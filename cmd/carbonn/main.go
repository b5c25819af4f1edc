package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "carbonn",
		Short:         "carbonN assistant tooling",
		SilenceUsage: true,
	}
	root.AddCommand(newAskCmd(), newMigrateCmd(), newRulesCmd())
	return root
}
