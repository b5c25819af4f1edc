package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
)

func newRulesCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the effective classifier rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				path = cfg.AssistantRulesPath
			}
			classifier, err := assistant.NewClassifierFromFile(path)
			if err != nil {
				return err
			}
			for _, rule := range classifier.Rules() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", rule.Intent, strings.Join(rule.Keywords, ", ")); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "rules file (.toml or .yaml); defaults to ASSISTANT_RULES_PATH")
	return cmd
}
