// File: cmd/heal.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/rover-cli/internal/llmclient"
	"github.com/xkilldash9x/rover-cli/internal/observability"
	"github.com/xkilldash9x/rover-cli/pkg/explore"
)

// newHealCmd creates the `heal` command: repair a broken CSS selector
// against a saved page snapshot. Useful for fixing recorded test scripts
// without re-running a full exploration.
func newHealCmd() *cobra.Command {
	var (
		selector string
		htmlFile string
	)

	healCmd := &cobra.Command{
		Use:   "heal",
		Short: "Proposes a replacement for a broken CSS selector",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			pageHTML, err := os.ReadFile(htmlFile)
			if err != nil {
				return fmt.Errorf("failed to read page HTML: %w", err)
			}

			client, err := llmclient.NewClient(cfg.Agent, logger)
			if err != nil {
				return fmt.Errorf("healing requires a configured inference model: %w", err)
			}

			healer := explore.NewHealer(logger, client)
			healed, reason := healer.Heal(cmd.Context(), selector, string(pageHTML))
			fmt.Printf("%s\t(%s)\n", healed, reason)
			return nil
		},
	}

	healCmd.Flags().StringVarP(&selector, "selector", "s", "", "The broken CSS selector")
	healCmd.Flags().StringVarP(&htmlFile, "html-file", "f", "", "Path to the saved page HTML")
	_ = healCmd.MarkFlagRequired("selector")
	_ = healCmd.MarkFlagRequired("html-file")

	return healCmd
}

func init() {
	rootCmd.AddCommand(newHealCmd())
}
