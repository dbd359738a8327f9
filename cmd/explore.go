// File: cmd/explore.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/internal/config"
	"github.com/xkilldash9x/rover-cli/internal/llmclient"
	"github.com/xkilldash9x/rover-cli/internal/observability"
	"github.com/xkilldash9x/rover-cli/pkg/browser"
	"github.com/xkilldash9x/rover-cli/pkg/explore"
)

// newExploreCmd creates and configures the `explore` command.
func newExploreCmd() *cobra.Command {
	exploreCmd := &cobra.Command{
		Use:   "explore [target URL]",
		Short: "Runs an autonomous exploration session against the target",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so CLI values override the
			// config file and environment with the right precedence.
			for flag, key := range map[string]string{
				"output":      "explore.outputDir",
				"max-actions": "explore.maxTotalActions",
				"test-type":   "explore.testType",
				"profile":     "explore.profile",
				"username":    "explore.credentials.username",
				"password":    "explore.credentials.password",
				"headless":    "browser.headless",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-load so the flag bindings from PreRunE are applied.
			finalCfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			cfg = finalCfg

			target, err := normalizeTarget(args[0])
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			outputDir := filepath.Join(cfg.Explore.OutputDir, runID)

			logger.Info("Starting exploration",
				zap.String("target", target),
				zap.String("output_dir", outputDir),
				zap.Int("max_actions", cfg.Explore.MaxTotalActions),
			)

			result, err := runExploration(ctx, cfg, logger, target, outputDir)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Exploration aborted by signal")
					return fmt.Errorf("exploration aborted")
				}
				return err
			}

			failures := 0
			for _, rec := range result.Actions {
				if rec.Status != explore.StatusSuccess {
					failures++
				}
			}
			fmt.Printf("\nExploration complete. Run ID: %s\n", result.RunID)
			fmt.Printf("  actions: %d (%d failed)\n", len(result.Actions), failures)
			fmt.Printf("  console errors: %d\n", len(result.ConsoleErrors))
			fmt.Printf("  artifacts: %s\n", outputDir)
			return nil
		},
	}

	exploreCmd.Flags().StringP("output", "o", "rover-output", "Directory for screenshots and the action log")
	exploreCmd.Flags().Int("max-actions", 0, "Hard cap on actions for this run (overrides config/env)")
	exploreCmd.Flags().String("test-type", "", "Test pass type, e.g. 'exploratory' or 'regression'")
	exploreCmd.Flags().String("profile", "", "Persona the decision engine should adopt")
	exploreCmd.Flags().String("username", "", "Login username for the target application")
	exploreCmd.Flags().String("password", "", "Login password for the target application")
	exploreCmd.Flags().Bool("headless", true, "Run the browser headless")

	return exploreCmd
}

// normalizeTarget turns the positional argument into a navigable URL. A
// local file path (a saved page or rendered screenshot) becomes a file://
// URL so static content can be explored too.
func normalizeTarget(arg string) (string, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") || strings.HasPrefix(arg, "file://") {
		return arg, nil
	}
	if _, err := os.Stat(arg); err == nil {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path %s: %w", arg, err)
		}
		return "file://" + abs, nil
	}
	return "https://" + arg, nil
}

// runExploration wires the run's components and drives the loop.
func runExploration(ctx context.Context, cfg *config.Config, logger *zap.Logger, target, outputDir string) (explore.RunResult, error) {
	manager, err := browser.NewManager(ctx, logger, cfg)
	if err != nil {
		return explore.RunResult{}, fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser shutdown", zap.Error(err))
		}
	}()

	sess, err := manager.NewSession(ctx)
	if err != nil {
		return explore.RunResult{}, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			logger.Warn("Error closing session", zap.Error(err))
		}
	}()

	artifacts, err := explore.NewArtifactStore(outputDir, logger)
	if err != nil {
		return explore.RunResult{}, err
	}

	cooldown := llmclient.NewCooldown(cfg.Agent.LLM.CooldownWindow)
	engine := buildDecisionMaker(cfg, logger, cooldown)
	fallback := explore.NewGenerator(logger, cfg.Explore.Credentials)
	login := explore.NewDetector(logger, artifacts)
	executor := explore.NewExecutor(logger, artifacts)
	extractor := explore.NewExtractor(logger)

	controller := explore.NewController(logger, cfg.Explore, extractor, engine, fallback, login, executor, artifacts)
	return controller.Run(ctx, sess, target)
}

// buildDecisionMaker returns the LLM-backed engine when a model is
// configured, otherwise a stub that pushes every cycle to the fallback
// generator so the run still works offline.
func buildDecisionMaker(cfg *config.Config, logger *zap.Logger, cooldown *llmclient.Cooldown) explore.DecisionMaker {
	if len(cfg.Agent.LLM.Models) == 0 {
		logger.Warn("No inference models configured, running with deterministic fallback only")
		return offlineDecisionMaker{}
	}
	client, err := llmclient.NewClient(cfg.Agent, logger)
	if err != nil {
		logger.Warn("Inference client unavailable, running with deterministic fallback only", zap.Error(err))
		return offlineDecisionMaker{}
	}
	return explore.NewEngine(logger, client, cooldown, cfg.Explore.MaxBatchSize, cfg.Explore.HistoryWindow)
}

// offlineDecisionMaker declines every cycle without reporting a failure,
// so the deterministic generator drives the whole run.
type offlineDecisionMaker struct{}

func (offlineDecisionMaker) DecideBatch(context.Context, explore.PageContext, string, string, []explore.ActionRecord) ([]explore.Decision, error) {
	return nil, nil
}

func init() {
	rootCmd.AddCommand(newExploreCmd())
}
