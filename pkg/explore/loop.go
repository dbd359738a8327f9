// pkg/explore/loop.go
package explore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/internal/config"
	"github.com/xkilldash9x/rover-cli/pkg/browser"
)

// DecisionMaker produces the next batch of actions for a page state.
type DecisionMaker interface {
	DecideBatch(ctx context.Context, pc PageContext, testType, profile string, history []ActionRecord) ([]Decision, error)
}

// FallbackMaker produces a deterministic batch when the decision maker fails.
type FallbackMaker interface {
	Generate(pc PageContext, profile string) []Decision
}

// LoginAttempter runs the one-time login sequence when a login form is found.
type LoginAttempter interface {
	AttemptLogin(ctx context.Context, sess browser.Session, creds config.Credentials, pc PageContext) bool
}

// Controller owns one exploration run: navigate, observe, decide, act,
// repeat until a termination rule fires.
type Controller struct {
	logger    *zap.Logger
	cfg       config.ExploreConfig
	extractor *Extractor
	engine    DecisionMaker
	fallback  FallbackMaker
	login     LoginAttempter
	executor  *Executor
	artifacts *ArtifactStore

	now func() time.Time
}

// NewController wires an exploration run from its collaborators.
func NewController(
	logger *zap.Logger,
	cfg config.ExploreConfig,
	extractor *Extractor,
	engine DecisionMaker,
	fallback FallbackMaker,
	login LoginAttempter,
	executor *Executor,
	artifacts *ArtifactStore,
) *Controller {
	return &Controller{
		logger:    logger.Named("loop"),
		cfg:       cfg,
		extractor: extractor,
		engine:    engine,
		fallback:  fallback,
		login:     login,
		executor:  executor,
		artifacts: artifacts,
		now:       time.Now,
	}
}

// Run executes the full exploration loop against the target URL. It returns
// a result for every run that got past initial navigation; only a failed
// initial navigation (after one lenient retry) or context cancellation is
// a hard error.
func (c *Controller) Run(ctx context.Context, sess browser.Session, targetURL string) (RunResult, error) {
	run := RunSession{
		RunID:     uuid.NewString(),
		TargetURL: targetURL,
		StartedAt: c.now().UTC(),
	}
	log := c.logger.With(zap.String("run_id", run.RunID), zap.String("target", targetURL))
	log.Info("Starting exploration run")

	history := make([]ActionRecord, 0, c.cfg.MaxTotalActions)

	if err := c.initialNavigate(ctx, sess, targetURL); err != nil {
		return RunResult{}, fmt.Errorf("initial navigation to %s failed: %w", targetURL, err)
	}
	if _, err := c.artifacts.SaveScreenshot(ctx, sess, "initial"); err != nil {
		log.Warn("Initial screenshot failed", zap.Error(err))
	}

	for {
		if err := ctx.Err(); err != nil {
			log.Info("Run cancelled", zap.Error(err))
			return c.finish(ctx, sess, &run, history), nil
		}
		if reason := c.terminationReason(&run); reason != "" {
			log.Info("Terminating run", zap.String("reason", reason))
			return c.finish(ctx, sess, &run, history), nil
		}

		pc := c.extractor.Extract(ctx, sess)

		if !run.LoginAttempted && c.cfg.Credentials.Configured() {
			if le := FindLoginElements(pc); le.Complete() {
				run.LoginAttempted = true
				ok := c.login.AttemptLogin(ctx, sess, c.cfg.Credentials, pc)
				history = append(history, ActionRecord{
					Action:    actionLogin,
					Status:    loginStatus(ok),
					Target:    le.Username.Selector,
					Notes:     "automated credential submission",
					Timestamp: c.now().UTC(),
				})
				if _, err := c.artifacts.SaveScreenshot(ctx, sess, "post_login"); err != nil {
					log.Warn("Post-login screenshot failed", zap.Error(err))
				}
				continue
			}
		}

		batch, fromEngine := c.decide(ctx, &run, pc, history)
		if len(batch) == 0 {
			log.Info("Both decision sources returned empty batches, stopping")
			return c.finish(ctx, sess, &run, history), nil
		}

		for _, d := range batch {
			if err := ctx.Err(); err != nil {
				return c.finish(ctx, sess, &run, history), nil
			}
			history = append(history, c.executeOne(ctx, sess, d))
			run.TotalActionsGenerated++
		}
		if fromEngine {
			run.ConsecutiveAIFailures = 0
		}

		if _, err := c.artifacts.SaveScreenshot(ctx, sess, "cycle"); err != nil {
			log.Debug("Cycle screenshot failed", zap.Error(err))
		}
	}
}

// initialNavigate tries a strict navigation first, then retries once in
// lenient mode before giving up on the run.
func (c *Controller) initialNavigate(ctx context.Context, sess browser.Session, url string) error {
	err := sess.Navigate(ctx, url)
	if err == nil {
		return nil
	}
	c.logger.Warn("Strict navigation failed, retrying leniently", zap.Error(err))
	return sess.NavigateLenient(ctx, url)
}

// terminationReason evaluates the stop rules in priority order. An empty
// string means the loop may continue.
func (c *Controller) terminationReason(run *RunSession) string {
	if run.ConsecutiveAIFailures > c.cfg.MaxConsecutiveFailures {
		return fmt.Sprintf("decision engine failed %d consecutive times", run.ConsecutiveAIFailures)
	}
	if run.TotalActionsGenerated > c.cfg.SoftActionCap && run.ConsecutiveAIFailures > c.cfg.SoftFailureCap {
		return fmt.Sprintf("%d actions with %d consecutive decision failures, diminishing returns",
			run.TotalActionsGenerated, run.ConsecutiveAIFailures)
	}
	if run.TotalActionsGenerated >= c.cfg.MaxTotalActions {
		return fmt.Sprintf("action budget of %d reached", c.cfg.MaxTotalActions)
	}
	return ""
}

// decide asks the engine first and falls back to the deterministic
// generator on any engine error, bumping the consecutive failure counter.
func (c *Controller) decide(ctx context.Context, run *RunSession, pc PageContext, history []ActionRecord) ([]Decision, bool) {
	batch, err := c.engine.DecideBatch(ctx, pc, c.cfg.TestType, c.cfg.Profile, recentHistory(history, c.cfg.HistoryWindow))
	if err == nil && len(batch) > 0 {
		return batch, true
	}
	if err != nil {
		run.ConsecutiveAIFailures++
		c.logger.Warn("Decision engine failed, using fallback",
			zap.Int("consecutive_failures", run.ConsecutiveAIFailures), zap.Error(err))
	}
	return c.fallback.Generate(pc, c.cfg.Profile), false
}

func (c *Controller) executeOne(ctx context.Context, sess browser.Session, d Decision) ActionRecord {
	rec := ActionRecord{
		Action:    d.Action,
		Status:    StatusSuccess,
		Target:    d.Target,
		Value:     d.Value,
		Notes:     d.Notes,
		Timestamp: c.now().UTC(),
	}
	if execErr := c.executor.Execute(ctx, sess, d); execErr != nil {
		rec.Status = StatusError
		rec.Notes = appendNote(rec.Notes, execErr.Error())
		c.logger.Warn("Action failed",
			zap.String("action", string(d.Action)),
			zap.String("target", d.Target),
			zap.String("class", string(execErr.Class)))
	} else {
		c.logger.Info("Action executed",
			zap.String("action", string(d.Action)),
			zap.String("target", d.Target))
	}
	return rec
}

// finish collects artifacts and console errors and writes the action log.
func (c *Controller) finish(ctx context.Context, sess browser.Session, run *RunSession, history []ActionRecord) RunResult {
	if _, err := c.artifacts.SaveScreenshot(ctx, sess, "final"); err != nil {
		c.logger.Debug("Final screenshot failed", zap.Error(err))
	}
	c.artifacts.ScanVideos()

	result := RunResult{
		RunID:         run.RunID,
		TargetURL:     run.TargetURL,
		StartedAt:     run.StartedAt,
		FinishedAt:    c.now().UTC(),
		Actions:       history,
		Artifacts:     c.artifacts.List(),
		ConsoleErrors: sess.ConsoleErrors(),
	}
	if err := c.writeActionLog(result); err != nil {
		c.logger.Warn("Failed to write action log", zap.Error(err))
	}
	c.logger.Info("Run complete",
		zap.Int("actions", len(history)),
		zap.Int("failures", countFailures(history)),
		zap.Int("console_errors", len(result.ConsoleErrors)))
	return result
}

func (c *Controller) writeActionLog(result RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run result: %w", err)
	}
	path := filepath.Join(c.artifacts.Dir(), "actions.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func countFailures(history []ActionRecord) int {
	n := 0
	for _, rec := range history {
		if rec.Status == StatusError {
			n++
		}
	}
	return n
}

func recentHistory(history []ActionRecord, window int) []ActionRecord {
	if window <= 0 || len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}

func loginStatus(ok bool) string {
	if ok {
		return StatusSuccess
	}
	return StatusError
}
