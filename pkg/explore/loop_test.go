// pkg/explore/loop_test.go
package explore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/internal/config"
	"github.com/xkilldash9x/rover-cli/pkg/browser"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubEngine struct {
	fn    func(cycle int) ([]Decision, error)
	cycle int
}

func (s *stubEngine) DecideBatch(_ context.Context, _ PageContext, _, _ string, _ []ActionRecord) ([]Decision, error) {
	s.cycle++
	return s.fn(s.cycle)
}

type stubFallback struct {
	batch []Decision
	calls int
}

func (s *stubFallback) Generate(_ PageContext, _ string) []Decision {
	s.calls++
	return s.batch
}

type loginRecorder struct {
	result bool
	calls  int
}

func (s *loginRecorder) AttemptLogin(_ context.Context, _ browser.Session, _ config.Credentials, _ PageContext) bool {
	s.calls++
	return s.result
}

func testExploreConfig(t *testing.T) config.ExploreConfig {
	t.Helper()
	return config.ExploreConfig{
		MaxTotalActions:        50,
		MaxConsecutiveFailures: 5,
		SoftActionCap:          30,
		SoftFailureCap:         3,
		MaxBatchSize:           4,
		HistoryWindow:          10,
		OutputDir:              t.TempDir(),
		TestType:               "exploratory",
	}
}

func newTestController(t *testing.T, cfg config.ExploreConfig, engine DecisionMaker, fallback FallbackMaker, login LoginAttempter) (*Controller, *ArtifactStore) {
	t.Helper()
	store, err := NewArtifactStore(cfg.OutputDir, zap.NewNop())
	require.NoError(t, err)
	logger := zap.NewNop()
	return NewController(
		logger, cfg,
		NewExtractor(logger),
		engine, fallback, login,
		NewExecutor(logger, store),
		store,
	), store
}

func screenshotBatch() []Decision {
	return []Decision{{Action: ActionScreenshot, Text: "capture page state"}}
}

func TestRunStopsAtActionBudget(t *testing.T) {
	engine := &stubEngine{fn: func(int) ([]Decision, error) {
		return []Decision{
			{Action: ActionScroll, Value: "down"},
			{Action: ActionScroll, Value: "up"},
		}, nil
	}}
	ctrl, _ := newTestController(t, testExploreConfig(t), engine, &stubFallback{}, &loginRecorder{})

	result, err := ctrl.Run(context.Background(), newFakeSession(), "https://example.test/")

	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(result.Actions), 50)
	assert.Less(t, len(result.Actions), 50+4, "overshoot is bounded by one batch")
}

func TestRunStopsAfterConsecutiveEngineFailures(t *testing.T) {
	engine := &stubEngine{fn: func(int) ([]Decision, error) {
		return nil, fmt.Errorf("inference request failed")
	}}
	fallback := &stubFallback{batch: screenshotBatch()}
	ctrl, _ := newTestController(t, testExploreConfig(t), engine, fallback, &loginRecorder{})

	result, err := ctrl.Run(context.Background(), newFakeSession(), "https://example.test/")

	require.NoError(t, err)
	// Cycles run while failures <= 5; the sixth failure trips the rule.
	assert.Equal(t, 6, engine.cycle)
	assert.Len(t, result.Actions, 6, "each failed cycle still executes one fallback action")
}

func TestRunEngineSuccessResetsFailureStreak(t *testing.T) {
	engine := &stubEngine{fn: func(cycle int) ([]Decision, error) {
		if cycle%4 == 0 {
			return []Decision{{Action: ActionScroll, Value: "down"}}, nil
		}
		return nil, fmt.Errorf("inference request failed")
	}}
	fallback := &stubFallback{batch: screenshotBatch()}
	ctrl, _ := newTestController(t, testExploreConfig(t), engine, fallback, &loginRecorder{})

	result, err := ctrl.Run(context.Background(), newFakeSession(), "https://example.test/")

	require.NoError(t, err)
	// Three failures, then a success resets the streak: the failure rule
	// never fires, so the run walks all the way to the action budget.
	assert.GreaterOrEqual(t, len(result.Actions), 50)
}

func TestRunStopsOnDiminishingReturns(t *testing.T) {
	// The engine behaves until 32 actions are on the books, then starts
	// failing. Past the soft action cap the run tolerates fewer
	// consecutive decision failures, so it stops at 4 instead of 6.
	engine := &stubEngine{fn: func(cycle int) ([]Decision, error) {
		if cycle <= 8 {
			return []Decision{
				{Action: ActionScroll, Value: "down"},
				{Action: ActionScroll, Value: "up"},
				{Action: ActionScroll, Value: "down"},
				{Action: ActionScroll, Value: "up"},
			}, nil
		}
		return nil, fmt.Errorf("inference request failed")
	}}
	fallback := &stubFallback{batch: screenshotBatch()}
	ctrl, _ := newTestController(t, testExploreConfig(t), engine, fallback, &loginRecorder{})

	result, err := ctrl.Run(context.Background(), newFakeSession(), "https://example.test/")

	require.NoError(t, err)
	// 8 clean cycles of 4, then 4 fallback cycles of 1.
	assert.Len(t, result.Actions, 36)
	assert.Equal(t, 12, engine.cycle)
}

func TestRunStopsWhenBothSourcesAreEmpty(t *testing.T) {
	engine := &stubEngine{fn: func(int) ([]Decision, error) { return nil, nil }}
	fallback := &stubFallback{}
	ctrl, _ := newTestController(t, testExploreConfig(t), engine, fallback, &loginRecorder{})

	result, err := ctrl.Run(context.Background(), newFakeSession(), "https://example.test/")

	require.NoError(t, err)
	assert.Empty(t, result.Actions)
	assert.Equal(t, 1, fallback.calls)
}

func TestRunFailedInitialNavigationIsFatal(t *testing.T) {
	sess := newFakeSession()
	sess.onNavigate = func(string) error { return fmt.Errorf("net::ERR_CONNECTION_REFUSED") }
	sess.onNavigateLenient = func(string) error { return fmt.Errorf("net::ERR_CONNECTION_REFUSED") }
	ctrl, _ := newTestController(t, testExploreConfig(t), &stubEngine{}, &stubFallback{}, &loginRecorder{})

	_, err := ctrl.Run(context.Background(), sess, "https://down.test/")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial navigation")
}

func TestRunLenientRetryRecoversNavigation(t *testing.T) {
	sess := newFakeSession()
	sess.onNavigate = func(string) error { return fmt.Errorf("page load timed out") }
	engine := &stubEngine{fn: func(int) ([]Decision, error) { return nil, nil }}
	ctrl, _ := newTestController(t, testExploreConfig(t), engine, &stubFallback{}, &loginRecorder{})

	_, err := ctrl.Run(context.Background(), sess, "https://slow.test/")

	require.NoError(t, err)
	assert.Contains(t, sess.callLog(), "navigateLenient https://slow.test/")
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctrl, _ := newTestController(t, testExploreConfig(t), &stubEngine{}, &stubFallback{}, &loginRecorder{})

	result, err := ctrl.Run(ctx, newFakeSession(), "https://example.test/")

	require.NoError(t, err)
	assert.Empty(t, result.Actions)
}

func TestRunAttemptsLoginExactlyOnce(t *testing.T) {
	sess := newFakeSession()
	sess.onEvaluate = func(_ string, out interface{}) error {
		if snap, ok := out.(*pageSnapshot); ok {
			*snap = pageSnapshot{
				Elements: []rawElement{
					{Tag: "input", Type: "text", Text: "Username", Name: "username", Visible: true, Interactive: true, Path: "form > input:nth-child(1)"},
					{Tag: "input", Type: "password", Name: "password", Text: "Password", Visible: true, Interactive: true, Path: "form > input:nth-child(2)"},
					{Tag: "button", Type: "submit", Text: "Sign In", Visible: true, Interactive: true, Path: "form > button:nth-child(3)"},
				},
				HasForm: true,
			}
		}
		return nil
	}

	cfg := testExploreConfig(t)
	cfg.Credentials = config.Credentials{Username: "tester", Password: "hunter2"}
	cfg.MaxTotalActions = 6

	login := &loginRecorder{}
	engine := &stubEngine{fn: func(int) ([]Decision, error) {
		return []Decision{{Action: ActionScroll, Value: "down"}}, nil
	}}
	ctrl, _ := newTestController(t, cfg, engine, &stubFallback{}, login)

	result, err := ctrl.Run(context.Background(), sess, "https://example.test/login")

	require.NoError(t, err)
	assert.Equal(t, 1, login.calls, "the page keeps showing a login form but only one attempt is made")

	var loginRecords int
	for _, rec := range result.Actions {
		if rec.Action == actionLogin {
			loginRecords++
		}
	}
	assert.Equal(t, 1, loginRecords)
}

func TestRunSkipsLoginWithoutCredentials(t *testing.T) {
	login := &loginRecorder{}
	engine := &stubEngine{fn: func(int) ([]Decision, error) { return nil, nil }}
	ctrl, _ := newTestController(t, testExploreConfig(t), engine, &stubFallback{}, login)

	_, err := ctrl.Run(context.Background(), newFakeSession(), "https://example.test/")

	require.NoError(t, err)
	assert.Zero(t, login.calls)
}

func TestRunWritesActionLog(t *testing.T) {
	cfg := testExploreConfig(t)
	engine := &stubEngine{fn: func(int) ([]Decision, error) { return nil, nil }}
	ctrl, store := newTestController(t, cfg, engine, &stubFallback{}, &loginRecorder{})

	result, err := ctrl.Run(context.Background(), newFakeSession(), "https://example.test/")

	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)

	path := filepath.Join(store.Dir(), "actions.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded RunResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, result.RunID, decoded.RunID)
	assert.Equal(t, "https://example.test/", decoded.TargetURL)
	assert.False(t, decoded.FinishedAt.IsZero())
}

func TestRunCollectsConsoleErrors(t *testing.T) {
	sess := newFakeSession()
	sess.consoleErrs = []string{"TypeError: undefined is not a function"}
	engine := &stubEngine{fn: func(int) ([]Decision, error) { return nil, nil }}
	ctrl, _ := newTestController(t, testExploreConfig(t), engine, &stubFallback{}, &loginRecorder{})

	result, err := ctrl.Run(context.Background(), newFakeSession(), "https://example.test/")
	require.NoError(t, err)
	assert.Empty(t, result.ConsoleErrors)

	result, err = ctrl.Run(context.Background(), sess, "https://example.test/")
	require.NoError(t, err)
	assert.Equal(t, []string{"TypeError: undefined is not a function"}, result.ConsoleErrors)
}
