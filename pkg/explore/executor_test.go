// pkg/explore/executor_test.go
package explore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(zap.NewNop(), newTestArtifactStore(t))
}

func TestExecuteClickWaitsForReadiness(t *testing.T) {
	sess := newFakeSession()
	execErr := newTestExecutor(t).Execute(context.Background(), sess,
		Decision{Action: ActionClick, Target: "#go", WaitFor: WaitNetworkIdle})

	require.Nil(t, execErr)
	assert.Equal(t, []string{"waitVisible #go", "evaluate", "click #go", "waitQuiescent"}, sess.callLog())
}

func TestExecuteClassifiesReadinessFailures(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"timeout", context.DeadlineExceeded, FailureTimeout},
		{"missing element", fmt.Errorf("could not find node for selector"), FailureNotFound},
		{"hidden element", fmt.Errorf("element is not visible"), FailureNotVisible},
		{"anything else", fmt.Errorf("target crashed"), FailureUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sess := newFakeSession()
			sess.onWaitVisible = func(string) error { return tc.err }

			execErr := newTestExecutor(t).Execute(context.Background(), sess,
				Decision{Action: ActionClick, Target: "#go"})

			require.NotNil(t, execErr)
			assert.Equal(t, tc.want, execErr.Class)
			assert.True(t, errors.Is(execErr, tc.err))
		})
	}
}

func TestExecuteClickRejectsDisabledElement(t *testing.T) {
	sess := newFakeSession()
	sess.onEvaluate = func(_ string, out interface{}) error {
		if flag, ok := out.(*bool); ok {
			*flag = true
		}
		return nil
	}

	execErr := newTestExecutor(t).Execute(context.Background(), sess,
		Decision{Action: ActionClick, Target: "#save"})

	require.NotNil(t, execErr)
	assert.Equal(t, FailureNotVisible, execErr.Class)
	assert.NotContains(t, sess.callLog(), "click #save")
}

func TestExecuteRequiresTargetForElementActions(t *testing.T) {
	for _, kind := range []ActionKind{ActionClick, ActionFill, ActionSelect, ActionHover, ActionAssertText} {
		sess := newFakeSession()
		execErr := newTestExecutor(t).Execute(context.Background(), sess, Decision{Action: kind})

		require.NotNil(t, execErr, "action %s without target", kind)
		assert.Equal(t, FailureInvalid, execErr.Class)
		assert.Empty(t, sess.callLog())
	}
}

func TestExecuteUnknownActionKind(t *testing.T) {
	execErr := newTestExecutor(t).Execute(context.Background(), newFakeSession(),
		Decision{Action: ActionKind("teleport"), Target: "#x"})

	require.NotNil(t, execErr)
	assert.Equal(t, FailureInvalid, execErr.Class)
}

func TestExecuteAssertText(t *testing.T) {
	sess := newFakeSession()
	sess.onTextContent = func(string) (string, error) {
		return "Your order has shipped and is on its way.", nil
	}
	exec := newTestExecutor(t)

	pass := exec.Execute(context.Background(), sess,
		Decision{Action: ActionAssertText, Target: "#status", Value: "order has shipped"})
	assert.Nil(t, pass)

	fail := exec.Execute(context.Background(), sess,
		Decision{Action: ActionAssertText, Target: "#status", Value: "payment declined"})
	require.NotNil(t, fail)
	assert.Equal(t, FailureAssertion, fail.Class)
	assert.Contains(t, fail.Error(), "payment declined")
}

func TestExecuteNavigatePicksURLFromValueOrTarget(t *testing.T) {
	sess := newFakeSession()
	exec := newTestExecutor(t)

	require.Nil(t, exec.Execute(context.Background(), sess,
		Decision{Action: ActionNavigate, Value: "https://example.test/a"}))
	require.Nil(t, exec.Execute(context.Background(), sess,
		Decision{Action: ActionNavigate, Target: "https://example.test/b"}))

	log := sess.callLog()
	assert.Contains(t, log, "navigate https://example.test/a")
	assert.Contains(t, log, "navigate https://example.test/b")

	execErr := exec.Execute(context.Background(), sess, Decision{Action: ActionNavigate})
	require.NotNil(t, execErr)
	assert.Equal(t, FailureInvalid, execErr.Class)
}

func TestExecuteWaitHonorsDurationAndCancellation(t *testing.T) {
	exec := newTestExecutor(t)

	start := time.Now()
	require.Nil(t, exec.Execute(context.Background(), newFakeSession(),
		Decision{Action: ActionWait, Value: "50"}))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	execErr := exec.Execute(ctx, newFakeSession(), Decision{Action: ActionWait, Value: "60000"})
	require.NotNil(t, execErr)
	assert.True(t, errors.Is(execErr, context.Canceled))
}

func TestExecuteScrollDefaultsDown(t *testing.T) {
	sess := newFakeSession()
	exec := newTestExecutor(t)

	require.Nil(t, exec.Execute(context.Background(), sess, Decision{Action: ActionScroll}))
	require.Nil(t, exec.Execute(context.Background(), sess, Decision{Action: ActionScroll, Target: "TOP"}))

	assert.Equal(t, []string{"scroll down", "scroll top"}, sess.callLog())
}

func TestExecuteScreenshotRecordsArtifact(t *testing.T) {
	store := newTestArtifactStore(t)
	exec := NewExecutor(zap.NewNop(), store)

	require.Nil(t, exec.Execute(context.Background(), newFakeSession(), Decision{Action: ActionScreenshot}))
	assert.Len(t, store.List(), 1)
}

func TestExecutionErrorMessage(t *testing.T) {
	err := &ExecutionError{
		Class:  FailureTimeout,
		Action: ActionClick,
		Target: "#slow",
		Err:    context.DeadlineExceeded,
	}
	assert.Equal(t, `click #slow failed (timeout): context deadline exceeded`, err.Error())
}
