// pkg/explore/executor.go
package explore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/pkg/browser"
)

// FailureClass is the inferred cause of an execution failure.
type FailureClass string

const (
	FailureTimeout    FailureClass = "timeout"
	FailureNotFound   FailureClass = "not-found"
	FailureNotVisible FailureClass = "not-visible"
	FailureAssertion  FailureClass = "assertion"
	FailureInvalid    FailureClass = "invalid"
	FailureUnknown    FailureClass = "unknown"
)

// ExecutionError is the typed failure returned by the executor. Execution
// failures are recorded and never abort the run by themselves.
type ExecutionError struct {
	Class  FailureClass
	Action ActionKind
	Target string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s failed (%s): %v", e.Action, e.Target, e.Class, e.Err)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Action, e.Class, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// classifyFailure infers the failure class from the underlying error text.
func classifyFailure(err error) FailureClass {
	if err == nil {
		return FailureUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return FailureTimeout
	case strings.Contains(msg, "no element") || strings.Contains(msg, "could not find") || strings.Contains(msg, "not found"):
		return FailureNotFound
	case strings.Contains(msg, "not visible") || strings.Contains(msg, "hidden"):
		return FailureNotVisible
	default:
		return FailureUnknown
	}
}

// Executor performs one decided action against the browser session.
type Executor struct {
	logger    *zap.Logger
	artifacts *ArtifactStore
}

// NewExecutor creates an action executor writing screenshots into the
// given artifact store.
func NewExecutor(logger *zap.Logger, artifacts *ArtifactStore) *Executor {
	return &Executor{logger: logger.Named("executor"), artifacts: artifacts}
}

// Execute performs the decision. It returns nil on success or a typed
// *ExecutionError describing why the action failed.
func (x *Executor) Execute(ctx context.Context, sess browser.Session, d Decision) *ExecutionError {
	if err := x.readinessCheck(ctx, sess, d); err != nil {
		return err
	}

	switch d.Action {
	case ActionNavigate:
		return x.navigate(ctx, sess, d)
	case ActionClick:
		return x.click(ctx, sess, d)
	case ActionFill:
		return x.fill(ctx, sess, d)
	case ActionSelect:
		return wrapErr(d, sess.SelectOption(ctx, d.Target, d.Value))
	case ActionPress:
		return wrapErr(d, sess.Press(ctx, d.Target, d.Value))
	case ActionHover:
		return wrapErr(d, sess.Hover(ctx, d.Target))
	case ActionAssertText:
		return x.assertText(ctx, sess, d)
	case ActionWait:
		return x.wait(ctx, d)
	case ActionScreenshot:
		if _, err := x.artifacts.SaveScreenshot(ctx, sess, "action"); err != nil {
			return wrapErr(d, err)
		}
		return nil
	case ActionScroll:
		return wrapErr(d, sess.Scroll(ctx, scrollDirection(d)))
	default:
		return &ExecutionError{
			Class:  FailureInvalid,
			Action: d.Action,
			Target: d.Target,
			Err:    fmt.Errorf("unknown action kind %q", d.Action),
		}
	}
}

// readinessCheck verifies the target exists, is visible, and is operable
// before any element-addressed action runs. Fail fast, no silent skips.
func (x *Executor) readinessCheck(ctx context.Context, sess browser.Session, d Decision) *ExecutionError {
	switch d.Action {
	case ActionNavigate, ActionPress, ActionWait, ActionScreenshot, ActionScroll:
		return nil
	}
	if d.Target == "" {
		return &ExecutionError{
			Class:  FailureInvalid,
			Action: d.Action,
			Err:    fmt.Errorf("action requires a target selector"),
		}
	}

	if err := sess.WaitVisible(ctx, d.Target); err != nil {
		return wrapErr(d, fmt.Errorf("target not ready: %w", err))
	}

	switch d.Action {
	case ActionClick:
		if disabled, err := x.elementFlag(ctx, sess, d.Target, "disabled"); err == nil && disabled {
			return &ExecutionError{Class: FailureNotVisible, Action: d.Action, Target: d.Target,
				Err: fmt.Errorf("element is disabled")}
		}
	case ActionFill, ActionSelect:
		if readOnly, err := x.elementFlag(ctx, sess, d.Target, "readOnly"); err == nil && readOnly {
			return &ExecutionError{Class: FailureNotVisible, Action: d.Action, Target: d.Target,
				Err: fmt.Errorf("element is read-only")}
		}
	}
	return nil
}

func (x *Executor) elementFlag(ctx context.Context, sess browser.Session, selector, property string) (bool, error) {
	expr := fmt.Sprintf(`(() => { const el = document.querySelector(%q); return el ? !!el[%q] : false; })()`,
		selector, property)
	var flag bool
	if err := sess.Evaluate(ctx, expr, &flag); err != nil {
		return false, err
	}
	return flag, nil
}

func (x *Executor) navigate(ctx context.Context, sess browser.Session, d Decision) *ExecutionError {
	url := d.Value
	if url == "" {
		url = d.Target
	}
	if url == "" {
		return &ExecutionError{Class: FailureInvalid, Action: d.Action, Err: fmt.Errorf("navigate requires a URL")}
	}

	var err error
	if d.WaitFor == WaitLoad {
		err = sess.NavigateLenient(ctx, url)
	} else {
		err = sess.Navigate(ctx, url)
	}
	return wrapErr(d, err)
}

func (x *Executor) click(ctx context.Context, sess browser.Session, d Decision) *ExecutionError {
	if err := sess.Click(ctx, d.Target); err != nil {
		return wrapErr(d, err)
	}
	switch d.WaitFor {
	case "", WaitNetworkIdle:
		return wrapErr(d, sess.WaitQuiescent(ctx))
	case WaitInput, WaitLoad:
		return wrapErr(d, sess.WaitQuiescent(ctx))
	default:
		// A named selector: wait for it to appear.
		return wrapErr(d, sess.WaitVisible(ctx, d.WaitFor))
	}
}

func (x *Executor) fill(ctx context.Context, sess browser.Session, d Decision) *ExecutionError {
	if err := sess.Fill(ctx, d.Target, d.Value); err != nil {
		return wrapErr(d, err)
	}
	if d.WaitFor == WaitInput {
		// Give reactive UIs a beat to settle before the next action.
		select {
		case <-time.After(300 * time.Millisecond):
		case <-ctx.Done():
			return wrapErr(d, ctx.Err())
		}
	}
	return nil
}

func (x *Executor) assertText(ctx context.Context, sess browser.Session, d Decision) *ExecutionError {
	text, err := sess.TextContent(ctx, d.Target)
	if err != nil {
		return wrapErr(d, fmt.Errorf("failed to read text: %w", err))
	}
	if !strings.Contains(text, d.Value) {
		return &ExecutionError{
			Class:  FailureAssertion,
			Action: d.Action,
			Target: d.Target,
			Err:    fmt.Errorf("expected text %q, element contains %q", d.Value, truncate(text, 120)),
		}
	}
	return nil
}

func (x *Executor) wait(ctx context.Context, d Decision) *ExecutionError {
	ms := 2000
	for _, raw := range []string{d.Value, d.Target} {
		if raw == "" {
			continue
		}
		if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
			ms = parsed
			break
		}
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return wrapErr(d, ctx.Err())
	}
}

func scrollDirection(d Decision) string {
	for _, raw := range []string{d.Target, d.Value} {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "up", "down", "top", "bottom":
			return strings.ToLower(strings.TrimSpace(raw))
		}
	}
	return "down"
}

// wrapErr annotates a raw browser error with the inferred failure class.
func wrapErr(d Decision, err error) *ExecutionError {
	if err == nil {
		return nil
	}
	return &ExecutionError{
		Class:  classifyFailure(err),
		Action: d.Action,
		Target: d.Target,
		Err:    err,
	}
}
