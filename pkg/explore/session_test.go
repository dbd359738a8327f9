// pkg/explore/session_test.go
package explore

import (
	"context"
	"sync"
)

// fakeSession is a scriptable browser.Session for tests. Hooks default to
// benign no-ops; every call is recorded for order assertions.
type fakeSession struct {
	mu    sync.Mutex
	calls []string

	onNavigate        func(url string) error
	onNavigateLenient func(url string) error
	onWaitVisible     func(selector string) error
	onClick           func(selector string) error
	onFill            func(selector, value string) error
	onTextContent     func(selector string) (string, error)
	onEvaluate        func(expression string, out interface{}) error
	onLocation        func() (string, string, error)
	onScreenshot      func() ([]byte, error)

	consoleErrs []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{}
}

func (f *fakeSession) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSession) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeSession) ID() string { return "fake-session" }

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.record("navigate " + url)
	if f.onNavigate != nil {
		return f.onNavigate(url)
	}
	return nil
}

func (f *fakeSession) NavigateLenient(_ context.Context, url string) error {
	f.record("navigateLenient " + url)
	if f.onNavigateLenient != nil {
		return f.onNavigateLenient(url)
	}
	return nil
}

func (f *fakeSession) WaitQuiescent(_ context.Context) error {
	f.record("waitQuiescent")
	return nil
}

func (f *fakeSession) WaitVisible(_ context.Context, selector string) error {
	f.record("waitVisible " + selector)
	if f.onWaitVisible != nil {
		return f.onWaitVisible(selector)
	}
	return nil
}

func (f *fakeSession) Click(_ context.Context, selector string) error {
	f.record("click " + selector)
	if f.onClick != nil {
		return f.onClick(selector)
	}
	return nil
}

func (f *fakeSession) Fill(_ context.Context, selector, value string) error {
	f.record("fill " + selector)
	if f.onFill != nil {
		return f.onFill(selector, value)
	}
	return nil
}

func (f *fakeSession) SelectOption(_ context.Context, selector, value string) error {
	f.record("select " + selector)
	return nil
}

func (f *fakeSession) Press(_ context.Context, selector, key string) error {
	f.record("press " + selector + " " + key)
	return nil
}

func (f *fakeSession) Hover(_ context.Context, selector string) error {
	f.record("hover " + selector)
	return nil
}

func (f *fakeSession) TextContent(_ context.Context, selector string) (string, error) {
	f.record("textContent " + selector)
	if f.onTextContent != nil {
		return f.onTextContent(selector)
	}
	return "", nil
}

func (f *fakeSession) Evaluate(_ context.Context, expression string, out interface{}) error {
	f.record("evaluate")
	if f.onEvaluate != nil {
		return f.onEvaluate(expression, out)
	}
	return nil
}

func (f *fakeSession) Screenshot(_ context.Context) ([]byte, error) {
	f.record("screenshot")
	if f.onScreenshot != nil {
		return f.onScreenshot()
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (f *fakeSession) Location(_ context.Context) (string, string, error) {
	f.record("location")
	if f.onLocation != nil {
		return f.onLocation()
	}
	return "https://example.test/", "Example", nil
}

func (f *fakeSession) Scroll(_ context.Context, direction string) error {
	f.record("scroll " + direction)
	return nil
}

func (f *fakeSession) ConsoleErrors() []string {
	return f.consoleErrs
}

func (f *fakeSession) Close(_ context.Context) error {
	f.record("close")
	return nil
}
