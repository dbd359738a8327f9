// pkg/browser/types.go
package browser

import (
	"context"
)

// Session is one isolated browser tab driven by a single exploration run.
// Every operation is bounded by the configured per-call timeouts; the URL
// the session points at changes only through Navigate or page-side effects
// of Click/Press.
type Session interface {
	// ID returns the unique identifier for this session.
	ID() string

	// Navigate loads a URL, waits for the document to be ready, and lets
	// background network activity settle.
	Navigate(ctx context.Context, url string) error

	// NavigateLenient loads a URL without waiting for readiness. Used as
	// the permissive retry strategy when a strict load fails.
	NavigateLenient(ctx context.Context, url string) error

	// WaitQuiescent blocks until background network activity has settled.
	WaitQuiescent(ctx context.Context) error

	// WaitVisible blocks until the selector resolves to a visible element.
	WaitVisible(ctx context.Context, selector string) error

	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error
	Press(ctx context.Context, selector, key string) error
	Hover(ctx context.Context, selector string) error

	// TextContent returns the text content of the first match.
	TextContent(ctx context.Context, selector string) (string, error)

	// Evaluate runs a JavaScript expression in the page and unmarshals the
	// result into out. Pass nil to discard the result.
	Evaluate(ctx context.Context, expression string, out interface{}) error

	// Screenshot captures the viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Location returns the current URL and document title.
	Location(ctx context.Context) (url string, title string, err error)

	// Scroll moves the viewport: "up", "down", "top", or "bottom".
	Scroll(ctx context.Context, direction string) error

	// ConsoleErrors returns the page script errors observed so far.
	ConsoleErrors() []string

	// Close terminates the tab and releases its resources.
	Close(ctx context.Context) error
}
