// pkg/browser/cdp/session.go
package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/internal/config"
)

// Session drives a single, isolated browser tab over CDP.
type Session struct {
	id           string
	browserCfg   config.BrowserConfig
	networkCfg   config.NetworkConfig
	logger       *zap.Logger
	allocatorCtx context.Context

	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	consoleErrors []string
	isClosed      bool
	mu            sync.Mutex
}

// NewSession creates the session structure. Initialize must be called next.
func NewSession(allocCtx context.Context, browserCfg config.BrowserConfig, networkCfg config.NetworkConfig, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:           id,
		allocatorCtx: allocCtx,
		browserCfg:   browserCfg,
		networkCfg:   networkCfg,
		logger:       logger.With(zap.String("session_id", id[:8])),
	}
}

// Initialize creates the browser tab and attaches the console listener.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.sessionCtx != nil {
		s.mu.Unlock()
		return fmt.Errorf("session already initialized")
	}
	sessionCtx, cancel := chromedp.NewContext(s.allocatorCtx)
	s.sessionCtx = sessionCtx
	s.sessionCancel = cancel
	s.mu.Unlock()

	// Page script errors are harvested for the run result.
	chromedp.ListenTarget(sessionCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			if e.Type == runtime.APITypeError {
				s.appendConsoleError(formatConsoleArgs(e.Args))
			}
		case *runtime.EventExceptionThrown:
			if e.ExceptionDetails != nil {
				s.appendConsoleError(e.ExceptionDetails.Error())
			}
		}
	})

	// Creating the chromedp context is lazy; run a no-op to materialize the
	// tab so a broken browser surfaces here instead of mid-run.
	if err := chromedp.Run(sessionCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to create browser tab: %w", err)
	}

	s.logger.Info("Browser session initialized.")
	return nil
}

func (s *Session) appendConsoleError(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consoleErrors = append(s.consoleErrors, msg)
}

func formatConsoleArgs(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if len(arg.Value) > 0 {
			parts = append(parts, strings.Trim(string(arg.Value), `"`))
		} else if arg.Description != "" {
			parts = append(parts, arg.Description)
		}
	}
	return strings.Join(parts, " ")
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// run executes chromedp actions under the given deadline, aborting early if
// the caller's context is already cancelled.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(s.sessionCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads a URL and waits for the page to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	return s.run(ctx, s.networkCfg.NavigationTimeout,
		chromedp.ActionFunc(func(c context.Context) error {
			if s.browserCfg.DisableCache {
				return network.SetCacheDisabled(true).Do(c)
			}
			return nil
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.networkCfg.QuiescenceWait),
	)
}

// NavigateLenient loads a URL without any readiness wait.
func (s *Session) NavigateLenient(ctx context.Context, url string) error {
	s.logger.Debug("Navigating (lenient)", zap.String("url", url))
	return s.run(ctx, s.networkCfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.Sleep(s.networkCfg.QuiescenceWait),
	)
}

// WaitQuiescent waits for the document to be ready and network activity to
// settle for the configured window.
func (s *Session) WaitQuiescent(ctx context.Context) error {
	return s.run(ctx, s.networkCfg.NavigationTimeout,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.networkCfg.QuiescenceWait),
	)
}

// WaitVisible blocks until the selector matches a visible element.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, s.networkCfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
	)
}

// Click scrolls the element into view and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, s.networkCfg.ActionTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// Fill clears the current value and types the new one.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx, s.networkCfg.ActionTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// SelectOption sets the value of a select control.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	return s.run(ctx, s.networkCfg.ActionTimeout,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	)
}

// Press sends a key chord to the element.
func (s *Session) Press(ctx context.Context, selector, key string) error {
	return s.run(ctx, s.networkCfg.ActionTimeout,
		chromedp.SendKeys(selector, translateKey(key), chromedp.ByQuery),
	)
}

// translateKey maps common key names to their CDP rune representation.
func translateKey(key string) string {
	switch strings.ToLower(key) {
	case "enter", "return":
		return kb.Enter
	case "tab":
		return kb.Tab
	case "escape", "esc":
		return kb.Escape
	case "backspace":
		return kb.Backspace
	case "delete":
		return kb.Delete
	case "arrowup":
		return kb.ArrowUp
	case "arrowdown":
		return kb.ArrowDown
	case "arrowleft":
		return kb.ArrowLeft
	case "arrowright":
		return kb.ArrowRight
	default:
		return key
	}
}

// Hover dispatches a mouseover event to the element.
func (s *Session) Hover(ctx context.Context, selector string) error {
	var found bool
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
		el.dispatchEvent(new MouseEvent('mouseenter', {bubbles: false}));
		return true;
	})()`, selector)
	if err := s.run(ctx, s.networkCfg.ActionTimeout, chromedp.Evaluate(expr, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no element matches selector %q", selector)
	}
	return nil
}

// TextContent returns the text content of the first matching element.
func (s *Session) TextContent(ctx context.Context, selector string) (string, error) {
	var text string
	err := s.run(ctx, s.networkCfg.ActionTimeout,
		chromedp.Text(selector, &text, chromedp.ByQuery),
	)
	return text, err
}

// Evaluate runs a JavaScript expression and unmarshals the result.
func (s *Session) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return s.run(ctx, s.networkCfg.ActionTimeout,
		chromedp.Evaluate(expression, out),
	)
}

// Screenshot captures the current viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, s.networkCfg.ActionTimeout,
		chromedp.CaptureScreenshot(&buf),
	)
	return buf, err
}

// Location returns the current URL and document title.
func (s *Session) Location(ctx context.Context) (string, string, error) {
	var url, title string
	err := s.run(ctx, s.networkCfg.ActionTimeout,
		chromedp.Location(&url),
		chromedp.Title(&title),
	)
	return url, title, err
}

// Scroll moves the viewport in the given direction.
func (s *Session) Scroll(ctx context.Context, direction string) error {
	var expr string
	switch strings.ToLower(direction) {
	case "up":
		expr = "window.scrollBy(0, -window.innerHeight)"
	case "top":
		expr = "window.scrollTo(0, 0)"
	case "bottom":
		expr = "window.scrollTo(0, document.body.scrollHeight)"
	default: // "down"
		expr = "window.scrollBy(0, window.innerHeight)"
	}
	return s.run(ctx, s.networkCfg.ActionTimeout, chromedp.Evaluate(expr, nil))
}

// ConsoleErrors returns a copy of the page script errors observed so far.
func (s *Session) ConsoleErrors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.consoleErrors))
	copy(out, s.consoleErrors)
	return out
}

// Close terminates the tab.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil
	}
	s.isClosed = true
	if s.sessionCancel != nil {
		s.sessionCancel()
	}
	s.logger.Debug("Browser session closed.")
	return nil
}
