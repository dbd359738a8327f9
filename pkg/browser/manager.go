// pkg/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/internal/config"
	"github.com/xkilldash9x/rover-cli/pkg/browser/cdp"
)

// compile-time check that the CDP session satisfies the capability.
var _ Session = (*cdp.Session)(nil)

// Manager owns the headless browser process. Sessions (tabs) are derived
// from its allocator context and tracked for graceful shutdown.
type Manager struct {
	logger     *zap.Logger
	browserCfg config.BrowserConfig
	networkCfg config.NetworkConfig

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewManager launches the browser process and verifies it is responsive.
func NewManager(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	m := &Manager{
		logger:     logger.Named("browser_manager"),
		browserCfg: cfg.Browser,
		networkCfg: cfg.Network,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...")

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions()...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	// Run a throwaway task to confirm the process starts and responds.
	testCtx, cancelTest := context.WithTimeout(allocCtx, 30*time.Second)
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()
	defer cancelTest()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	// Defaults first, then unset the flag that advertises automation.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", m.browserCfg.Headless),
		chromedp.Flag("ignore-certificate-errors", m.browserCfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.browserCfg.Headless),
		chromedp.UserAgent(m.browserCfg.UserAgent),
	)

	// Custom arguments from the config file.
	for _, arg := range m.browserCfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Container environments need these on Linux.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// NewSession creates a new isolated tab for one exploration run.
func (m *Manager) NewSession(ctx context.Context) (Session, error) {
	sess := cdp.NewSession(m.allocatorCtx, m.browserCfg, m.networkCfg, m.logger)
	if err := sess.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize browser session: %w", err)
	}

	m.wg.Add(1)
	return &sessionWrapper{Session: sess, wg: &m.wg}, nil
}

// Shutdown waits for active sessions and terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for active sessions...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions have completed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}

// sessionWrapper decrements the manager's WaitGroup exactly once on close.
type sessionWrapper struct {
	Session
	wg     *sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

func (sw *sessionWrapper) Close(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return nil
	}
	err := sw.Session.Close(ctx)
	sw.closed = true
	sw.wg.Done()
	return err
}
