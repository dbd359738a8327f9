// pkg/explore/login.go
package explore

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/internal/config"
	"github.com/xkilldash9x/rover-cli/pkg/browser"
)

// LoginElements holds the three slots a login attempt needs. Any slot may
// be nil; an attempt is only made when all three are resolved.
type LoginElements struct {
	Username *ElementInfo
	Password *ElementInfo
	Submit   *ElementInfo
}

// Complete reports whether every slot is resolved.
func (le LoginElements) Complete() bool {
	return le.Username != nil && le.Password != nil && le.Submit != nil
}

var (
	usernameKeywords = []string{"username", "email", "login", "user"}
	passwordKeywords = []string{"password"}
	submitKeywords   = []string{"login", "sign in", "submit", "log in", "enter"}
	successKeywords  = []string{"dashboard", "welcome", "profile", "account", "home", "main"}
)

func containsAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// FindLoginElements matches the context's form controls and interactive
// elements against the login keyword sets. Pure function; no browser calls.
func FindLoginElements(pc PageContext) LoginElements {
	var le LoginElements

	for i := range pc.FormElements {
		el := &pc.FormElements[i]
		switch {
		case le.Username == nil && el.Type != "password" && (el.Type == "email" || containsAny(el.Text, usernameKeywords)):
			le.Username = el
		case le.Password == nil && (el.Type == "password" || containsAny(el.Text, passwordKeywords)):
			le.Password = el
		}
	}

	for i := range pc.InteractiveElements {
		el := &pc.InteractiveElements[i]
		if isFormControl(el.Tag) && el.Type != "submit" && el.Type != "button" {
			continue
		}
		if containsAny(el.Text, submitKeywords) {
			le.Submit = el
			break
		}
	}

	return le
}

// Detector exercises a login form found on the current page.
type Detector struct {
	logger    *zap.Logger
	artifacts *ArtifactStore
}

// NewDetector creates a login detector writing pre-login screenshots into
// the given artifact store.
func NewDetector(logger *zap.Logger, artifacts *ArtifactStore) *Detector {
	return &Detector{logger: logger.Named("login"), artifacts: artifacts}
}

// AttemptLogin fills and submits the login form, then verifies the result.
// It mutates page state and must be invoked at most once per run; the run
// loop enforces that with its LoginAttempted flag.
func (d *Detector) AttemptLogin(ctx context.Context, sess browser.Session, creds config.Credentials, pc PageContext) bool {
	le := FindLoginElements(pc)
	if !le.Complete() {
		d.logger.Debug("Login form incomplete, skipping attempt")
		return false
	}

	d.logger.Info("Attempting login",
		zap.String("username_selector", le.Username.Selector),
		zap.String("submit_selector", le.Submit.Selector),
	)

	if _, err := d.artifacts.SaveScreenshot(ctx, sess, "pre-login"); err != nil {
		d.logger.Warn("Pre-login screenshot failed", zap.Error(err))
	}

	if err := sess.Fill(ctx, le.Username.Selector, creds.Username); err != nil {
		d.logger.Warn("Failed to fill username", zap.Error(err))
		return false
	}
	if err := sess.Fill(ctx, le.Password.Selector, creds.Password); err != nil {
		d.logger.Warn("Failed to fill password", zap.Error(err))
		return false
	}
	if err := sess.Click(ctx, le.Submit.Selector); err != nil {
		d.logger.Warn("Failed to click submit", zap.Error(err))
		return false
	}

	if err := sess.WaitQuiescent(ctx); err != nil {
		d.logger.Warn("Post-login quiescence wait failed", zap.Error(err))
	}

	ok := d.verifySuccess(ctx, sess)
	d.logger.Info("Login attempt finished", zap.Bool("success", ok))
	return ok
}

// verifySuccess checks the post-submit page for login-success signals: a
// success keyword in the URL or title, the keyword set in page text, or the
// login form having disappeared.
func (d *Detector) verifySuccess(ctx context.Context, sess browser.Session) bool {
	url, title, err := sess.Location(ctx)
	if err == nil && (containsAny(url, successKeywords) || containsAny(title, successKeywords)) {
		return true
	}

	var bodyText string
	if err := sess.Evaluate(ctx, "document.body.innerText.slice(0, 4000)", &bodyText); err == nil {
		if containsAny(bodyText, successKeywords) {
			return true
		}
	}

	var hasForm bool
	if err := sess.Evaluate(ctx, "!!document.querySelector('form')", &hasForm); err == nil && !hasForm {
		return true
	}

	return false
}
