// pkg/explore/fallback.go
package explore

import (
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/internal/config"
)

var primaryNavKeywords = []string{"home", "dashboard", "main"}

// Generator produces a deterministic action batch when the decision engine
// is unavailable. It makes no external calls and never returns an empty
// batch.
type Generator struct {
	logger *zap.Logger
	creds  config.Credentials
}

// NewGenerator creates a fallback generator.
func NewGenerator(logger *zap.Logger, creds config.Credentials) *Generator {
	return &Generator{logger: logger.Named("fallback"), creds: creds}
}

// Generate emits up to four actions for the current page, by priority:
// exercise a login form, follow primary navigation, fill the first text
// input, assert on an important text element, and screenshot visible
// errors. A lone screenshot is the floor.
func (g *Generator) Generate(pc PageContext, profile string) []Decision {
	const maxBatch = 4
	var out []Decision

	if login := FindLoginElements(pc); len(pc.FormElements) >= 2 && login.Username != nil && login.Password != nil {
		username, password := g.credentialValues()
		out = append(out,
			Decision{Action: ActionFill, Target: login.Username.Selector, Value: username, Text: "fill username", WaitFor: WaitInput},
			Decision{Action: ActionFill, Target: login.Password.Selector, Value: password, Text: "fill password", WaitFor: WaitInput},
		)
		if login.Submit != nil {
			out = append(out, Decision{Action: ActionClick, Target: login.Submit.Selector, Text: "submit login form", WaitFor: WaitNetworkIdle})
		}
	} else if pc.PageType == PageTypeNavigation {
		if nav := pickPrimaryNavigation(pc.NavigationElements); nav != nil {
			out = append(out, Decision{Action: ActionClick, Target: nav.Selector, Text: "follow primary navigation: " + nav.Text, WaitFor: WaitNetworkIdle})
		}
	} else if pc.PageType == PageTypeForm {
		if input := firstFillableInput(pc.FormElements); input != nil {
			out = append(out, Decision{Action: ActionFill, Target: input.Selector, Value: syntheticValue(*input), Text: "fill " + displayName(*input), WaitFor: WaitInput})
		}
	}

	if len(out) < maxBatch {
		if el := pickImportantText(pc.AllElements); el != nil {
			out = append(out, Decision{Action: ActionAssertText, Target: el.Selector, Value: el.Text, Text: "verify page text is present"})
		}
	}

	if len(out) < maxBatch && len(pc.ErrorMessages) > 0 {
		out = append(out, Decision{Action: ActionScreenshot, Text: "capture visible error state"})
	}

	if len(out) == 0 {
		out = append(out, Decision{Action: ActionScreenshot, Text: "capture page state"})
	}
	if len(out) > maxBatch {
		out = out[:maxBatch]
	}

	g.logger.Debug("Fallback batch generated", zap.Int("count", len(out)), zap.String("page_type", string(pc.PageType)))
	return out
}

func (g *Generator) credentialValues() (string, string) {
	if g.creds.Configured() {
		return g.creds.Username, g.creds.Password
	}
	return "qa.tester@example.com", "Test1234!"
}

// pickPrimaryNavigation prefers links whose text names a primary
// destination; otherwise the first navigation element wins.
func pickPrimaryNavigation(elements []ElementInfo) *ElementInfo {
	for i := range elements {
		if containsAny(elements[i].Text, primaryNavKeywords) {
			return &elements[i]
		}
	}
	if len(elements) > 0 {
		return &elements[0]
	}
	return nil
}

func firstFillableInput(elements []ElementInfo) *ElementInfo {
	for i := range elements {
		el := &elements[i]
		if el.Tag == "select" || el.Type == "password" || el.Type == "checkbox" ||
			el.Type == "radio" || el.Type == "submit" || el.Type == "button" ||
			el.Type == "hidden" || el.ReadOnly || el.Disabled {
			continue
		}
		return el
	}
	return nil
}

// syntheticValue picks a type-appropriate test value for an input.
func syntheticValue(el ElementInfo) string {
	hint := strings.ToLower(el.Text + " " + el.Type)
	switch {
	case el.Type == "email" || strings.Contains(hint, "email"):
		return "qa.tester@example.com"
	case strings.Contains(hint, "name"):
		return "QA Tester"
	case el.Type == "number" || strings.Contains(hint, "amount") || strings.Contains(hint, "quantity"):
		return "42"
	case el.Type == "tel" || strings.Contains(hint, "phone"):
		return "+1 555 0100"
	default:
		return "test value"
	}
}

var boilerplateKeywords = []string{"copyright", "all rights reserved", "privacy", "cookie", "terms of"}

// pickImportantText finds a text element worth asserting on: readable
// length, not boilerplate, not an interactive control.
func pickImportantText(elements []ElementInfo) *ElementInfo {
	for i := range elements {
		el := &elements[i]
		if el.Interactive {
			continue
		}
		if len(el.Text) < 10 || len(el.Text) > 100 {
			continue
		}
		if containsAny(el.Text, boilerplateKeywords) {
			continue
		}
		return el
	}
	return nil
}

func displayName(el ElementInfo) string {
	if el.Text != "" {
		return el.Text
	}
	return el.Tag
}
