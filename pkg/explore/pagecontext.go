// pkg/explore/pagecontext.go
package explore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/pkg/browser"
)

// snapshotScript walks the rendered DOM and returns a bounded description
// of every visible, interactable-or-textual node plus page-level signals.
// Selector assembly and classification happen on the Go side.
const snapshotScript = `(() => {
	const out = [];
	const limit = 150;
	const query = 'a, button, input, select, textarea, form, nav, main, label, [role], [onclick], h1, h2, h3, h4, p, li, span';
	const interactiveTags = ['a', 'button', 'input', 'select', 'textarea'];
	const pathOf = (el) => {
		const parts = [];
		let cur = el;
		while (cur && cur.nodeType === 1 && cur.tagName !== 'HTML') {
			let idx = 1;
			let sib = cur;
			while ((sib = sib.previousElementSibling)) idx++;
			parts.unshift(cur.tagName.toLowerCase() + ':nth-child(' + idx + ')');
			cur = cur.parentElement;
		}
		return 'html > ' + parts.join(' > ');
	};
	for (const el of document.querySelectorAll(query)) {
		if (out.length >= limit) break;
		const tag = el.tagName.toLowerCase();
		if (tag === 'form' || tag === 'nav' || tag === 'main') continue;
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const visible = rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none';
		if (!visible) continue;
		const role = el.getAttribute('role') || '';
		const interactive = interactiveTags.includes(tag) ||
			el.hasAttribute('onclick') || role === 'button' || role === 'link';
		const text = (el.innerText || el.value || el.getAttribute('placeholder') ||
			el.getAttribute('aria-label') || '').trim().replace(/\s+/g, ' ').slice(0, 80);
		if (!interactive && text === '') continue;
		let testAttr = '';
		let testValue = '';
		for (const attr of ['data-testid', 'data-test', 'data-cy']) {
			const v = el.getAttribute(attr);
			if (v) { testAttr = attr; testValue = v; break; }
		}
		out.push({
			tag: tag,
			text: text,
			id: el.id || '',
			name: el.getAttribute('name') || '',
			class: (el.classList.length > 0 ? el.classList[0] : ''),
			testAttr: testAttr,
			testValue: testValue,
			type: el.getAttribute('type') || '',
			role: role,
			visible: visible,
			interactive: interactive,
			disabled: !!el.disabled,
			readOnly: !!el.readOnly,
			inNav: !!el.closest('nav, [role=navigation]'),
			path: pathOf(el),
		});
	}
	const errors = [];
	for (const el of document.querySelectorAll('[role=alert], .error, .alert, .alert-danger, .validation-error, .warning')) {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') continue;
		const t = (el.innerText || '').trim();
		if (t) errors.push(t.slice(0, 200));
	}
	return {
		elements: out,
		errors: errors,
		hasForm: !!document.querySelector('form'),
		navLinkCount: document.querySelectorAll('nav a, [role=navigation] a').length,
		hasMainLandmark: !!document.querySelector('main, [role=main], article'),
	};
})()`

type rawElement struct {
	Tag         string `json:"tag"`
	Text        string `json:"text"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Class       string `json:"class"`
	TestAttr    string `json:"testAttr"`
	TestValue   string `json:"testValue"`
	Type        string `json:"type"`
	Role        string `json:"role"`
	Visible     bool   `json:"visible"`
	Interactive bool   `json:"interactive"`
	Disabled    bool   `json:"disabled"`
	ReadOnly    bool   `json:"readOnly"`
	InNav       bool   `json:"inNav"`
	Path        string `json:"path"`
}

type pageSnapshot struct {
	Elements        []rawElement `json:"elements"`
	Errors          []string     `json:"errors"`
	HasForm         bool         `json:"hasForm"`
	NavLinkCount    int          `json:"navLinkCount"`
	HasMainLandmark bool         `json:"hasMainLandmark"`
}

// Extractor snapshots the current page into a PageContext. It is
// side-effect free and never returns an error: on any internal failure it
// degrades to an empty context with PageTypeUnknown.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates a page context extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("extractor")}
}

// Extract builds a PageContext from the live DOM.
func (e *Extractor) Extract(ctx context.Context, sess browser.Session) PageContext {
	pc := PageContext{PageType: PageTypeUnknown}

	url, title, err := sess.Location(ctx)
	if err != nil {
		e.logger.Warn("Failed to read page location", zap.Error(err))
	}
	pc.URL = url
	pc.Title = title

	var snapshot pageSnapshot
	if err := sess.Evaluate(ctx, snapshotScript, &snapshot); err != nil {
		e.logger.Warn("Page snapshot failed, returning empty context", zap.Error(err))
		return pc
	}

	pc.ErrorMessages = snapshot.Errors
	pc.HasForm = snapshot.HasForm

	formControls := 0
	for _, raw := range snapshot.Elements {
		el := buildElement(raw)
		pc.AllElements = append(pc.AllElements, el)

		if isFormControl(raw.Tag) {
			formControls++
			pc.FormElements = append(pc.FormElements, el)
		}
		if el.Interactive {
			pc.InteractiveElements = append(pc.InteractiveElements, el)
		}
		if isNavigational(raw) {
			pc.NavigationElements = append(pc.NavigationElements, el)
		}
	}

	pc.PageType = classify(snapshot, formControls, len(pc.NavigationElements))

	e.logger.Debug("Page context extracted",
		zap.String("page_type", string(pc.PageType)),
		zap.Int("elements", len(pc.AllElements)),
		zap.Int("errors", len(pc.ErrorMessages)),
	)
	return pc
}

func isFormControl(tag string) bool {
	return tag == "input" || tag == "select" || tag == "textarea"
}

func isNavigational(raw rawElement) bool {
	return raw.Tag == "a" || raw.InNav || raw.Role == "navigation" || raw.Role == "link"
}

// classify applies the majority rule: form controls dominate, then
// navigation density, then a main-content landmark.
func classify(snapshot pageSnapshot, formControls, navElements int) PageType {
	switch {
	case formControls >= 2 || snapshot.HasForm:
		return PageTypeForm
	case navElements > 3 || snapshot.NavLinkCount > 3:
		return PageTypeNavigation
	case snapshot.HasMainLandmark:
		return PageTypeContent
	default:
		return PageTypeUnknown
	}
}

// cssIdentRe matches values safe to interpolate into a selector unquoted.
var cssIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// buildElement assembles the ranked selector candidates for one node and
// picks the best queryable one as the primary selector.
func buildElement(raw rawElement) ElementInfo {
	var candidates []SelectorCandidate

	if raw.ID != "" && cssIdentRe.MatchString(raw.ID) {
		candidates = append(candidates, SelectorCandidate{Kind: SelectorID, Value: "#" + raw.ID})
	}
	if raw.Name != "" {
		candidates = append(candidates, SelectorCandidate{
			Kind:  SelectorName,
			Value: fmt.Sprintf(`%s[name=%q]`, raw.Tag, raw.Name),
		})
	}
	if raw.Class != "" && cssIdentRe.MatchString(raw.Class) {
		candidates = append(candidates, SelectorCandidate{Kind: SelectorClass, Value: raw.Tag + "." + raw.Class})
	}
	if raw.TestAttr != "" {
		candidates = append(candidates, SelectorCandidate{
			Kind:  SelectorAttribute,
			Value: fmt.Sprintf(`[%s=%q]`, raw.TestAttr, raw.TestValue),
		})
	}
	if raw.Text != "" && len(raw.Text) <= 30 {
		// Text candidates aren't valid CSS; they exist for target repair
		// and healing, never as the primary selector.
		candidates = append(candidates, SelectorCandidate{Kind: SelectorText, Value: "text=" + raw.Text})
	}
	// The structural path is always present so Selector is never empty.
	candidates = append(candidates, SelectorCandidate{Kind: SelectorStructural, Value: raw.Path})

	selector := ""
	for _, c := range candidates {
		if c.Kind == SelectorText {
			continue
		}
		selector = c.Value
		break
	}

	// Inputs frequently render no text at all; the name attribute is the
	// next best human-readable hint.
	text := raw.Text
	if text == "" {
		text = raw.Name
	}

	return ElementInfo{
		Tag:         raw.Tag,
		Type:        raw.Type,
		Text:        text,
		Selector:    selector,
		Candidates:  candidates,
		Visible:     raw.Visible,
		Interactive: raw.Interactive,
		Disabled:    raw.Disabled,
		ReadOnly:    raw.ReadOnly,
	}
}

// matchesText reports a bidirectional substring match between two strings,
// ignoring case. Used for target repair and login slot detection.
func matchesText(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}
