// pkg/explore/engine.go
package explore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/internal/llmclient"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Engine turns a page context and run history into a bounded batch of next
// actions by querying the inference service. It never invents elements: any
// returned target is validated against the extracted context and repaired
// when possible.
type Engine struct {
	logger        *zap.Logger
	llm           llmclient.LLMClient
	cooldown      *llmclient.Cooldown
	maxBatch      int
	historyWindow int
}

// NewEngine creates a decision engine.
func NewEngine(logger *zap.Logger, llm llmclient.LLMClient, cooldown *llmclient.Cooldown, maxBatch, historyWindow int) *Engine {
	if maxBatch < 1 || maxBatch > 4 {
		maxBatch = 4
	}
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &Engine{
		logger:        logger.Named("engine"),
		llm:           llm,
		cooldown:      cooldown,
		maxBatch:      maxBatch,
		historyWindow: historyWindow,
	}
}

// DecideBatch requests the next 1–maxBatch actions for the current page.
// Any request or parse failure is returned to the caller, which falls back
// to the deterministic generator for this cycle.
func (e *Engine) DecideBatch(ctx context.Context, pc PageContext, testType, profile string, history []ActionRecord) ([]Decision, error) {
	// Respect a cooldown armed by an earlier rate-limit response.
	if err := e.cooldown.Wait(ctx); err != nil {
		return nil, fmt.Errorf("cooldown wait aborted: %w", err)
	}

	req := llmclient.GenerationRequest{
		SystemPrompt: e.systemPrompt(testType, profile),
		UserPrompt:   e.userPrompt(pc, history),
		Options: llmclient.GenerationOptions{
			Temperature:     0.2,
			ForceJSONFormat: true,
		},
	}

	response, err := e.llm.GenerateResponse(ctx, req)
	if err != nil {
		if errors.Is(err, llmclient.ErrRateLimited) {
			e.cooldown.Arm()
			e.logger.Warn("Inference service rate limited, cooldown armed")
		}
		return nil, fmt.Errorf("inference request failed: %w", err)
	}

	decisions, err := parseDecisions(response)
	if err != nil {
		e.logger.Warn("Failed to parse inference response",
			zap.String("response_head", truncate(response, 200)),
			zap.Error(err))
		return nil, fmt.Errorf("unparseable inference response: %w", err)
	}
	if len(decisions) == 0 {
		return nil, fmt.Errorf("inference response contained no actions")
	}
	if len(decisions) > e.maxBatch {
		decisions = decisions[:e.maxBatch]
	}

	for i := range decisions {
		e.validateDecision(&decisions[i], pc)
	}

	e.logger.Debug("Decision batch produced", zap.Int("count", len(decisions)))
	return decisions, nil
}

func (e *Engine) systemPrompt(testType, profile string) string {
	return fmt.Sprintf(`You are the decision engine of an autonomous web exploration agent running a %s test pass.
Persona: %s.
You receive a structured description of the current page and the recent action history.
Respond ONLY with a JSON array of 1 to %d actions. Each action is an object:
{"action": "<navigate|click|fill|select|press|hover|assertText|wait|screenshot|scroll>",
 "target": "<CSS selector from the element list>",
 "value": "<input value, URL, or milliseconds>",
 "text": "<short human-readable intent>",
 "waitFor": "<selector | networkidle | input | load>"}
Rules:
1. Only use selectors that appear in the element list.
2. Prefer actions that reveal new application state over repeating past ones.
3. If the page shows errors, capture a screenshot before moving on.`,
		orDefault(testType, "exploratory"), orDefault(profile, "general QA tester"), e.maxBatch)
}

func (e *Engine) userPrompt(pc PageContext, history []ActionRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Page: %q (%s)\n", pc.Title, pc.URL)
	fmt.Fprintf(&b, "Type: %s | elements: %d total, %d form, %d interactive, %d navigation\n",
		pc.PageType, len(pc.AllElements), len(pc.FormElements), len(pc.InteractiveElements), len(pc.NavigationElements))

	if len(pc.ErrorMessages) > 0 {
		b.WriteString("Visible errors:\n")
		for _, msg := range pc.ErrorMessages {
			fmt.Fprintf(&b, "  - %s\n", truncate(msg, 120))
		}
	}

	b.WriteString("Elements (ranked selectors):\n")
	for i, el := range pc.AllElements {
		if i >= 40 {
			fmt.Fprintf(&b, "  ... and %d more\n", len(pc.AllElements)-i)
			break
		}
		fmt.Fprintf(&b, "  <%s> %q -> %s\n", el.Tag, truncate(el.Text, 40), el.Selector)
	}

	recent := history
	if len(recent) > e.historyWindow {
		recent = recent[len(recent)-e.historyWindow:]
	}
	if len(recent) > 0 {
		b.WriteString("Recent actions:\n")
		for _, rec := range recent {
			fmt.Fprintf(&b, "  [%s] %s %s %s\n", rec.Status, rec.Action, rec.Target, truncate(rec.Notes, 60))
		}
	}

	if summary := summarizeFailures(recent); summary != "" {
		fmt.Fprintf(&b, "Failure patterns: %s\n", summary)
	}

	b.WriteString("Decide the next actions. Respond with a JSON array only.")
	return b.String()
}

// summarizeFailures scans recent error notes for recurring failure classes
// so the model can steer away from what keeps breaking.
func summarizeFailures(history []ActionRecord) string {
	counts := map[string]int{}
	for _, rec := range history {
		if rec.Status != StatusError {
			continue
		}
		notes := strings.ToLower(rec.Notes)
		switch {
		case strings.Contains(notes, "selector") || strings.Contains(notes, "element"):
			counts["selector lookups failing"]++
		case strings.Contains(notes, "timeout") || strings.Contains(notes, "wait"):
			counts["waits timing out"]++
		case strings.Contains(notes, "click") || strings.Contains(notes, "interact"):
			counts["click interactions failing"]++
		case strings.Contains(notes, "fill") || strings.Contains(notes, "input"):
			counts["input fills failing"]++
		}
	}
	var parts []string
	for pattern, n := range counts {
		if n >= 2 {
			parts = append(parts, fmt.Sprintf("%s (%dx)", pattern, n))
		}
	}
	return strings.Join(parts, "; ")
}

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// parseDecisions tries, in order: whole-body JSON, fenced code block
// extraction, then trimming to the outermost bracket pair.
func parseDecisions(response string) ([]Decision, error) {
	response = strings.TrimSpace(response)

	if decisions, err := unmarshalDecisions(response); err == nil {
		return decisions, nil
	}

	if matches := fencedJSONRe.FindStringSubmatch(response); len(matches) > 1 {
		if decisions, err := unmarshalDecisions(strings.TrimSpace(matches[1])); err == nil {
			return decisions, nil
		}
	}

	start := strings.IndexAny(response, "[{")
	end := strings.LastIndexAny(response, "]}")
	if start >= 0 && end > start {
		if decisions, err := unmarshalDecisions(response[start : end+1]); err == nil {
			return decisions, nil
		}
	}

	return nil, fmt.Errorf("no JSON action array found")
}

// unmarshalDecisions accepts a bare array, a single object, or an object
// wrapping the array under "actions".
func unmarshalDecisions(s string) ([]Decision, error) {
	var decisions []Decision
	if err := json.UnmarshalFromString(s, &decisions); err == nil {
		return validDecisions(decisions)
	}

	var wrapper struct {
		Actions []Decision `json:"actions"`
	}
	if err := json.UnmarshalFromString(s, &wrapper); err == nil && len(wrapper.Actions) > 0 {
		return validDecisions(wrapper.Actions)
	}

	var single Decision
	if err := json.UnmarshalFromString(s, &single); err == nil && single.Action != "" {
		return []Decision{single}, nil
	}

	return nil, fmt.Errorf("not a decision payload")
}

func validDecisions(decisions []Decision) ([]Decision, error) {
	var out []Decision
	for _, d := range decisions {
		if d.Action != "" {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no actions with a kind set")
	}
	return out, nil
}

// needsTarget reports whether the action kind addresses a page element.
func needsTarget(kind ActionKind) bool {
	switch kind {
	case ActionClick, ActionFill, ActionSelect, ActionPress, ActionHover, ActionAssertText:
		return true
	default:
		return false
	}
}

// validateDecision repairs unknown targets against the extracted elements
// and applies default post-conditions.
func (e *Engine) validateDecision(d *Decision, pc PageContext) {
	if needsTarget(d.Action) && d.Target != "" && !knownSelector(d.Target, pc) {
		if repaired := repairTarget(d, pc); repaired != "" {
			e.logger.Debug("Repaired decision target",
				zap.String("from", d.Target), zap.String("to", repaired))
			d.Notes = appendNote(d.Notes, fmt.Sprintf("target %q substituted with %q", d.Target, repaired))
			d.Target = repaired
		}
	}

	if d.WaitFor == "" {
		switch d.Action {
		case ActionClick:
			d.WaitFor = WaitNetworkIdle
		case ActionFill:
			d.WaitFor = WaitInput
		case ActionNavigate:
			d.WaitFor = WaitLoad
		}
	}
}

func knownSelector(target string, pc PageContext) bool {
	for _, el := range pc.AllElements {
		if el.Selector == target {
			return true
		}
		for _, c := range el.Candidates {
			if c.Value == target {
				return true
			}
		}
	}
	return false
}

// repairTarget finds the best known element for a mistargeted decision via
// bidirectional text matching or selector-substring overlap. The heuristic
// is approximate; when several elements share overlapping text the first
// match wins.
func repairTarget(d *Decision, pc PageContext) string {
	for _, el := range pc.AllElements {
		if matchesText(el.Text, d.Target) || matchesText(el.Text, d.Text) {
			return el.Selector
		}
		if el.Selector != "" && (strings.Contains(el.Selector, d.Target) || strings.Contains(d.Target, el.Selector)) {
			return el.Selector
		}
	}
	return ""
}

func appendNote(notes, extra string) string {
	if notes == "" {
		return extra
	}
	return notes + "; " + extra
}

// truncate cuts on a rune boundary so multibyte text is never split
// mid-sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
