// pkg/explore/heal.go
package explore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/rover-cli/internal/llmclient"
)

const (
	healFallbackSelector = "body"
	healFallbackReason   = "fallback"
)

var codeFenceRe = regexp.MustCompile("(?s)```(?:css|html)?\\s*(.*?)```")

// Healer repairs a broken locator by asking the inference service for a
// replacement grounded in the current page HTML. It always returns a
// usable selector and never an error; on total failure the caller gets
// the document body so the run can limp onward.
type Healer struct {
	logger *zap.Logger
	llm    llmclient.LLMClient
}

// NewHealer creates a locator healer backed by the given client.
func NewHealer(logger *zap.Logger, llm llmclient.LLMClient) *Healer {
	return &Healer{logger: logger.Named("healer"), llm: llm}
}

// Heal proposes a replacement selector for one that no longer matches,
// along with a short reason. pageHTML is the current serialized document
// used to ground the answer. The selector is always usable; on any
// failure it degrades to the document body with reason "fallback".
func (h *Healer) Heal(ctx context.Context, brokenSelector, pageHTML string) (selector, reason string) {
	req := llmclient.GenerationRequest{
		SystemPrompt: "You repair broken CSS selectors for browser automation. " +
			"Given a selector that no longer matches and the current page HTML, " +
			"respond with a single replacement CSS selector on one line. " +
			"No explanation, no markdown, no quotes.",
		UserPrompt: fmt.Sprintf("Broken selector: %s\n\nCurrent page HTML (may be truncated):\n%s",
			brokenSelector, truncate(pageHTML, 12000)),
		Options: llmclient.GenerationOptions{
			Temperature: 0.1,
			MaxTokens:   256,
		},
	}

	raw, err := h.llm.GenerateResponse(ctx, req)
	if err != nil {
		h.logger.Warn("Healing request failed, using fallback selector",
			zap.String("broken", brokenSelector), zap.Error(err))
		return healFallbackSelector, healFallbackReason
	}

	healed := sanitizeSelector(raw)
	if healed == "" {
		h.logger.Warn("Healing produced no usable selector",
			zap.String("broken", brokenSelector), zap.String("response", truncate(raw, 200)))
		return healFallbackSelector, healFallbackReason
	}
	if !selectorPlausible(healed, pageHTML) {
		h.logger.Warn("Healed selector not plausible for current page",
			zap.String("broken", brokenSelector), zap.String("healed", healed))
		return healFallbackSelector, healFallbackReason
	}

	h.logger.Info("Selector healed",
		zap.String("broken", brokenSelector), zap.String("healed", healed))
	return healed, "healed from page snapshot"
}

// sanitizeSelector strips markdown fences, quotes, and trailing prose from
// a model response, keeping only the first line that looks like a selector.
func sanitizeSelector(raw string) string {
	s := strings.TrimSpace(raw)
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	s = strings.Trim(s, "`'\"")

	// First non-empty line only; anything after is explanation.
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "`'\""))
		if line == "" {
			continue
		}
		// Prose answers start with words like "The" or "Use"; a selector
		// contains no spaces between words unless it's a descendant
		// combinator. A sentence may still embed the selector, so salvage
		// the first selector-shaped word before giving up on the line.
		if looksLikeProse(line) {
			return extractSelectorWord(line)
		}
		return line
	}
	return ""
}

// extractSelectorWord pulls the first CSS-selector-shaped token out of a
// prose line, e.g. "#submit-button" from "Use the selector #submit-button".
func extractSelectorWord(line string) string {
	for _, word := range strings.Fields(line) {
		word = strings.Trim(word, "`'\".,;:()")
		if word == "" {
			continue
		}
		if selectorTokenRe.MatchString(word) {
			return word
		}
	}
	return ""
}

func looksLikeProse(line string) bool {
	words := strings.Fields(line)
	if len(words) < 4 {
		return false
	}
	plain := 0
	for _, w := range words {
		if !strings.ContainsAny(w, "#.[]>:*=") {
			plain++
		}
	}
	return plain >= len(words)-1
}

// selectorPlausible checks the proposed selector against the page HTML:
// any id, class, or attribute token it references should appear somewhere
// in the document. Structural selectors (tag-only paths) pass unchecked.
func selectorPlausible(selector, pageHTML string) bool {
	if pageHTML == "" {
		return true
	}
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return true
	}

	tokens := selectorTokens(selector)
	if len(tokens) == 0 {
		return true
	}
	for _, tok := range tokens {
		if attributeValueExists(doc, tok) {
			return true
		}
	}
	return false
}

var selectorTokenRe = regexp.MustCompile(`[#.]([A-Za-z_][\w-]*)|\[[\w-]+[*^$|~]?=["']?([^"'\]]+)["']?\]`)

func selectorTokens(selector string) []string {
	var tokens []string
	for _, m := range selectorTokenRe.FindAllStringSubmatch(selector, -1) {
		for _, g := range m[1:] {
			if g != "" {
				tokens = append(tokens, g)
			}
		}
	}
	return tokens
}

func attributeValueExists(n *html.Node, token string) bool {
	if n.Type == html.ElementNode {
		for _, attr := range n.Attr {
			if strings.Contains(attr.Val, token) {
				return true
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if attributeValueExists(child, token) {
			return true
		}
	}
	return false
}
