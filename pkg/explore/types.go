// pkg/explore/types.go
package explore

import (
	"time"
)

// PageType classifies the shape of the currently rendered page.
type PageType string

const (
	PageTypeForm       PageType = "form"
	PageTypeNavigation PageType = "navigation"
	PageTypeContent    PageType = "content"
	PageTypeUnknown    PageType = "unknown"
)

// SelectorKind tags where a selector candidate was derived from. Kinds are
// listed in ranking order: an id beats a name, a name beats a class, and a
// structural path is the last resort.
type SelectorKind string

const (
	SelectorID         SelectorKind = "id"
	SelectorName       SelectorKind = "name"
	SelectorClass      SelectorKind = "class"
	SelectorAttribute  SelectorKind = "attribute"
	SelectorText       SelectorKind = "text"
	SelectorStructural SelectorKind = "structural"
)

// SelectorCandidate is one ranked way of addressing an element.
type SelectorCandidate struct {
	Kind  SelectorKind `json:"kind"`
	Value string       `json:"value"`
}

// ElementInfo describes one rendered DOM node. Selector is always present
// and syntactically valid; when the element has no stable attributes it
// falls back to a structural nth-child path.
type ElementInfo struct {
	Tag         string              `json:"tag"`
	Type        string              `json:"type,omitempty"` // input type attribute, if any
	Text        string              `json:"text"`
	Selector    string              `json:"selector"`
	Candidates  []SelectorCandidate `json:"candidateSelectors,omitempty"`
	Visible     bool                `json:"visible"`
	Interactive bool                `json:"interactive"`
	Disabled    bool                `json:"disabled,omitempty"`
	ReadOnly    bool                `json:"readOnly,omitempty"`
}

// PageContext is an ephemeral snapshot of the rendered page, rebuilt every
// cycle and owned by the run loop for the duration of one cycle.
type PageContext struct {
	URL                 string        `json:"url"`
	Title               string        `json:"title"`
	PageType            PageType      `json:"pageType"`
	AllElements         []ElementInfo `json:"allElements"`
	FormElements        []ElementInfo `json:"formElements"`
	InteractiveElements []ElementInfo `json:"interactiveElements"`
	NavigationElements  []ElementInfo `json:"navigationElements"`
	ErrorMessages       []string      `json:"errorMessages"`
	HasForm             bool          `json:"hasForm"`
}

// ActionKind enumerates the instructions the executor understands.
type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionClick      ActionKind = "click"
	ActionFill       ActionKind = "fill"
	ActionSelect     ActionKind = "select"
	ActionPress      ActionKind = "press"
	ActionHover      ActionKind = "hover"
	ActionAssertText ActionKind = "assertText"
	ActionWait       ActionKind = "wait"
	ActionScreenshot ActionKind = "screenshot"
	ActionScroll     ActionKind = "scroll"
	// actionLogin is the synthetic record kind logged after a login attempt;
	// it is never produced by the decision engine.
	actionLogin ActionKind = "login"
)

// Post-condition values a Decision's WaitFor may carry, besides a selector.
const (
	WaitNetworkIdle = "networkidle"
	WaitInput       = "input"
	WaitLoad        = "load"
)

// Decision is one instruction produced by the decision engine (or the
// fallback generator) and consumed exactly once by the executor. Immutable
// after creation apart from engine-side target repair.
type Decision struct {
	Action  ActionKind `json:"action"`
	Target  string     `json:"target,omitempty"`
	Value   string     `json:"value,omitempty"`
	Text    string     `json:"text,omitempty"` // human-readable intent
	WaitFor string     `json:"waitFor,omitempty"`
	Notes   string     `json:"notes,omitempty"`
}

// ActionRecord statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ActionRecord is one immutable entry of the append-only run history.
type ActionRecord struct {
	Action    ActionKind `json:"action"`
	Status    string     `json:"status"`
	Target    string     `json:"target,omitempty"`
	Value     string     `json:"value,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ArtifactType categorizes run artifacts.
type ArtifactType string

const (
	ArtifactScreenshot ArtifactType = "screenshot"
	ArtifactVideo      ArtifactType = "video"
)

// Artifact is one file written during a run. Ownership transfers to the
// reporting layer when the run ends.
type Artifact struct {
	Type ArtifactType `json:"type"`
	Path string       `json:"path"`
}

// RunSession tracks the mutable state of one exploration run. It is created
// at loop start and mutated only by the run loop.
type RunSession struct {
	RunID                 string    `json:"runId"`
	TargetURL             string    `json:"targetUrl"`
	StartedAt             time.Time `json:"startedAt"`
	TotalActionsGenerated int       `json:"totalActionsGenerated"`
	ConsecutiveAIFailures int       `json:"consecutiveAiFailures"`
	LoginAttempted        bool      `json:"loginAttempted"`
}

// RunResult is the shape handed to the reporting layer at run end.
type RunResult struct {
	RunID         string         `json:"runId"`
	TargetURL     string         `json:"targetUrl"`
	StartedAt     time.Time      `json:"startedAt"`
	FinishedAt    time.Time      `json:"finishedAt"`
	Actions       []ActionRecord `json:"actions"`
	Artifacts     []Artifact     `json:"artifacts"`
	ConsoleErrors []string       `json:"consoleErrors"`
}
