package engine

import (
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/domscout/internal/dom"
)

// Kind classifies a failed call.
type Kind string

const (
	KindSessionLaunch     Kind = "session_launch_failure"
	KindNavigationAborted Kind = "navigation_aborted"
	KindNavigationFailure Kind = "navigation_failure"
	KindAmbiguousMatch    Kind = "ambiguous_match"
	KindNotVisible        Kind = "not_visible"
	KindActionFailure     Kind = "action_failure"
	KindResolutionFailure Kind = "resolution_failure"
)

// Outcome is the tool payload of one call: a usable result or a diagnostic
// the caller can act on.
type Outcome struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Action  string `json:"action,omitempty"`
	Target  string `json:"target,omitempty"`
	Kind    Kind   `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
	// Matched is the element acted on, or resolved when no action was given.
	Matched *dom.Metadata `json:"matched,omitempty"`
	// MetaData lists candidates: what the scan saw when it could not settle
	// on one element, or every visible element in discovery mode.
	MetaData  []dom.Metadata `json:"meta_data,omitempty"`
	Attempts  int            `json:"attempts"`
	RequestID string         `json:"request_id"`
}

// metricLabel is the calls_total label for this outcome.
func (o Outcome) metricLabel() string {
	if o.Success {
		return "success"
	}
	return string(o.Kind)
}

// JSON renders the outcome for the calling agent.
func (o Outcome) JSON() string {
	b, err := json.Marshal(o)
	if err != nil {
		return `{"success":false,"error":"unable to encode outcome"}`
	}
	return string(b)
}
