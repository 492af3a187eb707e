package descriptor

import (
	"regexp"
	"strings"
)

// LocatorType is a coarse hint about what kind of element a target names.
// It comes from a substring heuristic and is not authoritative: "input your
// response" classifies as Input.
type LocatorType int

// Declaration order is the classification order.
const (
	Button LocatorType = iota
	Textbox
	Label
	Placeholder
	Role
	Input
	Link
	Any
)

var locatorTypes = [...]struct {
	name  string
	value string
}{
	Button:      {"button", "button"},
	Textbox:     {"textbox", "textbox"},
	Label:       {"label", "label"},
	Placeholder: {"placeholder", "placeholder"},
	Role:        {"role", "role"},
	Input:       {"input", "input"},
	Link:        {"link", "a"},
	Any:         {"any", "any"},
}

// String returns the token name, e.g. "link".
func (l LocatorType) String() string {
	if l < Button || l > Any {
		return "any"
	}
	return locatorTypes[l].name
}

// Value is what an element's metadata must contain to satisfy the hint,
// e.g. "a" for Link.
func (l LocatorType) Value() string {
	if l < Button || l > Any {
		return "any"
	}
	return locatorTypes[l].value
}

// MarshalText renders the token name.
func (l LocatorType) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// tokenPatterns holds a case-insensitive matcher per classifiable token. Any is
// the fallback and is never matched as a word, so "company" stays unclassified.
var tokenPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, Any)
	for l := Button; l < Any; l++ {
		out[l] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(locatorTypes[l].name))
	}
	return out
}()

// Classify picks the first token, in declaration order, that occurs in text
// and returns it with the token removed from the search text. The search text
// is what precedes the token; when nothing does, what follows it.
func Classify(text string) (LocatorType, string) {
	for l := Button; l < Any; l++ {
		loc := tokenPatterns[l].FindStringIndex(text)
		if loc == nil {
			continue
		}
		search := strings.TrimSpace(text[:loc[0]])
		if search == "" {
			search = strings.TrimSpace(text[loc[1]:])
		}
		return l, search
	}
	return Any, strings.TrimSpace(text)
}
