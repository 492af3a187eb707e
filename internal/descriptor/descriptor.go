// Package descriptor turns the loosely shaped instructions sent by an agent
// into a canonical search string and a locator hint.
package descriptor

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

// ErrEmptyInput is returned by DecodeToolInput for blank input.
var ErrEmptyInput = errors.New("empty tool input")

// Descriptor is one resolve-and-act request. It is not modified once a call
// starts.
type Descriptor struct {
	Action      string `json:"action,omitempty"`
	Target      Target `json:"target"`
	Value       string `json:"value,omitempty"`
	URLOverride string `json:"url_override,omitempty"`
}

// Query is the parsed form of a descriptor's target.
type Query struct {
	// Raw is the canonical target string before classification.
	Raw string
	// Search is the text scored against element metadata.
	Search string
	Hint   LocatorType
}

// Query parses and classifies the target.
func (d Descriptor) Query() Query {
	raw := d.Target.Parse()
	hint, search := Classify(raw)
	return Query{Raw: raw, Search: search, Hint: hint}
}

// NormalizedAction lowercases and trims the verb.
func (d Descriptor) NormalizedAction() string {
	return strings.ToLower(strings.TrimSpace(d.Action))
}

// actionKeys is the lookup order when the action arrives as an object.
var actionKeys = []string{"description", "value", "action"}

type wireDescriptor struct {
	Action         json.RawMessage `json:"action"`
	Target         Target          `json:"target"`
	Value          interface{}     `json:"value"`
	URLOverride    string          `json:"url_override"`
	URLOverrideAlt string          `json:"urlOverride"`
	URL            string          `json:"url"`
}

// UnmarshalJSON accepts the action as a string or an object, any JSON scalar
// as the value, and the URL under url_override, urlOverride or url.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var w wireDescriptor
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	action, err := decodeAction(w.Action)
	if err != nil {
		return err
	}

	*d = Descriptor{
		Action:      action,
		Target:      w.Target,
		Value:       stringify(w.Value),
		URLOverride: firstNonEmpty(w.URLOverride, w.URLOverrideAlt, w.URL),
	}
	return nil
}

func decodeAction(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("invalid action: %w", err)
	}
	switch a := v.(type) {
	case map[string]interface{}:
		for _, key := range actionKeys {
			if s := stringify(a[key]); s != "" {
				return s, nil
			}
		}
		return "", nil
	default:
		return stringify(a), nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// DecodeToolInput accepts the single string an agent framework passes to a
// tool. A JSON object is decoded as a Descriptor. Anything else is a URL when
// it looks like one (an optional "url=" prefix is dropped) and a free-text
// target otherwise.
func DecodeToolInput(raw string) (Descriptor, error) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)
	if s == "" {
		return Descriptor{}, ErrEmptyInput
	}

	if strings.HasPrefix(s, "{") {
		var d Descriptor
		if err := json.Unmarshal([]byte(s), &d); err == nil {
			return d, nil
		}
		// Agents routinely emit almost-JSON; fall through to the text forms.
	}

	if len(s) >= 4 && strings.EqualFold(s[:4], "url=") {
		s = strings.TrimSpace(s[4:])
	}
	s = strings.Trim(s, `"'`)
	if s == "" {
		return Descriptor{}, ErrEmptyInput
	}

	if looksLikeURL(s) {
		return Descriptor{URLOverride: s}, nil
	}
	return Descriptor{Target: Text(s)}, nil
}

func looksLikeURL(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return true
	}
	host := lower
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	dot := strings.LastIndex(host, ".")
	return dot > 0 && dot < len(host)-1
}
