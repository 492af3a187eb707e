// Package dom describes page elements: the flat metadata record returned to
// callers, the handles the engine uses to address elements within one call,
// and the in-page scripts that enumerate and inspect them.
package dom

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTextLength caps Metadata.Text, in runes.
const MaxTextLength = 50

// Metadata is the flat attribute record of one element. It is rebuilt on every
// scan and never cached, since the page may have changed in between.
type Metadata struct {
	Tag         string `json:"tag"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Role        string `json:"role,omitempty"`
	Text        string `json:"text,omitempty"`
	Type        string `json:"type,omitempty"`
	LocatorHint string `json:"locator_hint"`
}

// RawElement is what the extraction script reports for one element.
type RawElement struct {
	Tag         string `json:"tag"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
	Role        string `json:"role"`
	Text        string `json:"text"`
	Type        string `json:"type"`
	Visible     bool   `json:"visible"`
}

// NewMetadata normalizes a raw element: lowercase tag, whitespace-collapsed
// and truncated text, and a locator hint.
func NewMetadata(raw RawElement) Metadata {
	m := Metadata{
		Tag:         strings.ToLower(strings.TrimSpace(raw.Tag)),
		ID:          strings.TrimSpace(raw.ID),
		Name:        strings.TrimSpace(raw.Name),
		Placeholder: strings.TrimSpace(raw.Placeholder),
		Role:        strings.TrimSpace(raw.Role),
		Text:        truncateRunes(collapseWhitespace(raw.Text), MaxTextLength),
		Type:        strings.TrimSpace(raw.Type),
	}
	m.LocatorHint = locatorHint(m)
	return m
}

func locatorHint(m Metadata) string {
	if m.Text != "" {
		return fmt.Sprintf("get_by_text('%s')", m.Text)
	}
	return fmt.Sprintf("locator('%s')", m.Tag)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

// Values lists the non-empty attribute values used for similarity scoring.
// The locator hint is left out because it repeats the text.
func (m Metadata) Values() []string {
	out := make([]string, 0, 7)
	for _, v := range []string{m.Tag, m.ID, m.Name, m.Placeholder, m.Role, m.Text, m.Type} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// textboxTypes are the input types that take free text. An input without a
// type attribute is a text box too.
var textboxTypes = map[string]bool{
	"": true, "text": true, "email": true, "search": true, "password": true,
	"tel": true, "url": true, "number": true,
}

// Satisfies reports whether the element is of the kind want names, ignoring
// case. "any" and "" are satisfied by every element. "placeholder" and "role"
// need the attribute to be present, "textbox" means an element that takes
// typed text, and "button" also covers submit-like inputs. Any other value,
// and any kind check that fails, falls back to an attribute equal to want.
func (m Metadata) Satisfies(want string) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	if want == "" || want == "any" {
		return true
	}
	if m.isKind(want) {
		return true
	}
	for _, v := range m.Values() {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func (m Metadata) isKind(want string) bool {
	role := strings.ToLower(m.Role)
	switch want {
	case "placeholder":
		return m.Placeholder != ""
	case "role":
		return m.Role != ""
	case "textbox":
		switch m.Tag {
		case "textarea":
			return true
		case "input":
			return textboxTypes[strings.ToLower(m.Type)]
		}
		return role == "textbox" || role == "searchbox"
	case "button":
		if m.Tag == "input" {
			switch strings.ToLower(m.Type) {
			case "submit", "button", "reset":
				return true
			}
		}
		return role == "button"
	}
	return false
}
