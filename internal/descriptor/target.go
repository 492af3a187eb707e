package descriptor

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

// Kind discriminates the shapes a target can arrive in.
type Kind int

const (
	KindNone Kind = iota
	KindText
	KindMapping
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMapping:
		return "mapping"
	case KindList:
		return "list"
	default:
		return "none"
	}
}

// Entry is one key/value pair of a mapping target, kept in arrival order.
type Entry struct {
	Key   string
	Value interface{}
}

// Target is a loosely described element: free text, a mapping of hints, or a
// list whose first element is the description. The zero value is KindNone.
type Target struct {
	kind    Kind
	text    string
	entries []Entry
	items   []interface{}
}

// Text builds a free-text target.
func Text(s string) Target { return Target{kind: KindText, text: s} }

// Mapping builds a mapping target. Order matters for the first-value fallback.
func Mapping(entries ...Entry) Target { return Target{kind: KindMapping, entries: entries} }

// List builds a list target.
func List(items ...interface{}) Target { return Target{kind: KindList, items: items} }

func (t Target) Kind() Kind { return t.kind }

// IsZero reports whether no target was supplied.
func (t Target) IsZero() bool { return t.kind == KindNone }

// mappingPriority is the key order consulted before falling back to the first value.
var mappingPriority = []string{"value", "selector", "id", "description"}

var hasTextPattern = regexp.MustCompile(`has-text\((.*?)\)`)

// Parse reduces the target to one canonical search string. It never fails.
func (t Target) Parse() string {
	switch t.kind {
	case KindMapping:
		for _, key := range mappingPriority {
			for _, e := range t.entries {
				if e.Key == key {
					if s := stringify(e.Value); s != "" {
						return s
					}
				}
			}
		}
		if len(t.entries) == 0 {
			return ""
		}
		return stringify(t.entries[0].Value)
	case KindList:
		if len(t.items) == 0 {
			return ""
		}
		return stringify(t.items[0])
	case KindText:
		s := strings.TrimSpace(t.text)
		if strings.Contains(s, "has-text") && !strings.ContainsAny(s, `'"`) {
			s = hasTextPattern.ReplaceAllString(s, "has-text('$1')")
		}
		return s
	default:
		return ""
	}
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// UnmarshalJSON accepts a string, an object, an array or null.
func (t *Target) UnmarshalJSON(data []byte) error {
	iter := json.ParseBytes(json.ConfigCompatibleWithStandardLibrary, data)
	switch iter.WhatIsNext() {
	case json.NilValue:
		*t = Target{}
		return nil
	case json.StringValue:
		*t = Text(iter.ReadString())
	case json.ObjectValue:
		var entries []Entry
		iter.ReadObjectCB(func(it *json.Iterator, key string) bool {
			entries = append(entries, Entry{Key: key, Value: it.Read()})
			return true
		})
		*t = Mapping(entries...)
	case json.ArrayValue:
		items := []interface{}{}
		iter.ReadArrayCB(func(it *json.Iterator) bool {
			items = append(items, it.Read())
			return true
		})
		*t = List(items...)
	default:
		// Numbers and booleans are treated as text.
		*t = Text(stringify(iter.Read()))
	}
	if iter.Error != nil {
		return fmt.Errorf("invalid target: %w", iter.Error)
	}
	return nil
}

// MarshalJSON writes the target back in its original shape.
func (t Target) MarshalJSON() ([]byte, error) {
	switch t.kind {
	case KindText:
		return json.Marshal(t.text)
	case KindMapping:
		stream := json.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
		defer json.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)
		stream.WriteObjectStart()
		for i, e := range t.entries {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(e.Key)
			stream.WriteVal(e.Value)
		}
		stream.WriteObjectEnd()
		if stream.Error != nil {
			return nil, stream.Error
		}
		return append([]byte(nil), stream.Buffer()...), nil
	case KindList:
		return json.Marshal(t.items)
	default:
		return []byte("null"), nil
	}
}
