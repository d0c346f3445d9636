package table

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MissingValue is the sentinel for unknown attribute values in query tables.
const MissingValue = "?"

// ValueKind discriminates the allowed attribute value shapes.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindList
)

// Value is an attribute value: a string, a number, or a list of strings.
// Rows carry a fixed identity plus an open attribute map of Values.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	List []string
}

// String creates a string value.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Number creates a numeric value.
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// List creates a list-of-strings value.
func List(items ...string) Value {
	return Value{Kind: KindList, List: items}
}

// IsMissing reports whether the value is the unknown-value sentinel.
func (v Value) IsMissing() bool {
	return v.Kind == KindString && v.Str == MissingValue
}

// Text renders the value for voting and comparison.
// List values are comma-joined, numbers use the shortest representation.
func (v Value) Text() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindList:
		return strings.Join(v.List, ", ")
	default:
		return v.Str
	}
}

// Equal compares two values. List values compare as sets with trimmed
// elements, so ordering and surrounding whitespace do not matter.
func (v Value) Equal(other Value) bool {
	if v.Kind == KindList || other.Kind == KindList {
		return equalAsSets(v.asList(), other.asList())
	}
	if v.Kind == KindNumber && other.Kind == KindNumber {
		return v.Num == other.Num
	}
	return v.Text() == other.Text()
}

func (v Value) asList() []string {
	if v.Kind == KindList {
		return v.List
	}
	parts := strings.Split(v.Text(), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func equalAsSets(a, b []string) bool {
	na := normalizeSet(a)
	nb := normalizeSet(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

func normalizeSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		seen[strings.TrimSpace(item)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for item := range seen {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the value as its underlying JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindList:
		return json.Marshal(v.List)
	default:
		return json.Marshal(v.Str)
	}
}

// UnmarshalJSON decodes a string, number, or list of strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := valueFromAny(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func valueFromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case bool:
		return String(strconv.FormatBool(x)), nil
	case nil:
		return String(MissingValue), nil
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprintf("%v", item)
			}
			items = append(items, s)
		}
		return List(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported attribute value type %T", raw)
	}
}
