// Package types holds the value types shared by the engine, the stores and the
// predicate catalog. The central type is Candidate: an immutable tagged union
// over the shapes a candidate can take (none, scalar, list, key-value structure).
package types

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the shape held by a Candidate.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindStruct
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Candidate is one opaque value tested against predicates. The zero value is
// the none-value. Candidates are never mutated after construction: With and
// the accessors return copies.
type Candidate struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	items  []Candidate
	fields map[string]Candidate
}

// None returns the formless candidate.
func None() Candidate { return Candidate{} }

// Bool wraps a boolean.
func Bool(v bool) Candidate { return Candidate{kind: KindBool, b: v} }

// Int wraps an integer.
func Int(v int64) Candidate { return Candidate{kind: KindInt, i: v} }

// Float wraps a float.
func Float(v float64) Candidate { return Candidate{kind: KindFloat, f: v} }

// String wraps a string.
func String(v string) Candidate { return Candidate{kind: KindString, s: v} }

// List wraps an ordered sequence of candidates.
func List(items ...Candidate) Candidate {
	cp := make([]Candidate, len(items))
	copy(cp, items)
	return Candidate{kind: KindList, items: cp}
}

// EmptyStruct returns the structure with no keys.
func EmptyStruct() Candidate {
	return Candidate{kind: KindStruct, fields: map[string]Candidate{}}
}

// Struct builds a key-value structure from the given fields.
func Struct(fields map[string]Candidate) Candidate {
	cp := make(map[string]Candidate, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Candidate{kind: KindStruct, fields: cp}
}

// Kind reports the shape of the candidate.
func (c Candidate) Kind() Kind { return c.kind }

// IsNone reports whether c is the none-value.
func (c Candidate) IsNone() bool { return c.kind == KindNone }

// IsStruct reports whether c is a key-value structure.
func (c Candidate) IsStruct() bool { return c.kind == KindStruct }

// AsBool returns the boolean payload.
func (c Candidate) AsBool() (bool, bool) { return c.b, c.kind == KindBool }

// AsInt returns the integer payload.
func (c Candidate) AsInt() (int64, bool) { return c.i, c.kind == KindInt }

// AsFloat returns the numeric payload as a float. Integers convert.
func (c Candidate) AsFloat() (float64, bool) {
	switch c.kind {
	case KindFloat:
		return c.f, true
	case KindInt:
		return float64(c.i), true
	}
	return 0, false
}

// AsString returns the string payload.
func (c Candidate) AsString() (string, bool) { return c.s, c.kind == KindString }

// Items returns a copy of the list payload.
func (c Candidate) Items() []Candidate {
	if c.kind != KindList {
		return nil
	}
	cp := make([]Candidate, len(c.items))
	copy(cp, c.items)
	return cp
}

// Len returns the number of keys of a structure or items of a list.
func (c Candidate) Len() int {
	switch c.kind {
	case KindStruct:
		return len(c.fields)
	case KindList:
		return len(c.items)
	}
	return 0
}

// Get returns the value stored under key. Non-structures never contain keys.
func (c Candidate) Get(key string) (Candidate, bool) {
	if c.kind != KindStruct {
		return Candidate{}, false
	}
	v, ok := c.fields[key]
	return v, ok
}

// Has reports whether c is a structure containing key.
func (c Candidate) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Keys returns the structure's keys in sorted order.
func (c Candidate) Keys() []string {
	if c.kind != KindStruct {
		return nil
	}
	keys := make([]string, 0, len(c.fields))
	for k := range c.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of the structure with key set to v. Calling With on a
// non-structure starts from the empty structure.
func (c Candidate) With(key string, v Candidate) Candidate {
	fields := make(map[string]Candidate, len(c.fields)+1)
	if c.kind == KindStruct {
		for k, fv := range c.fields {
			fields[k] = fv
		}
	}
	fields[key] = v
	return Candidate{kind: KindStruct, fields: fields}
}

// Equal compares candidates structurally. Integers and floats compare by
// numeric value; booleans never equal numbers.
func (c Candidate) Equal(o Candidate) bool {
	if c.isNumber() && o.isNumber() {
		switch {
		case c.kind == KindInt && o.kind == KindInt:
			return c.i == o.i
		case c.kind == KindFloat && o.kind == KindFloat:
			return c.f == o.f
		case c.kind == KindInt:
			i, ok := wholeFloat(o.f)
			return ok && i == c.i
		default:
			i, ok := wholeFloat(c.f)
			return ok && i == o.i
		}
	}
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindNone:
		return true
	case KindBool:
		return c.b == o.b
	case KindString:
		return c.s == o.s
	case KindList:
		if len(c.items) != len(o.items) {
			return false
		}
		for i := range c.items {
			if !c.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindStruct:
		if len(c.fields) != len(o.fields) {
			return false
		}
		for k, v := range c.fields {
			ov, ok := o.fields[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// wholeFloat returns f as an int64 when it is integral and in range.
func wholeFloat(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

func (c Candidate) isNumber() bool {
	return c.kind == KindInt || c.kind == KindFloat
}

// CanonicalKey returns a string that is identical for structurally equal
// candidates. Used for deduplication.
func (c Candidate) CanonicalKey() string {
	var sb strings.Builder
	c.writeCanonical(&sb)
	return sb.String()
}

func (c Candidate) writeCanonical(sb *strings.Builder) {
	switch c.kind {
	case KindNone:
		sb.WriteString("N")
	case KindBool:
		if c.b {
			sb.WriteString("T")
		} else {
			sb.WriteString("F")
		}
	case KindInt:
		sb.WriteString("n")
		sb.WriteString(strconv.FormatInt(c.i, 10))
	case KindFloat:
		sb.WriteString("n")
		if i, ok := wholeFloat(c.f); ok {
			sb.WriteString(strconv.FormatInt(i, 10))
		} else {
			sb.WriteString(strconv.FormatFloat(c.f, 'g', -1, 64))
		}
	case KindString:
		sb.WriteString("s")
		sb.WriteString(strconv.Quote(c.s))
	case KindList:
		sb.WriteString("[")
		for i, item := range c.items {
			if i > 0 {
				sb.WriteString(",")
			}
			item.writeCanonical(sb)
		}
		sb.WriteString("]")
	case KindStruct:
		sb.WriteString("{")
		for i, k := range c.Keys() {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(":")
			c.fields[k].writeCanonical(sb)
		}
		sb.WriteString("}")
	}
}

// String renders the candidate in a compact JSON-like form.
func (c Candidate) String() string {
	switch c.kind {
	case KindNone:
		return "null"
	case KindBool:
		return strconv.FormatBool(c.b)
	case KindInt:
		return strconv.FormatInt(c.i, 10)
	case KindFloat:
		return strconv.FormatFloat(c.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(c.s)
	case KindList:
		parts := make([]string, len(c.items))
		for i, item := range c.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindStruct:
		keys := c.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + c.fields[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "?"
}

// Dedupe removes structurally equal repeats, keeping first-seen order.
func Dedupe(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := c.CanonicalKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Contains reports whether any element of candidates equals c.
func Contains(candidates []Candidate, c Candidate) bool {
	for _, x := range candidates {
		if x.Equal(c) {
			return true
		}
	}
	return false
}
