package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromAny converts a plain Go value into a Candidate. Accepted inputs are the
// shapes produced by encoding/json and yaml.v3 decoding (nil, bool, numbers,
// json.Number, string, []interface{}, map[string]interface{}) plus Candidate
// itself and typed maps and slices.
func FromAny(v interface{}) (Candidate, error) {
	switch x := v.(type) {
	case nil:
		return None(), nil
	case Candidate:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Float(float64(x)), nil
		}
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if !strings.ContainsAny(x.String(), ".eE") {
			if i, err := x.Int64(); err == nil {
				return Int(i), nil
			}
		}
		f, err := x.Float64()
		if err != nil {
			return None(), fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return Float(f), nil
	case string:
		return String(x), nil
	case []interface{}:
		items := make([]Candidate, len(x))
		for i, item := range x {
			c, err := FromAny(item)
			if err != nil {
				return None(), fmt.Errorf("item %d: %w", i, err)
			}
			items[i] = c
		}
		return Candidate{kind: KindList, items: items}, nil
	case map[string]interface{}:
		fields := make(map[string]Candidate, len(x))
		for k, item := range x {
			c, err := FromAny(item)
			if err != nil {
				return None(), fmt.Errorf("key %q: %w", k, err)
			}
			fields[k] = c
		}
		return Candidate{kind: KindStruct, fields: fields}, nil
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) (Candidate, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]Candidate, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			c, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return None(), fmt.Errorf("item %d: %w", i, err)
			}
			items[i] = c
		}
		return Candidate{kind: KindList, items: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return None(), fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		fields := make(map[string]Candidate, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			c, err := FromAny(iter.Value().Interface())
			if err != nil {
				return None(), fmt.Errorf("key %q: %w", iter.Key().String(), err)
			}
			fields[iter.Key().String()] = c
		}
		return Candidate{kind: KindStruct, fields: fields}, nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return None(), nil
		}
		return FromAny(rv.Elem().Interface())
	}
	return None(), fmt.Errorf("unsupported candidate value of type %T", rv.Interface())
}

// MustFromAny is FromAny for literals in tests and demos. It panics on
// unsupported input.
func MustFromAny(v interface{}) Candidate {
	c, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return c
}

// ToAny converts the candidate back into plain Go values: nil, bool, int64,
// float64, string, []interface{} and map[string]interface{}.
func (c Candidate) ToAny() interface{} {
	switch c.kind {
	case KindBool:
		return c.b
	case KindInt:
		return c.i
	case KindFloat:
		return c.f
	case KindString:
		return c.s
	case KindList:
		out := make([]interface{}, len(c.items))
		for i, item := range c.items {
			out[i] = item.ToAny()
		}
		return out
	case KindStruct:
		out := make(map[string]interface{}, len(c.fields))
		for k, v := range c.fields {
			out[k] = v.ToAny()
		}
		return out
	}
	return nil
}

// MarshalJSON encodes the candidate as its natural JSON form. Floats always
// carry a fraction or exponent so they decode as floats again.
func (c Candidate) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c Candidate) writeJSON(buf *bytes.Buffer) error {
	switch c.kind {
	case KindNone:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(c.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(c.i, 10))
	case KindFloat:
		if math.IsNaN(c.f) || math.IsInf(c.f, 0) {
			return fmt.Errorf("candidate float %v has no JSON form", c.f)
		}
		buf.WriteString(formatFloat(c.f))
	case KindString:
		data, err := json.Marshal(c.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindList:
		buf.WriteByte('[')
		for i, item := range c.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindStruct:
		buf.WriteByte('{')
		for i, k := range c.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := c.fields[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// formatFloat renders f the way encoding/json does, adding ".0" to whole
// numbers.
func formatFloat(f float64) string {
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	out := strconv.FormatFloat(f, format, -1, 64)
	if !strings.ContainsAny(out, ".eE") {
		out += ".0"
	}
	return out
}

// UnmarshalJSON decodes any JSON value. Numbers without a fraction or
// exponent become KindInt.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode candidate: %w", err)
	}
	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// MarshalYAML encodes the candidate as plain YAML. Whole-number floats are
// tagged !!float so they decode as floats again.
func (c Candidate) MarshalYAML() (interface{}, error) {
	return c.yamlNode(), nil
}

func (c Candidate) yamlNode() *yaml.Node {
	switch c.kind {
	case KindNone:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(c.b)}
	case KindInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(c.i, 10)}
	case KindFloat:
		value := formatFloat(c.f)
		switch {
		case math.IsNaN(c.f):
			value = ".nan"
		case math.IsInf(c.f, 1):
			value = ".inf"
		case math.IsInf(c.f, -1):
			value = "-.inf"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: value}
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.s}
	case KindList:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range c.items {
			node.Content = append(node.Content, item.yamlNode())
		}
		return node
	}
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range c.Keys() {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			c.fields[k].yamlNode())
	}
	return node
}

// UnmarshalYAML decodes any YAML node.
func (c *Candidate) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode candidate: %w", err)
	}
	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// ParseDomain decodes a JSON array into a candidate sequence.
func ParseDomain(data []byte) ([]Candidate, error) {
	var domain []Candidate
	if err := json.Unmarshal(data, &domain); err != nil {
		return nil, fmt.Errorf("domain must be a JSON array: %w", err)
	}
	return domain, nil
}
