package registry

import (
	"fmt"
	"math"
	"strconv"
)

// Param types understood by the schema checks.
const (
	ParamString = "string"
	ParamInt    = "int"
	ParamFloat  = "float"
	ParamBool   = "bool"
	ParamList   = "list"
	ParamEnum   = "enum"
)

// ParamSpec describes one handler parameter.
type ParamSpec struct {
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Required    bool     `json:"required"`
	Default     any      `json:"default"`
	Dynamic     bool     `json:"dynamic,omitempty"`
	Values      []any    `json:"values,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	ItemType    string   `json:"item_type,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Min is a helper for ParamSpec.Min literals.
func Min(v float64) *float64 { return &v }

// Issue is a parameter problem found by Handler.Validate.
type Issue struct {
	Field   string
	Message string
}

func (i Issue) String() string { return i.Message }

// Params is a node's parameter map with typed, schema-aware accessors.
// Missing values fall back to the schema default.
type Params struct {
	values map[string]any
	schema map[string]ParamSpec
}

// NewParams binds raw values to a schema. Either may be nil.
func NewParams(values map[string]any, schema map[string]ParamSpec) Params {
	return Params{values: values, schema: schema}
}

// Raw returns the value as submitted, falling back to the schema default.
func (p Params) Raw(name string) (any, bool) {
	if v, ok := p.values[name]; ok && v != nil {
		return v, true
	}
	if spec, ok := p.schema[name]; ok && spec.Default != nil {
		return spec.Default, true
	}
	return nil, false
}

// Has reports whether a non-empty value (or default) exists.
func (p Params) Has(name string) bool {
	v, ok := p.Raw(name)
	return ok && !isEmpty(v)
}

// String returns the parameter as a string ("" when absent).
func (p Params) String(name string) string {
	v, ok := p.Raw(name)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the parameter as an int.
func (p Params) Int(name string) (int, error) {
	v, ok := p.Raw(name)
	if !ok {
		return 0, fmt.Errorf("parameter %q is not set", name)
	}
	f, ok := toNumber(v)
	if !ok {
		return 0, fmt.Errorf("parameter %q: %v is not a number", name, v)
	}
	n, ok := asInt(f)
	if !ok {
		return 0, fmt.Errorf("parameter %q: %v is not an integer", name, v)
	}
	return n, nil
}

// asInt converts f when it is a whole number inside the int range.
func asInt(f float64) (int, bool) {
	if math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt) rounds up, so the upper bound is exclusive.
	if f < float64(math.MinInt) || f >= -float64(math.MinInt) {
		return 0, false
	}
	return int(f), true
}

// Float returns the parameter as a float64.
func (p Params) Float(name string) (float64, error) {
	v, ok := p.Raw(name)
	if !ok {
		return 0, fmt.Errorf("parameter %q is not set", name)
	}
	f, ok := toNumber(v)
	if !ok {
		return 0, fmt.Errorf("parameter %q: %v is not a number", name, v)
	}
	return f, nil
}

// Bool returns the parameter as a bool (false when absent).
func (p Params) Bool(name string) bool {
	v, ok := p.Raw(name)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	}
	return false
}

// Strings returns a list parameter as strings.
func (p Params) Strings(name string) []string {
	v, ok := p.Raw(name)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if list == "" {
			return nil
		}
		return []string{list}
	}
	return nil
}

// ValidateSchema runs the schema-driven checks shared by every handler:
// required fields, value types, enum membership and numeric minimums.
func ValidateSchema(schema map[string]ParamSpec, values map[string]any) []Issue {
	var issues []Issue
	for _, name := range sortedKeys(schema) {
		spec := schema[name]
		label := spec.Label
		if label == "" {
			label = name
		}
		v, present := values[name]
		if !present || isEmpty(v) {
			if spec.Required {
				issues = append(issues, Issue{Field: name, Message: fmt.Sprintf("'%s' is required", label)})
			}
			continue
		}
		if msg := checkType(spec, v); msg != "" {
			issues = append(issues, Issue{Field: name, Message: fmt.Sprintf("'%s' %s", label, msg)})
			continue
		}
		if spec.Min != nil {
			if f, ok := toNumber(v); ok && f < *spec.Min {
				issues = append(issues, Issue{Field: name, Message: fmt.Sprintf("'%s' must be at least %v", label, *spec.Min)})
			}
		}
		if spec.Type == ParamEnum && !spec.Dynamic && len(spec.Values) > 0 && !containsValue(spec.Values, v) {
			issues = append(issues, Issue{Field: name, Message: fmt.Sprintf("'%s' must be one of %v", label, spec.Values)})
		}
	}
	return issues
}

func checkType(spec ParamSpec, v any) string {
	switch spec.Type {
	case ParamString, ParamEnum:
		if _, ok := v.(string); !ok {
			return "must be a string"
		}
	case ParamInt:
		f, ok := toNumber(v)
		if !ok {
			return "must be an integer"
		}
		if _, ok := asInt(f); !ok {
			return "must be an integer"
		}
	case ParamFloat:
		if _, ok := toNumber(v); !ok {
			return "must be a number"
		}
	case ParamBool:
		if _, ok := v.(bool); !ok {
			return "must be true or false"
		}
	case ParamList:
		switch v.(type) {
		case []any, []string:
		default:
			return "must be a list"
		}
	}
	return ""
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func containsValue(values []any, v any) bool {
	for _, candidate := range values {
		if fmt.Sprint(candidate) == fmt.Sprint(v) {
			return true
		}
	}
	return false
}
