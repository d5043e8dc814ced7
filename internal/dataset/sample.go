package dataset

import (
	"strings"
)

// Built-in sample fields, always reported by FieldNames.
const (
	FieldID       = "id"
	FieldFilepath = "filepath"
	FieldTags     = "tags"
)

// Sample is one item of a dataset.
type Sample struct {
	ID       string         `json:"id" yaml:"id"`
	Filepath string         `json:"filepath,omitempty" yaml:"filepath,omitempty"`
	Tags     []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Fields   map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Get resolves a dotted field path. Built-in fields shadow custom ones.
func (s *Sample) Get(path string) (any, bool) {
	switch path {
	case FieldID:
		return s.ID, true
	case FieldFilepath:
		if s.Filepath == "" {
			return nil, false
		}
		return s.Filepath, true
	case FieldTags:
		tags := make([]any, len(s.Tags))
		for i, t := range s.Tags {
			tags[i] = t
		}
		return tags, true
	}

	var cur any = s.Fields
	for _, part := range strings.Split(path, ".") {
		obj, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// HasTag reports whether the sample carries tag.
func (s *Sample) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// asMap accepts both JSON-decoded and YAML-decoded nested objects.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	}
	return nil, false
}

func fieldPaths(prefix string, fields map[string]any, out map[string]struct{}) {
	for k, v := range fields {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		out[path] = struct{}{}
		if nested, ok := asMap(v); ok {
			fieldPaths(path, nested, out)
		}
	}
}
