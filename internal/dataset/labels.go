package dataset

import (
	"fmt"
	"maps"
	"sort"

	"github.com/AaronLay10/curaflow/internal/expr"
)

// listKeys name the list inside a label container such as
// {"detections": [...]}. The first key present wins.
var listKeys = []string{"detections", "classifications", "keypoints", "polylines"}

// labelContainer describes the label value of one sample field.
type labelContainer struct {
	items  []any
	key    string // list key inside a container map, "" for a bare list
	single bool   // one label object, e.g. a classification
}

func labelsOf(v any) (labelContainer, bool) {
	if list, ok := v.([]any); ok {
		return labelContainer{items: list}, isLabelList(list)
	}
	m, ok := asMap(v)
	if !ok {
		return labelContainer{}, false
	}
	for _, k := range listKeys {
		if list, ok := m[k].([]any); ok {
			return labelContainer{items: list, key: k}, true
		}
	}
	if _, ok := m["label"]; ok {
		return labelContainer{items: []any{m}, single: true}, true
	}
	return labelContainer{}, false
}

func isLabelList(list []any) bool {
	for _, item := range list {
		if _, ok := asMap(item); !ok {
			return false
		}
	}
	return len(list) > 0
}

// rebuild returns the field value holding only kept labels, in the shape
// the original value had.
func (c labelContainer) rebuild(orig any, kept []any) any {
	switch {
	case c.single:
		if len(kept) == 0 {
			return nil
		}
		return kept[0]
	case c.key != "":
		m, _ := asMap(orig)
		out := maps.Clone(m)
		out[c.key] = kept
		return out
	default:
		return kept
	}
}

// FilterLabels keeps, inside the top-level label field of each sample, only
// the labels for which e holds. With onlyMatches, samples left without any
// matching label are dropped; other samples are kept unchanged when the
// field is missing or holds no labels. Matching samples are copied, so the
// dataset itself is not modified.
func (v *View) FilterLabels(field string, e *expr.Expr, onlyMatches bool) *View {
	var out []*Sample
	for _, s := range v.samples {
		raw, present := s.Fields[field]
		c, ok := labelsOf(raw)
		if !present || !ok {
			if !onlyMatches {
				out = append(out, s)
			}
			continue
		}

		kept := make([]any, 0, len(c.items))
		for _, item := range c.items {
			m, isMap := asMap(item)
			if isMap && e.Match(expr.MapRecord(m)) {
				kept = append(kept, item)
			}
		}
		if onlyMatches && len(kept) == 0 {
			continue
		}

		cp := *s
		cp.Fields = maps.Clone(s.Fields)
		cp.Fields[field] = c.rebuild(raw, kept)
		out = append(out, &cp)
	}
	return v.derive(out, fmt.Sprintf("FilterLabels(%s, %s, only_matches=%t)", field, e, onlyMatches))
}

// LabelFields lists the top-level fields holding labels on any sample in the
// view, sorted.
func (v *View) LabelFields() []string {
	set := make(map[string]struct{})
	for _, s := range v.samples {
		for name, val := range s.Fields {
			if _, ok := labelsOf(val); ok {
				set[name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
