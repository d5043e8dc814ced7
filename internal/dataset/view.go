package dataset

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/AaronLay10/curaflow/internal/expr"
)

// View is an immutable, ordered selection of a dataset's samples. Every
// stage method returns a new View and leaves the receiver untouched.
type View struct {
	ds      *Dataset
	samples []*Sample
	stages  []string
}

func (v *View) derive(samples []*Sample, stage string) *View {
	stages := make([]string, len(v.stages), len(v.stages)+1)
	copy(stages, v.stages)
	return &View{ds: v.ds, samples: samples, stages: append(stages, stage)}
}

// Dataset returns the dataset the view selects from.
func (v *View) Dataset() *Dataset { return v.ds }

// Count returns the number of samples in the view.
func (v *View) Count() int { return len(v.samples) }

// Samples returns the view's samples in order.
func (v *View) Samples() []*Sample {
	return append([]*Sample(nil), v.samples...)
}

// IDs returns the sample ids in view order.
func (v *View) IDs() []string {
	ids := make([]string, len(v.samples))
	for i, s := range v.samples {
		ids[i] = s.ID
	}
	return ids
}

// Stages returns the human-readable pipeline that produced the view.
func (v *View) Stages() []string { return append([]string(nil), v.stages...) }

func (v *View) String() string {
	name := ""
	if v.ds != nil {
		name = v.ds.Name()
	}
	if len(v.stages) == 0 {
		return fmt.Sprintf("%s (%d samples)", name, len(v.samples))
	}
	return fmt.Sprintf("%s | %s (%d samples)", name, strings.Join(v.stages, " | "), len(v.samples))
}

// Match keeps the samples for which e holds.
func (v *View) Match(e *expr.Expr) *View {
	var out []*Sample
	for _, s := range v.samples {
		if e.Match(s) {
			out = append(out, s)
		}
	}
	return v.derive(out, fmt.Sprintf("Match(%s)", e))
}

// MatchTags keeps samples having any (or, with all, every) tag. With
// include false the selection is inverted.
func (v *View) MatchTags(tags []string, all, include bool) *View {
	var out []*Sample
	for _, s := range v.samples {
		hit := all
		for _, t := range tags {
			has := s.HasTag(t)
			if all && !has {
				hit = false
				break
			}
			if !all && has {
				hit = true
				break
			}
		}
		if hit == include {
			out = append(out, s)
		}
	}
	return v.derive(out, fmt.Sprintf("MatchTags(%v, all=%t, bool=%t)", tags, all, include))
}

// SortBy orders samples by a field. Samples missing the field sort last in
// either direction; ties keep their current order.
func (v *View) SortBy(field string, reverse bool) *View {
	out := append([]*Sample(nil), v.samples...)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := out[i].Get(field)
		b, bok := out[j].Get(field)
		if !aok || !bok {
			return aok && !bok
		}
		c, ok := expr.Compare(a, b)
		if !ok {
			return false
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	return v.derive(out, fmt.Sprintf("SortBy(%s, reverse=%t)", field, reverse))
}

// Limit keeps at most n samples.
func (v *View) Limit(n int) *View {
	if n < 0 {
		n = 0
	}
	if n > len(v.samples) {
		n = len(v.samples)
	}
	return v.derive(append([]*Sample(nil), v.samples[:n]...), fmt.Sprintf("Limit(%d)", n))
}

// Exists keeps samples that have (or, with want false, lack) a non-nil
// value for field.
func (v *View) Exists(field string, want bool) *View {
	var out []*Sample
	for _, s := range v.samples {
		if _, ok := s.Get(field); ok == want {
			out = append(out, s)
		}
	}
	return v.derive(out, fmt.Sprintf("Exists(%s, %t)", field, want))
}

// Take returns n samples chosen at random. The same seed over the same
// view always yields the same selection.
func (v *View) Take(n int, seed uint64) *View {
	out := append([]*Sample(nil), v.samples...)
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if n < len(out) {
		out = out[:n]
	}
	return v.derive(out, fmt.Sprintf("Take(%d, seed=%d)", n, seed))
}

// CountValues counts the occurrences of each value of field. List values
// count each element; samples missing the field count under "None".
func (v *View) CountValues(field string) map[string]int {
	counts := make(map[string]int)
	for _, s := range v.samples {
		val, ok := s.Get(field)
		if !ok {
			counts["None"]++
			continue
		}
		if list, isList := val.([]any); isList {
			for _, item := range list {
				counts[fmt.Sprint(item)]++
			}
			continue
		}
		counts[fmt.Sprint(val)]++
	}
	return counts
}

// Distinct returns the sorted distinct values of field, flattening lists.
func (v *View) Distinct(field string) []any {
	seen := make(map[string]struct{})
	var out []any
	add := func(val any) {
		key := fmt.Sprintf("%T:%v", val, val)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, val)
	}
	for _, s := range v.samples {
		val, ok := s.Get(field)
		if !ok {
			continue
		}
		if list, isList := val.([]any); isList {
			for _, item := range list {
				add(item)
			}
			continue
		}
		add(val)
	}
	sort.SliceStable(out, func(i, j int) bool {
		c, ok := expr.Compare(out[i], out[j])
		if !ok {
			return fmt.Sprint(out[i]) < fmt.Sprint(out[j])
		}
		return c < 0
	})
	return out
}

// Bounds returns the minimum and maximum value of field. ok is false when
// no sample has a comparable value.
func (v *View) Bounds(field string) (lo, hi any, ok bool) {
	for _, s := range v.samples {
		val, present := s.Get(field)
		if !present {
			continue
		}
		if !ok {
			lo, hi, ok = val, val, true
			continue
		}
		if c, comparable := expr.Compare(val, lo); comparable && c < 0 {
			lo = val
		}
		if c, comparable := expr.Compare(val, hi); comparable && c > 0 {
			hi = val
		}
	}
	return lo, hi, ok
}

// FieldNames lists the built-in fields plus every (dotted) custom field
// present on any sample in the view, sorted.
func (v *View) FieldNames() []string {
	set := map[string]struct{}{FieldID: {}, FieldFilepath: {}, FieldTags: {}}
	for _, s := range v.samples {
		fieldPaths("", s.Fields, set)
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
