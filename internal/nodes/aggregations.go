package nodes

import (
	"github.com/AaronLay10/curaflow/internal/dataset"
	"github.com/AaronLay10/curaflow/internal/registry"
)

func aggregationDescriptor(typ, label, description string, params map[string]registry.ParamSpec) registry.Descriptor {
	return registry.Descriptor{
		Type:        typ,
		Label:       label,
		Category:    CategoryAggregation,
		Description: description,
		Color:       colorAggregation,
		Inputs:      viewTag,
		Outputs:     []string{},
		Params:      params,
	}
}

func countAggregation() registry.Handler {
	return fieldHandler{
		Base: registry.Base{Desc: aggregationDescriptor("aggregation/count", "Count",
			"Count the samples in the view", map[string]registry.ParamSpec{})},
		exec: func(v *dataset.View, _ registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
			return registry.TerminalArtifact(map[string]any{"type": "count", "value": v.Count()}), nil
		},
	}
}

func countValuesAggregation() registry.Handler {
	return fieldHandler{
		Base: registry.Base{Desc: aggregationDescriptor("aggregation/count_values", "Count Values",
			"Count occurrences of each value of a field",
			map[string]registry.ParamSpec{"field": fieldParam("Field", "Field to count")})},
		exec: func(v *dataset.View, p registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
			field := p.String("field")
			return registry.TerminalArtifact(map[string]any{
				"type":   "count_values",
				"field":  field,
				"values": v.CountValues(field),
			}), nil
		},
	}
}

func distinctAggregation() registry.Handler {
	return fieldHandler{
		Base: registry.Base{Desc: aggregationDescriptor("aggregation/distinct", "Distinct",
			"List the distinct values of a field",
			map[string]registry.ParamSpec{"field": fieldParam("Field", "Field to inspect")})},
		exec: func(v *dataset.View, p registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
			field := p.String("field")
			values := v.Distinct(field)
			if values == nil {
				values = []any{}
			}
			return registry.TerminalArtifact(map[string]any{
				"type":   "distinct",
				"field":  field,
				"values": values,
			}), nil
		},
	}
}

func boundsAggregation() registry.Handler {
	return fieldHandler{
		Base: registry.Base{Desc: aggregationDescriptor("aggregation/bounds", "Bounds",
			"Minimum and maximum of a field",
			map[string]registry.ParamSpec{"field": fieldParam("Field", "Numeric field")})},
		exec: func(v *dataset.View, p registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
			field := p.String("field")
			lo, hi, _ := v.Bounds(field)
			return registry.TerminalArtifact(map[string]any{
				"type":  "bounds",
				"field": field,
				"min":   lo,
				"max":   hi,
			}), nil
		},
	}
}
