package nodes

import (
	"math/rand/v2"

	"github.com/AaronLay10/curaflow/internal/dataset"
	"github.com/AaronLay10/curaflow/internal/expr"
	"github.com/AaronLay10/curaflow/internal/registry"
)

func stageDescriptor(typ, label, description string, params map[string]registry.ParamSpec) registry.Descriptor {
	return registry.Descriptor{
		Type:        typ,
		Label:       label,
		Category:    CategoryViewStage,
		Description: description,
		Color:       colorViewStage,
		Inputs:      viewTag,
		Outputs:     viewTag,
		Params:      params,
	}
}

type matchHandler struct{ registry.Base }

func matchStage() registry.Handler {
	return matchHandler{registry.Base{Desc: stageDescriptor("view_stage/match", "Match",
		"Filter samples by an expression",
		map[string]registry.ParamSpec{
			"expression": {
				Type:        registry.ParamString,
				Label:       "Expression",
				Required:    true,
				Default:     "",
				Placeholder: `F("confidence") > 0.9`,
				Description: `A filter expression, e.g. F("confidence") > 0.9`,
			},
		})}}
}

// Validate adds an expression syntax check to the schema checks.
func (h matchHandler) Validate(params map[string]any) []registry.Issue {
	return checkExpression(h.Base.Validate(params), params)
}

func checkExpression(issues []registry.Issue, params map[string]any) []registry.Issue {
	if src, ok := params["expression"].(string); ok && src != "" {
		if _, err := expr.Parse(src); err != nil {
			issues = append(issues, registry.Issue{Field: "expression", Message: err.Error()})
		}
	}
	return issues
}

func (matchHandler) Execute(in registry.Artifact, p registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
	v, err := inputView(in)
	if err != nil {
		return registry.Artifact{}, err
	}
	e, err := expr.Compile(p.String("expression"))
	if err != nil {
		return registry.Artifact{}, err
	}
	return registry.ViewArtifact(v.Match(e)), nil
}

type filterLabelsHandler struct{ registry.Base }

func filterLabelsStage() registry.Handler {
	return filterLabelsHandler{registry.Base{Desc: stageDescriptor("view_stage/filter_labels", "Filter Labels",
		"Filter detections/classifications within a label field",
		map[string]registry.ParamSpec{
			"field": fieldParam("Label Field", "Label field to filter"),
			"expression": {
				Type:        registry.ParamString,
				Label:       "Expression",
				Required:    true,
				Default:     "",
				Placeholder: `F("confidence") > 0.5`,
				Description: "Filter expression for labels",
			},
			"only_matches": {
				Type:        registry.ParamBool,
				Label:       "Only Matches",
				Default:     true,
				Description: "Only keep samples with at least one matching label",
			},
		})}}
}

func (h filterLabelsHandler) Validate(params map[string]any) []registry.Issue {
	return checkExpression(h.Base.Validate(params), params)
}

func (filterLabelsHandler) Execute(in registry.Artifact, p registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
	v, err := inputView(in)
	if err != nil {
		return registry.Artifact{}, err
	}
	e, err := expr.Compile(p.String("expression"))
	if err != nil {
		return registry.Artifact{}, err
	}
	return registry.ViewArtifact(v.FilterLabels(p.String("field"), e, p.Bool("only_matches"))), nil
}

func (filterLabelsHandler) DynamicOptions(param string, ec registry.ExecContext) ([]any, bool) {
	if param != "field" {
		return nil, false
	}
	h, err := hostOf(ec)
	if err != nil {
		return []any{}, true
	}
	names := h.Dataset().View().LabelFields()
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out, true
}

type matchTagsHandler struct{ registry.Base }

func matchTagsStage() registry.Handler {
	return matchTagsHandler{registry.Base{Desc: stageDescriptor("view_stage/match_tags", "Match Tags",
		"Filter samples that have specific tags",
		map[string]registry.ParamSpec{
			"tags": {
				Type:        registry.ParamList,
				ItemType:    registry.ParamString,
				Label:       "Tags",
				Required:    true,
				Default:     []any{},
				Description: "Tags to match",
			},
			"all": {
				Type:        registry.ParamBool,
				Label:       "Require All Tags",
				Default:     false,
				Description: "Require all tags (true) or any tag (false)",
			},
			"bool": {
				Type:        registry.ParamBool,
				Label:       "Include Matching",
				Default:     true,
				Description: "Include (true) or exclude (false) matching samples",
			},
		})}}
}

func (matchTagsHandler) Execute(in registry.Artifact, p registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
	v, err := inputView(in)
	if err != nil {
		return registry.Artifact{}, err
	}
	return registry.ViewArtifact(v.MatchTags(p.Strings("tags"), p.Bool("all"), p.Bool("bool"))), nil
}

func sortByStage() registry.Handler {
	return fieldHandler{
		Base: registry.Base{Desc: stageDescriptor("view_stage/sort_by", "Sort By", "Sort samples by a field",
			map[string]registry.ParamSpec{
				"field": fieldParam("Field", "Field to sort by"),
				"reverse": {
					Type:        registry.ParamBool,
					Label:       "Descending",
					Default:     false,
					Description: "Sort in descending order",
				},
			})},
		exec: func(v *dataset.View, p registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
			return registry.ViewArtifact(v.SortBy(p.String("field"), p.Bool("reverse"))), nil
		},
	}
}

type limitHandler struct{ registry.Base }

func limitStage() registry.Handler {
	return limitHandler{registry.Base{Desc: stageDescriptor("view_stage/limit", "Limit", "Limit the number of samples",
		map[string]registry.ParamSpec{
			"count": {
				Type:        registry.ParamInt,
				Label:       "Count",
				Required:    true,
				Default:     100,
				Min:         registry.Min(1),
				Description: "Maximum number of samples",
			},
		})}}
}

func (limitHandler) Execute(in registry.Artifact, p registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
	v, err := inputView(in)
	if err != nil {
		return registry.Artifact{}, err
	}
	n, err := p.Int("count")
	if err != nil {
		return registry.Artifact{}, err
	}
	return registry.ViewArtifact(v.Limit(n)), nil
}

func existsStage() registry.Handler {
	return fieldHandler{
		Base: registry.Base{Desc: stageDescriptor("view_stage/exists", "Exists",
			"Filter to samples where a field exists (or doesn't)",
			map[string]registry.ParamSpec{
				"field": fieldParam("Field", "Field to check"),
				"bool": {
					Type:        registry.ParamBool,
					Label:       "Exists",
					Default:     true,
					Description: "Exists (true) or doesn't exist (false)",
				},
			})},
		exec: func(v *dataset.View, p registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
			return registry.ViewArtifact(v.Exists(p.String("field"), p.Bool("bool"))), nil
		},
	}
}

type takeHandler struct{ registry.Base }

func takeStage() registry.Handler {
	return takeHandler{registry.Base{Desc: stageDescriptor("view_stage/take", "Random Sample",
		"Randomly sample N items from the view",
		map[string]registry.ParamSpec{
			"count": {
				Type:        registry.ParamInt,
				Label:       "Count",
				Required:    true,
				Default:     100,
				Min:         registry.Min(1),
				Description: "Number of samples to take",
			},
			"seed": {
				Type:        registry.ParamInt,
				Label:       "Random Seed",
				Description: "Random seed for reproducibility",
			},
		})}}
}

func (takeHandler) Execute(in registry.Artifact, p registry.Params, _ registry.ExecContext) (registry.Artifact, error) {
	v, err := inputView(in)
	if err != nil {
		return registry.Artifact{}, err
	}
	n, err := p.Int("count")
	if err != nil {
		return registry.Artifact{}, err
	}
	seed := rand.Uint64()
	if p.Has("seed") {
		s, err := p.Int("seed")
		if err != nil {
			return registry.Artifact{}, err
		}
		seed = uint64(s)
	}
	return registry.ViewArtifact(v.Take(n, seed)), nil
}
