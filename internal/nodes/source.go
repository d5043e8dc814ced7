package nodes

import (
	"github.com/AaronLay10/curaflow/internal/registry"
)

type datasetSourceHandler struct{ registry.Base }

func datasetSource() registry.Handler {
	return datasetSourceHandler{registry.Base{Desc: registry.Descriptor{
		Type:        "source/dataset",
		Label:       "Current Dataset",
		Category:    CategorySource,
		Description: "Start from every sample of the loaded dataset",
		Color:       colorSource,
		Inputs:      []string{},
		Outputs:     viewTag,
		Params:      map[string]registry.ParamSpec{},
	}}}
}

func (datasetSourceHandler) Execute(_ registry.Artifact, _ registry.Params, ec registry.ExecContext) (registry.Artifact, error) {
	h, err := hostOf(ec)
	if err != nil {
		return registry.Artifact{}, err
	}
	return registry.ViewArtifact(h.Dataset().View()), nil
}

type savedViewSourceHandler struct{ registry.Base }

func savedViewSource() registry.Handler {
	return savedViewSourceHandler{registry.Base{Desc: registry.Descriptor{
		Type:        "source/saved_view",
		Label:       "Load Saved View",
		Category:    CategorySource,
		Description: "Start from a named saved view",
		Color:       colorSource,
		Inputs:      []string{},
		Outputs:     viewTag,
		Params: map[string]registry.ParamSpec{
			"view_name": {
				Type:        registry.ParamEnum,
				Label:       "Saved View",
				Required:    true,
				Dynamic:     true,
				Description: "Name of the saved view to load",
			},
		},
	}}}
}

func (savedViewSourceHandler) Execute(_ registry.Artifact, p registry.Params, ec registry.ExecContext) (registry.Artifact, error) {
	h, err := hostOf(ec)
	if err != nil {
		return registry.Artifact{}, err
	}
	v, err := h.Dataset().LoadSavedView(p.String("view_name"))
	if err != nil {
		return registry.Artifact{}, err
	}
	return registry.ViewArtifact(v), nil
}

func (savedViewSourceHandler) DynamicOptions(param string, ec registry.ExecContext) ([]any, bool) {
	if param != "view_name" {
		return nil, false
	}
	h, err := hostOf(ec)
	if err != nil {
		return []any{}, true
	}
	names := h.Dataset().SavedViewNames()
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out, true
}
