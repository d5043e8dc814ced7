package nodes

import (
	"github.com/AaronLay10/curaflow/internal/registry"
)

func outputDescriptor(typ, label, description string, params map[string]registry.ParamSpec) registry.Descriptor {
	return registry.Descriptor{
		Type:        typ,
		Label:       label,
		Category:    CategoryOutput,
		Description: description,
		Color:       colorOutput,
		Inputs:      viewTag,
		Outputs:     []string{},
		Params:      params,
	}
}

type setViewHandler struct{ registry.Base }

// setViewOutput replaces the application view; only one may apply per run.
func setViewOutput() registry.Handler {
	d := outputDescriptor("output/set_view", "Set App View", "Show the resulting view in the app",
		map[string]registry.ParamSpec{})
	d.Singleton = true
	return setViewHandler{registry.Base{Desc: d}}
}

func (setViewHandler) Execute(in registry.Artifact, _ registry.Params, ec registry.ExecContext) (registry.Artifact, error) {
	v, err := inputView(in)
	if err != nil {
		return registry.Artifact{}, err
	}
	h, err := hostOf(ec)
	if err != nil {
		return registry.Artifact{}, err
	}
	h.SetView(v)
	return registry.TerminalArtifact(map[string]any{"type": "set_view", "count": v.Count()}), nil
}

type saveViewHandler struct{ registry.Base }

func saveViewOutput() registry.Handler {
	return saveViewHandler{registry.Base{Desc: outputDescriptor("output/save_view", "Save View",
		"Save the view on the dataset under a name",
		map[string]registry.ParamSpec{
			"name": {
				Type:        registry.ParamString,
				Label:       "View Name",
				Required:    true,
				Default:     "my_view",
				Description: "Name of the saved view",
			},
			"description": {
				Type:  registry.ParamString,
				Label: "Description",
			},
			"overwrite": {
				Type:        registry.ParamBool,
				Label:       "Overwrite",
				Default:     false,
				Description: "Replace an existing view with the same name",
			},
		})}}
}

func (saveViewHandler) Execute(in registry.Artifact, p registry.Params, ec registry.ExecContext) (registry.Artifact, error) {
	v, err := inputView(in)
	if err != nil {
		return registry.Artifact{}, err
	}
	h, err := hostOf(ec)
	if err != nil {
		return registry.Artifact{}, err
	}
	name := p.String("name")
	if err := h.Dataset().SaveView(name, p.String("description"), v, p.Bool("overwrite")); err != nil {
		return registry.Artifact{}, err
	}
	return registry.TerminalArtifact(map[string]any{"type": "save_view", "name": name, "count": v.Count()}), nil
}
