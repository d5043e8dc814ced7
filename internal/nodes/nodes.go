package nodes

import (
	"errors"
	"fmt"

	"github.com/AaronLay10/curaflow/internal/dataset"
	"github.com/AaronLay10/curaflow/internal/registry"
)

// Host is the collaborator the handlers act on: the dataset the graph runs
// against and the application view it may replace.
type Host interface {
	Dataset() *dataset.Dataset
	SetView(v *dataset.View)
}

// Categories used in the node palette.
const (
	CategorySource      = registry.CategorySource
	CategoryViewStage   = "view_stage"
	CategoryAggregation = "aggregation"
	CategoryOutput      = "output"
)

const (
	colorSource      = "#3B82F6"
	colorViewStage   = "#10B981"
	colorAggregation = "#F59E0B"
	colorOutput      = "#EF4444"
)

var viewTag = []string{"view"}

// ErrNoHost is returned when a handler runs without a dataset host.
var ErrNoHost = errors.New("no dataset is loaded")

// Module registers every built-in node type.
type Module struct{}

func (Module) Register(r *registry.Registry) { Register(r) }

// Register adds the built-in handlers to r.
func Register(r *registry.Registry) {
	for _, h := range []registry.Handler{
		datasetSource(),
		savedViewSource(),
		matchStage(),
		matchTagsStage(),
		filterLabelsStage(),
		sortByStage(),
		limitStage(),
		existsStage(),
		takeStage(),
		countAggregation(),
		countValuesAggregation(),
		distinctAggregation(),
		boundsAggregation(),
		setViewOutput(),
		saveViewOutput(),
	} {
		r.Register(h)
	}
}

// NewRegistry returns a frozen registry holding the built-in handlers.
func NewRegistry() *registry.Registry {
	return registry.Build(Module{})
}

func hostOf(ec registry.ExecContext) (Host, error) {
	if ec == nil {
		return nil, ErrNoHost
	}
	h, ok := ec.Env().(Host)
	if !ok || h == nil || h.Dataset() == nil {
		return nil, ErrNoHost
	}
	return h, nil
}

func inputView(in registry.Artifact) (*dataset.View, error) {
	if !in.IsView() {
		return nil, fmt.Errorf("expected a view input, got %s", in.Kind())
	}
	v, ok := in.View().(*dataset.View)
	if !ok || v == nil {
		return nil, fmt.Errorf("unsupported view type %T", in.View())
	}
	return v, nil
}

// fieldOptions lists the dataset's field names for dynamic field params.
func fieldOptions(ec registry.ExecContext) []any {
	h, err := hostOf(ec)
	if err != nil {
		return []any{}
	}
	names := h.Dataset().View().FieldNames()
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

func fieldParam(label, description string) registry.ParamSpec {
	return registry.ParamSpec{
		Type:        registry.ParamEnum,
		Label:       label,
		Required:    true,
		Dynamic:     true,
		Description: description,
	}
}

// fieldHandler is a view-consuming handler with one dynamic "field" param.
type fieldHandler struct {
	registry.Base
	exec func(v *dataset.View, p registry.Params, ec registry.ExecContext) (registry.Artifact, error)
}

func (h fieldHandler) Execute(in registry.Artifact, p registry.Params, ec registry.ExecContext) (registry.Artifact, error) {
	v, err := inputView(in)
	if err != nil {
		return registry.Artifact{}, err
	}
	return h.exec(v, p, ec)
}

func (h fieldHandler) DynamicOptions(param string, ec registry.ExecContext) ([]any, bool) {
	if param == "field" {
		return fieldOptions(ec), true
	}
	return nil, false
}
