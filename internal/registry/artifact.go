package registry

// View is an opaque, chainable handle on a data collection.
type View interface {
	Count() int
}

// Kind tags the variant held by an Artifact.
type Kind int

const (
	// KindNone is the zero artifact handed to source nodes.
	KindNone Kind = iota
	// KindView is a chainable view.
	KindView
	// KindTerminal is a display/aggregation payload that cannot be consumed.
	KindTerminal
)

func (k Kind) String() string {
	switch k {
	case KindView:
		return "view"
	case KindTerminal:
		return "terminal"
	default:
		return "none"
	}
}

// Artifact is the value flowing along an edge: either a View or a Terminal
// payload. Only View artifacts may be consumed by another node.
type Artifact struct {
	kind    Kind
	view    View
	payload any
}

// ViewArtifact wraps a chainable view.
func ViewArtifact(v View) Artifact {
	return Artifact{kind: KindView, view: v}
}

// TerminalArtifact wraps a non-chainable result payload.
func TerminalArtifact(payload any) Artifact {
	return Artifact{kind: KindTerminal, payload: payload}
}

// Kind reports which variant the artifact holds.
func (a Artifact) Kind() Kind { return a.kind }

// IsView reports whether the artifact can feed another node.
func (a Artifact) IsView() bool { return a.kind == KindView }

// IsTerminal reports whether the artifact is a terminal payload.
func (a Artifact) IsTerminal() bool { return a.kind == KindTerminal }

// View returns the wrapped view, or nil for non-view artifacts.
func (a Artifact) View() View { return a.view }

// Payload returns the terminal payload, or nil for non-terminal artifacts.
func (a Artifact) Payload() any { return a.payload }

// Summary is the JSON-friendly form of the artifact reported to the UI.
// Views report their size; terminal artifacts report their payload as is.
func (a Artifact) Summary() any {
	switch a.kind {
	case KindView:
		if a.view == nil {
			return map[string]any{"type": "view"}
		}
		return map[string]any{"type": "view", "count": a.view.Count()}
	case KindTerminal:
		return a.payload
	default:
		return nil
	}
}
