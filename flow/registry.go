package flow

import "fmt"

// Registry holds the immutable node set of one workflow version.
// Build it once at startup; the engine validates snapshots against it
// on resume, so changing the graph shape requires a new engine
// version.
type Registry[S, P, O any] struct {
	nodes map[string]NodeSpec[S, P, O]
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry[S, P, O any]() *Registry[S, P, O] {
	return &Registry[S, P, O]{nodes: make(map[string]NodeSpec[S, P, O])}
}

// Add registers a node. Duplicate names and malformed specs are
// rejected.
func (r *Registry[S, P, O]) Add(spec NodeSpec[S, P, O]) error {
	if spec.Name == "" {
		return &EngineError{Message: "node name must not be empty", Code: "INVALID_NODE"}
	}
	if _, exists := r.nodes[spec.Name]; exists {
		return &EngineError{
			Message: fmt.Sprintf("node %q already registered", spec.Name),
			Code:    "DUPLICATE_NODE",
		}
	}
	if spec.Handler == nil {
		return &EngineError{
			Message: fmt.Sprintf("node %q has no handler", spec.Name),
			Code:    "INVALID_NODE",
		}
	}
	if spec.TerminalStatus != "" && !spec.TerminalStatus.Terminal() {
		return &EngineError{
			Message: fmt.Sprintf("node %q has non-terminal status %q", spec.Name, spec.TerminalStatus),
			Code:    "INVALID_NODE",
		}
	}
	if spec.TerminalStatus == "" && spec.Route == nil {
		return &EngineError{
			Message: fmt.Sprintf("node %q needs a route or a terminal status", spec.Name),
			Code:    "INVALID_NODE",
		}
	}
	if spec.Kind == KindFanIn && len(spec.Predecessors) == 0 {
		return &EngineError{
			Message: fmt.Sprintf("fan-in node %q declares no predecessors", spec.Name),
			Code:    "INVALID_NODE",
		}
	}
	if spec.Kind != KindFanIn && len(spec.Predecessors) > 0 {
		return &EngineError{
			Message: fmt.Sprintf("node %q declares predecessors but is not fan-in", spec.Name),
			Code:    "INVALID_NODE",
		}
	}
	if spec.Retry != nil {
		if err := spec.Retry.Validate(); err != nil {
			return &EngineError{
				Message: fmt.Sprintf("node %q retry policy", spec.Name),
				Code:    "INVALID_NODE",
				Err:     err,
			}
		}
	}

	r.nodes[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// Get returns the spec for name.
func (r *Registry[S, P, O]) Get(name string) (NodeSpec[S, P, O], bool) {
	spec, ok := r.nodes[name]
	return spec, ok
}

// Has reports whether name is registered.
func (r *Registry[S, P, O]) Has(name string) bool {
	_, ok := r.nodes[name]
	return ok
}

// Names returns node names in registration order.
func (r *Registry[S, P, O]) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Validate checks cross-node consistency: the start node exists and
// every fan-in predecessor is registered.
func (r *Registry[S, P, O]) Validate(start string) error {
	if !r.Has(start) {
		return &EngineError{
			Message: fmt.Sprintf("start node %q not registered", start),
			Code:    "INVALID_GRAPH",
		}
	}
	for _, name := range r.order {
		spec := r.nodes[name]
		for _, pred := range spec.Predecessors {
			if !r.Has(pred) {
				return &EngineError{
					Message: fmt.Sprintf("node %q predecessor %q not registered", name, pred),
					Code:    "INVALID_GRAPH",
				}
			}
		}
	}
	return nil
}
