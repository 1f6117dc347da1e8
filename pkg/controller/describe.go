package controller

import "sort"

// ActionDescriptor is the read-only shape handleActionTypes and diagnostic tooling
// render a declared action as, independent of the schema.Descriptor internals.
type ActionDescriptor struct {
	Controller string             `json:"controller"`
	Method     string             `json:"method"`
	Parameters []ParamDescription `json:"parameters"`
}

// ParamDescription is one parameter's wire-facing description.
type ParamDescription struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Optional bool   `json:"optional"`
}

// Describe renders every visible action of h as an ActionDescriptor, sorted by method
// name, for diagnostics.
func (r *Registry) Describe(h *Handle) []ActionDescriptor {
	names := make([]string, 0, len(h.actions))
	for name := range r.ActionsOf(h) {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ActionDescriptor, 0, len(names))
	for _, name := range names {
		a := h.actions[name]
		params := make([]ParamDescription, 0, len(a.Parameters))
		for _, p := range a.Parameters {
			params = append(params, ParamDescription{
				Name:     p.Name,
				Kind:     string(p.Desc.Kind),
				Optional: p.Optional,
			})
		}
		out = append(out, ActionDescriptor{Controller: h.id, Method: name, Parameters: params})
	}
	return out
}
