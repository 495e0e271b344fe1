package tool

import (
	"fmt"
	"slices"

	"github.com/hupe1980/agentstream/model"
)

// Set is an ordered collection of tools addressed by name.
type Set struct {
	order []string
	tools map[string]Tool
}

// NewSet builds a set. Duplicate names are rejected.
func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{tools: make(map[string]Tool, len(tools))}

	for _, t := range tools {
		if _, dup := s.tools[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name())
		}
		s.order = append(s.order, t.Name())
		s.tools[t.Name()] = t
	}

	return s, nil
}

// MustNewSet is NewSet that panics on duplicates.
func MustNewSet(tools ...Tool) *Set {
	s, err := NewSet(tools...)
	if err != nil {
		panic(err)
	}

	return s
}

// Get returns the tool registered under name.
func (s *Set) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}

	t, ok := s.tools[name]

	return t, ok
}

// Names returns the tool names in registration order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}

	return slices.Clone(s.order)
}

// Len returns the number of tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	return len(s.order)
}

// Definitions returns the model-facing definitions in registration order.
// A nil active list exposes every tool; otherwise only the named ones are
// included and unknown names are ignored.
func (s *Set) Definitions(active []string) []model.ToolDefinition {
	if s == nil {
		return nil
	}

	defs := make([]model.ToolDefinition, 0, len(s.order))

	for _, name := range s.order {
		if active != nil && !slices.Contains(active, name) {
			continue
		}

		t := s.tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}

	return defs
}
