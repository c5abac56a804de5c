package annotations

import (
	"sort"
	"strings"
	"sync"
)

// ParameterType describes how a named marker parameter is interpreted
type ParameterType int

const (
	StringType ParameterType = iota
	ListType
	BoolType
)

// String returns the string representation of the parameter type
func (t ParameterType) String() string {
	switch t {
	case StringType:
		return "string"
	case ListType:
		return "list"
	case BoolType:
		return "bool"
	default:
		return "unknown"
	}
}

// ParameterSpec defines one named parameter a marker accepts
type ParameterSpec struct {
	Name        string
	Type        ParameterType
	Description string
}

// Schema lists the marker kinds the parser accepts and the parameters each takes.
type Schema struct {
	mu     sync.RWMutex
	kinds  map[string]bool
	params map[string]ParameterSpec
}

// NewSchema creates a schema accepting the given marker kinds and the route parameters.
// Kinds are matched case-insensitively.
func NewSchema(kinds ...string) *Schema {
	s := &Schema{
		kinds:  make(map[string]bool),
		params: make(map[string]ParameterSpec),
	}
	for _, kind := range kinds {
		s.kinds[strings.ToUpper(kind)] = true
	}
	for _, spec := range routeParameters {
		s.params[spec.Name] = spec
	}
	return s
}

var routeParameters = []ParameterSpec{
	{Name: "uri", Type: StringType, Description: "path alias used when no explicit path is given"},
	{Name: "roles", Type: ListType, Description: "roles allowed to call the operation"},
	{Name: "view", Type: StringType, Description: "view rendered for page markers"},
	{Name: "title", Type: StringType, Description: "page title"},
	{Name: "raw", Type: BoolType, Description: "render the handler result as raw HTML"},
}

// AddParameter registers an extra parameter, replacing any spec with the same name
func (s *Schema) AddParameter(spec ParameterSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[spec.Name] = spec
}

// HasKind reports whether the kind is accepted
func (s *Schema) HasKind(kind string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kinds[strings.ToUpper(kind)]
}

// Parameter returns the spec for a named parameter
func (s *Schema) Parameter(name string) (ParameterSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.params[name]
	return spec, ok
}

// Kinds returns the accepted kinds in sorted order
func (s *Schema) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]string, 0, len(s.kinds))
	for kind := range s.kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// ParameterNames returns the accepted parameter names in sorted order
func (s *Schema) ParameterNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.params))
	for name := range s.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
