package rewire

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	rerrors "github.com/toyz/rewire/internal/errors"
)

// Handler serves a route and returns the value dispatch turns into a response
type Handler func(req RequestContext) (any, error)

// Route is a resolved route descriptor
type Route struct {
	Verb     string
	Path     string
	Handler  Handler `yaml:"-" json:"-"`
	Response ResponseKind
	Roles    []string
	View     string
	Title    string
	Raw      bool
	// Component and Operation identify the target when the route came from a component
	Component string
	Operation string
}

// Key returns the table key of the route
func (r Route) Key() RouteKey {
	return RouteKey{Verb: r.Verb, Path: r.Path}
}

// RouteKey identifies a route table entry
type RouteKey struct {
	Verb string
	Path string
}

// String returns "VERB /path"
func (k RouteKey) String() string {
	return k.Verb + " " + k.Path
}

// RouteTable maps (verb, path) to a route. One table exists per setup.
type RouteTable struct {
	mu      sync.RWMutex
	entries map[RouteKey]*Route
	observe func(action string)
}

// NewRouteTable creates an empty route table
func NewRouteTable() *RouteTable {
	return &RouteTable{
		entries: make(map[RouteKey]*Route),
	}
}

func (t *RouteTable) notify(action string) {
	if t.observe != nil {
		t.observe(action)
	}
}

// Put inserts or replaces the route under its key
func (t *RouteTable) Put(route Route) {
	route.Roles = slices.Clone(route.Roles)

	t.mu.Lock()
	t.entries[route.Key()] = &route
	t.mu.Unlock()

	t.notify("put")
}

// Remove deletes the route under (verb, path). Removing an absent key is a no-op.
func (t *RouteTable) Remove(verb, path string) bool {
	key := RouteKey{Verb: verb, Path: path}

	t.mu.Lock()
	_, ok := t.entries[key]
	delete(t.entries, key)
	t.mu.Unlock()

	if ok {
		t.notify("remove")
	}
	return ok
}

// Reset drops every route. A table that is not empty afterwards means routes
// leaked through a concurrent registration and is reported as an invariant violation.
func (t *RouteTable) Reset() error {
	t.mu.Lock()
	clear(t.entries)
	left := len(t.entries)
	t.mu.Unlock()

	t.notify("reset")

	if left != 0 || !t.IsEmpty() {
		return rerrors.InvariantViolation("route table", fmt.Sprintf("%d routes left after reset", t.Len()))
	}
	return nil
}

// IsEmpty reports whether the table has no routes
func (t *RouteTable) IsEmpty() bool {
	return t.Len() == 0
}

// Len returns the number of routes
func (t *RouteTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Get returns the route stored under (verb, path)
func (t *RouteTable) Get(verb, path string) (Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	route, ok := t.entries[RouteKey{Verb: verb, Path: path}]
	if !ok {
		return Route{}, false
	}
	return *route, true
}

// All returns a snapshot of every route ordered by path, then verb
func (t *RouteTable) All() []Route {
	t.mu.RLock()
	routes := make([]Route, 0, len(t.entries))
	for _, route := range t.entries {
		routes = append(routes, *route)
	}
	t.mu.RUnlock()

	slices.SortFunc(routes, func(a, b Route) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return strings.Compare(a.Verb, b.Verb)
	})
	return routes
}

// ByVerb returns routes stored under the given verb
func (t *RouteTable) ByVerb(verb string) []Route {
	var result []Route
	for _, route := range t.All() {
		if route.Verb == verb {
			result = append(result, route)
		}
	}
	return result
}

// ByComponent returns routes registered from the named component
func (t *RouteTable) ByComponent(component string) []Route {
	var result []Route
	for _, route := range t.All() {
		if route.Component == component {
			result = append(result, route)
		}
	}
	return result
}

// Match finds the route serving a request. Exact keys win; page routes stored
// under GET_OR_POST serve both GET and POST; patterns are ranked by specificity.
func (t *RouteTable) Match(verb, path string) (Route, map[string]string, bool) {
	verbs := []string{verb}
	if verb == "GET" || verb == "POST" {
		verbs = append(verbs, VerbGetOrPost)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, v := range verbs {
		if route, ok := t.entries[RouteKey{Verb: v, Path: path}]; ok {
			return *route, map[string]string{}, true
		}
	}

	var (
		best       *Route
		bestParams map[string]string
		bestScore  = -1
	)
	for key, route := range t.entries {
		if !slices.Contains(verbs, key.Verb) || !Path(key.Path).IsPattern() {
			continue
		}
		params, score, ok := Path(key.Path).Match(path)
		if !ok {
			continue
		}
		if key.Verb == verb {
			score++
		}
		if score > bestScore || (score == bestScore && key.Path < best.Path) {
			best, bestParams, bestScore = route, params, score
		}
	}

	if best == nil {
		return Route{}, nil, false
	}
	return *best, bestParams, true
}
