package rewire

import (
	"slices"
	"strings"
)

// MarkerKind identifies a route marker
type MarkerKind string

const (
	KindGet     MarkerKind = "GET"
	KindPost    MarkerKind = "POST"
	KindPut     MarkerKind = "PUT"
	KindDelete  MarkerKind = "DELETE"
	KindPatch   MarkerKind = "PATCH"
	KindOptions MarkerKind = "OPTIONS"
	KindHead    MarkerKind = "HEAD"
	KindTrace   MarkerKind = "TRACE"
	KindPage    MarkerKind = "PAGE"
)

// VerbGetOrPost is the canonical verb token shared by GET and POST when a
// single handler serves both, as page routes do.
const VerbGetOrPost = "GET_OR_POST"

// ResponseKind tells dispatch how to turn a handler result into a response
type ResponseKind int

const (
	// ResponseData serializes the result
	ResponseData ResponseKind = iota
	// ResponseView renders the result through a view
	ResponseView
)

// String returns the string representation of the response kind
func (k ResponseKind) String() string {
	switch k {
	case ResponseData:
		return "data"
	case ResponseView:
		return "view"
	default:
		return "unknown"
	}
}

// Descriptor is the catalog entry for one marker kind
type Descriptor struct {
	Kind     MarkerKind
	Verbs    []string
	Response ResponseKind
	// Token is the verb under which the route is stored and deregistered
	Token string
}

var descriptorCatalog = map[MarkerKind]Descriptor{
	KindGet:     dataDescriptor(KindGet),
	KindPost:    dataDescriptor(KindPost),
	KindPut:     dataDescriptor(KindPut),
	KindDelete:  dataDescriptor(KindDelete),
	KindPatch:   dataDescriptor(KindPatch),
	KindOptions: dataDescriptor(KindOptions),
	KindHead:    dataDescriptor(KindHead),
	KindTrace:   dataDescriptor(KindTrace),
	KindPage: {
		Kind:     KindPage,
		Verbs:    []string{"GET", "POST"},
		Response: ResponseView,
		Token:    VerbGetOrPost,
	},
}

var markerKinds = []MarkerKind{
	KindGet, KindPost, KindPut, KindDelete, KindPatch, KindOptions, KindHead, KindTrace, KindPage,
}

func dataDescriptor(kind MarkerKind) Descriptor {
	return Descriptor{
		Kind:     kind,
		Verbs:    []string{string(kind)},
		Response: ResponseData,
		Token:    string(kind),
	}
}

// LookupMarker returns the descriptor for a marker kind
func LookupMarker(kind MarkerKind) (Descriptor, bool) {
	d, ok := descriptorCatalog[kind]
	if !ok {
		return Descriptor{}, false
	}
	d.Verbs = slices.Clone(d.Verbs)
	return d, true
}

// ParseMarkerKind resolves a kind name case-insensitively
func ParseMarkerKind(name string) (MarkerKind, bool) {
	kind := MarkerKind(strings.ToUpper(strings.TrimSpace(name)))
	_, ok := descriptorCatalog[kind]
	return kind, ok
}

// MarkerKinds returns every known marker kind in catalog order
func MarkerKinds() []MarkerKind {
	return slices.Clone(markerKinds)
}

// HTTPVerbs returns every concrete verb a route can be served under
func HTTPVerbs() []string {
	verbs := make([]string, 0, len(markerKinds))
	for _, kind := range markerKinds {
		if kind == KindPage {
			continue
		}
		verbs = append(verbs, string(kind))
	}
	return verbs
}
