package rewire

import (
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/toyz/rewire/internal/annotations"
	rerrors "github.com/toyz/rewire/internal/errors"
)

// Marker tags an operation of a component as a route.
type Marker struct {
	Kind MarkerKind
	// Value is the explicit path; it wins over URI and the operation name
	Value string
	// URI is a path alias used when Value is empty
	URI   string
	Roles []string
	View  string
	Title string
	// Raw serves a page result as HTML instead of rendering a view
	Raw bool
}

func newMarker(kind MarkerKind, path []string) Marker {
	m := Marker{Kind: kind}
	if len(path) > 0 {
		m.Value = path[0]
	}
	return m
}

// GET creates a GET marker with an optional explicit path
func GET(path ...string) Marker { return newMarker(KindGet, path) }

// POST creates a POST marker with an optional explicit path
func POST(path ...string) Marker { return newMarker(KindPost, path) }

// PUT creates a PUT marker with an optional explicit path
func PUT(path ...string) Marker { return newMarker(KindPut, path) }

// DELETE creates a DELETE marker with an optional explicit path
func DELETE(path ...string) Marker { return newMarker(KindDelete, path) }

// PATCH creates a PATCH marker with an optional explicit path
func PATCH(path ...string) Marker { return newMarker(KindPatch, path) }

// OPTIONS creates an OPTIONS marker with an optional explicit path
func OPTIONS(path ...string) Marker { return newMarker(KindOptions, path) }

// HEAD creates a HEAD marker with an optional explicit path
func HEAD(path ...string) Marker { return newMarker(KindHead, path) }

// TRACE creates a TRACE marker with an optional explicit path
func TRACE(path ...string) Marker { return newMarker(KindTrace, path) }

// Page creates a page marker with an optional explicit path
func Page(path ...string) Marker { return newMarker(KindPage, path) }

// WithURI sets the path alias
func (m Marker) WithURI(uri string) Marker {
	m.URI = uri
	return m
}

// WithRoles adds required roles
func (m Marker) WithRoles(roles ...string) Marker {
	m.Roles = append(slices.Clone(m.Roles), roles...)
	return m
}

// WithView sets the view a page renders
func (m Marker) WithView(view string) Marker {
	m.View = view
	return m
}

// WithTitle sets the page title
func (m Marker) WithTitle(title string) Marker {
	m.Title = title
	return m
}

// AsRaw makes a page return its result as HTML
func (m Marker) AsRaw() Marker {
	m.Raw = true
	return m
}

// PathFor resolves the operation-level path segment.
// Precedence: explicit value, then uri alias, then the operation name with
// its first letter lowered.
func (m Marker) PathFor(operation string) string {
	if m.Value != "" {
		return m.Value
	}
	if m.URI != "" {
		return m.URI
	}
	return lowerFirst(operation)
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// JoinPath joins a context path and an operation path with single slashes.
func JoinPath(prefix, path string) string {
	var parts []string
	for _, p := range []string{prefix, path} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	return "/" + strings.Join(parts, "/")
}

var (
	markerParserOnce sync.Once
	markerParser     *annotations.Parser
)

func defaultMarkerParser() *annotations.Parser {
	markerParserOnce.Do(func() {
		kinds := make([]string, 0, len(markerKinds))
		for _, kind := range markerKinds {
			kinds = append(kinds, string(kind))
		}
		markerParser = annotations.NewParser(annotations.NewSchema(kinds...))
	})
	return markerParser
}

// ParseMarker parses annotation text such as
//
//	//rewire::GET /users/{id} -roles=admin
//	//rewire::PAGE -view=dashboard -title="Dashboard"
func ParseMarker(text string) (Marker, error) {
	a, err := defaultMarkerParser().Parse(text, rerrors.SourceLocation{})
	if err != nil {
		return Marker{}, err
	}
	return markerFromAnnotation(a), nil
}

// ParseMarkers parses every marker line of a comment block
func ParseMarkers(text string) ([]Marker, error) {
	parsed, err := defaultMarkerParser().ParseComments(text, "")
	if err != nil {
		return nil, err
	}
	markers := make([]Marker, 0, len(parsed))
	for _, a := range parsed {
		markers = append(markers, markerFromAnnotation(a))
	}
	return markers, nil
}

// MustParseMarkers is ParseMarkers for static component tables; it panics on
// malformed text.
func MustParseMarkers(lines ...string) []Marker {
	markers, err := ParseMarkers(strings.Join(lines, "\n"))
	if err != nil {
		panic(err)
	}
	return markers
}

func markerFromAnnotation(a *annotations.Annotation) Marker {
	return Marker{
		Kind:  MarkerKind(a.Kind),
		Value: a.Path,
		URI:   a.Value("uri"),
		Roles: slices.Clone(a.List("roles")),
		View:  a.Value("view"),
		Title: a.Value("title"),
		Raw:   a.Flag("raw"),
	}
}
