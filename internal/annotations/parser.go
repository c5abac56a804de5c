package annotations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	rerrors "github.com/toyz/rewire/internal/errors"
)

// Prefix introduces a marker in a comment line, e.g. //rewire::GET /users
const Prefix = "rewire::"

// markerAST is the grammar for a single marker line
type markerAST struct {
	Pos    lexer.Position
	Kind   string      `parser:"Prefix @Ident"`
	Path   *string     `parser:"@Path?"`
	Params []*paramAST `parser:"@@*"`
}

// paramAST is a named parameter or flag: -roles=admin,ops or -raw
type paramAST struct {
	Pos    lexer.Position
	Key    string   `parser:"Dash @Ident"`
	Values []string `parser:"( Equals @(String | Path | Ident | Number) ( Comma @(String | Path | Ident | Number) )* )?"`
}

var markerLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Prefix", Pattern: `(//\s*)?rewire::`},
	{Name: "String", Pattern: `"(\\"|[^"])*"`},
	{Name: "Path", Pattern: `/[^\s]*`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.]*`},
	{Name: "Number", Pattern: `[0-9]+`},
	{Name: "Dash", Pattern: `-`},
	{Name: "Equals", Pattern: `=`},
	{Name: "Comma", Pattern: `,`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// Annotation is a parsed marker
type Annotation struct {
	Kind     string
	Path     string
	Params   map[string][]string
	Location rerrors.SourceLocation
	Raw      string
}

// Value returns the first value of a parameter
func (a *Annotation) Value(name string) string {
	if values := a.Params[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// List returns every value of a parameter
func (a *Annotation) List(name string) []string {
	return a.Params[name]
}

// Flag reports whether a boolean parameter is set
func (a *Annotation) Flag(name string) bool {
	values, ok := a.Params[name]
	if !ok {
		return false
	}
	return len(values) == 0 || values[0] == "true"
}

// Parser parses marker text using participle
type Parser struct {
	parser *participle.Parser[markerAST]
	schema *Schema
}

// NewParser creates a parser validating against schema. A nil schema accepts
// every kind and only the built-in route parameters.
func NewParser(schema *Schema) *Parser {
	if schema == nil {
		schema = NewSchema()
	}
	return &Parser{
		parser: participle.MustBuild[markerAST](
			participle.Lexer(markerLexer),
			participle.Elide("Whitespace"),
			participle.Unquote("String"),
			participle.UseLookahead(2),
		),
		schema: schema,
	}
}

// IsMarker reports whether a comment line carries a marker
func IsMarker(line string) bool {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))
	return strings.HasPrefix(trimmed, Prefix)
}

// Parse parses a single marker line
func (p *Parser) Parse(text string, loc rerrors.SourceLocation) (*Annotation, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, rerrors.SyntaxError("empty marker", loc)
	}

	ast, err := p.parser.ParseString(loc.File, raw)
	if err != nil {
		return nil, p.syntaxError(err, loc)
	}

	annotation := &Annotation{
		Kind:     strings.ToUpper(ast.Kind),
		Params:   make(map[string][]string),
		Location: loc,
		Raw:      raw,
	}
	if ast.Path != nil {
		annotation.Path = *ast.Path
	}

	if len(p.schema.Kinds()) > 0 && !p.schema.HasKind(annotation.Kind) {
		return nil, rerrors.SyntaxError(fmt.Sprintf("unknown marker kind '%s'", ast.Kind), loc).
			WithSuggestion(fmt.Sprintf("use one of: %s", strings.Join(p.schema.Kinds(), ", ")))
	}

	for _, param := range ast.Params {
		spec, ok := p.schema.Parameter(param.Key)
		if !ok {
			return nil, rerrors.SyntaxError(fmt.Sprintf("unknown parameter '-%s'", param.Key), loc).
				WithSuggestion(fmt.Sprintf("supported parameters: %s", strings.Join(p.schema.ParameterNames(), ", ")))
		}
		if err := checkValues(spec, param.Values); err != nil {
			return nil, rerrors.SyntaxError(err.Error(), loc)
		}
		annotation.Params[param.Key] = append(annotation.Params[param.Key], param.Values...)
	}

	return annotation, nil
}

// ParseComments parses every marker line of a comment block, skipping other lines.
func (p *Parser) ParseComments(text, file string) ([]*Annotation, error) {
	var result []*Annotation
	for i, line := range strings.Split(text, "\n") {
		if !IsMarker(line) {
			continue
		}
		annotation, err := p.Parse(line, rerrors.SourceLocation{File: file, Line: i + 1})
		if err != nil {
			return nil, err
		}
		result = append(result, annotation)
	}
	return result, nil
}

func checkValues(spec ParameterSpec, values []string) error {
	switch spec.Type {
	case BoolType:
		if len(values) > 1 || (len(values) == 1 && values[0] != "true" && values[0] != "false") {
			return fmt.Errorf("parameter '-%s' is a flag and takes no value or true/false", spec.Name)
		}
	case StringType:
		if len(values) != 1 {
			return fmt.Errorf("parameter '-%s' expects exactly one value", spec.Name)
		}
	case ListType:
		if len(values) == 0 {
			return fmt.Errorf("parameter '-%s' expects at least one value", spec.Name)
		}
	}
	return nil
}

func (p *Parser) syntaxError(err error, loc rerrors.SourceLocation) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		pos := perr.Position()
		if pos.Column > 0 {
			loc.Column = pos.Column
		}
		return rerrors.SyntaxError(perr.Message(), loc).
			WithSuggestion("markers look like //rewire::GET /path -roles=admin")
	}
	return rerrors.Wrap(rerrors.SyntaxErrorCode, "failed to parse marker", err).WithLocation(loc)
}
