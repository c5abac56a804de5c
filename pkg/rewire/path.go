package rewire

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// PathPartType represents the type of path part
type PathPartType int

const (
	StaticPart PathPartType = iota
	ParameterPart
	WildcardPart
)

// PathPart represents a single part of a route path
type PathPart struct {
	Type      PathPartType
	Value     string // literal text for static parts, parameter name otherwise
	ParamType string // "int", "uuid" or empty for untyped parameters
}

// Path is a route path pattern such as /users/{id:int} or /assets/{*}
type Path string

// Raw returns the original path pattern
func (p Path) Raw() string {
	return string(p)
}

// Parts parses the pattern into static, parameter and wildcard parts
func (p Path) Parts() []PathPart {
	path := string(p)
	var parts []PathPart

	i := 0
	for i < len(path) {
		if path[i] == '{' {
			j := i + 1
			for j < len(path) && path[j] != '}' {
				j++
			}
			if j < len(path) {
				content := path[i+1 : j]
				if content == "*" {
					parts = append(parts, PathPart{Type: WildcardPart, Value: "*"})
				} else {
					name, paramType, _ := strings.Cut(content, ":")
					parts = append(parts, PathPart{Type: ParameterPart, Value: name, ParamType: paramType})
				}
				i = j + 1
			} else {
				// unterminated brace, treat as static
				parts = append(parts, PathPart{Type: StaticPart, Value: string(path[i])})
				i++
			}
		} else {
			start := i
			for i < len(path) && path[i] != '{' {
				i++
			}
			parts = append(parts, PathPart{Type: StaticPart, Value: path[start:i]})
		}
	}

	return parts
}

// IsPattern reports whether the path contains parameters or a wildcard
func (p Path) IsPattern() bool {
	return strings.Contains(string(p), "{")
}

// Match matches a request path against the pattern. It returns the captured
// parameters and a specificity score: static segments outrank parameters,
// which outrank a wildcard tail.
func (p Path) Match(actual string) (map[string]string, int, bool) {
	pattern := splitSegments(string(p))
	segments := splitSegments(actual)
	params := make(map[string]string)
	score := 0

	for i, seg := range pattern {
		if seg == "{*}" {
			params["*"] = strings.Join(segments[min(i, len(segments)):], "/")
			return params, score, true
		}
		if i >= len(segments) {
			return nil, 0, false
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name, paramType, _ := strings.Cut(seg[1:len(seg)-1], ":")
			if !validParam(paramType, segments[i]) {
				return nil, 0, false
			}
			params[name] = segments[i]
			score += 2
			continue
		}
		if seg != segments[i] {
			return nil, 0, false
		}
		score += 3
	}

	if len(segments) != len(pattern) {
		return nil, 0, false
	}
	return params, score + 1, true
}

func validParam(paramType, value string) bool {
	switch paramType {
	case "int":
		_, err := strconv.Atoi(value)
		return err == nil
	case "uuid", "uuid.UUID":
		_, err := uuid.Parse(value)
		return err == nil
	default:
		return value != ""
	}
}

func splitSegments(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
