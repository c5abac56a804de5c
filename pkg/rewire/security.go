package rewire

import (
	"reflect"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// OperationInfo describes an operation for role resolution
type OperationInfo struct {
	Component  reflect.Type
	Operation  string
	ClassRoles []string
	Marker     Marker
}

// Authenticator extracts the caller's roles from a request. An error means
// the caller could not be authenticated.
type Authenticator interface {
	Roles(req RequestContext) ([]string, error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(req RequestContext) ([]string, error)

// Roles calls f
func (f AuthenticatorFunc) Roles(req RequestContext) ([]string, error) {
	return f(req)
}

// Security is the security collaborator: it resolves the roles an operation
// requires and checks them against the caller.
type Security struct {
	authenticator Authenticator
}

// NewSecurity creates a security collaborator. A nil authenticator rejects
// every request to a restricted route.
func NewSecurity(authenticator Authenticator) *Security {
	return &Security{authenticator: authenticator}
}

// SetAuthenticator replaces the authenticator
func (s *Security) SetAuthenticator(authenticator Authenticator) {
	s.authenticator = authenticator
}

// RolesAllowed returns the union of component and marker roles, sorted.
// An empty result means the operation is unrestricted.
func (s *Security) RolesAllowed(info OperationInfo) []string {
	var roles []string
	for _, role := range slices.Concat(info.ClassRoles, info.Marker.Roles) {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	slices.Sort(roles)
	return slices.Compact(roles)
}

// Authorize checks that the caller holds at least one of the required roles
func (s *Security) Authorize(req RequestContext, required []string) error {
	if len(required) == 0 {
		return nil
	}
	if s.authenticator == nil {
		return ErrForbidden("access denied")
	}

	roles, err := s.authenticator.Roles(req)
	if err != nil {
		return NewHTTPError(401, "authentication required", err)
	}
	for _, role := range roles {
		if slices.Contains(required, role) {
			return nil
		}
	}
	return ErrForbidden("access denied")
}

// JWTAuthenticator reads roles from an HMAC signed bearer token
type JWTAuthenticator struct {
	Secret []byte
	// Claim holding the roles, "roles" by default
	Claim string
}

// Roles parses the Authorization header and returns the roles claim
func (a *JWTAuthenticator) Roles(req RequestContext) ([]string, error) {
	header := req.Header("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(tokenString) == "" {
		return nil, jwt.ErrTokenMalformed
	}

	token, err := jwt.Parse(strings.TrimSpace(tokenString), func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	claim := a.Claim
	if claim == "" {
		claim = "roles"
	}

	switch v := claims[claim].(type) {
	case string:
		return strings.Split(v, ","), nil
	case []interface{}:
		roles := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles, nil
	default:
		return nil, nil
	}
}
