package rewire

import (
	"context"
	"fmt"
	"net/http"
)

// WebServerInterface defines the contract for web server implementations.
// A setup mounts a single catch-all dispatcher on it, so route changes never
// touch the engine's own router.
type WebServerInterface interface {
	RegisterRoute(method string, path Path, handler HandlerFunc, middlewares ...MiddlewareFunc)
	Use(middleware MiddlewareFunc)

	Start(addr string) error
	Stop(ctx context.Context) error

	Name() string
}

// RequestContext provides a framework-agnostic view of a request
type RequestContext interface {
	Context() context.Context

	Method() string
	Path() string
	RealIP() string

	Param(key string) string
	SetParam(name, value string)

	QueryParam(key string) string
	QueryParams() map[string][]string

	Header(key string) string
	Response() ResponseInterface

	Bind(i interface{}) error

	Get(key string) interface{}
	Set(key string, val interface{})
}

// ResponseInterface provides response writing capabilities
type ResponseInterface interface {
	Status() int
	SetHeader(key, value string)

	JSON(code int, i interface{}) error
	String(code int, s string) error
	HTML(code int, html string) error

	Written() bool
}

// HandlerFunc is the adapter-level handler signature
type HandlerFunc func(RequestContext) error

// MiddlewareFunc wraps a HandlerFunc
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// HTTPError represents an HTTP error with status code and message
type HTTPError struct {
	Code     int         `json:"code"`
	Message  interface{} `json:"message"`
	Internal error       `json:"-"`
}

// Error makes HTTPError implement the error interface
func (he *HTTPError) Error() string {
	if he.Internal != nil {
		return he.Internal.Error()
	}
	return fmt.Sprint(he.Message)
}

// Unwrap returns the internal error
func (he *HTTPError) Unwrap() error {
	return he.Internal
}

// NewHTTPError creates a new HTTPError instance
func NewHTTPError(code int, message ...interface{}) *HTTPError {
	he := &HTTPError{Code: code}
	if len(message) > 0 {
		he.Message = message[0]
	} else {
		he.Message = http.StatusText(code)
	}
	if len(message) > 1 {
		if err, ok := message[1].(error); ok {
			he.Internal = err
		}
	}
	return he
}

// ErrBadRequest creates a 400 Bad Request error
func ErrBadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message)
}

// ErrUnauthorized creates a 401 Unauthorized error
func ErrUnauthorized(message string) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, message)
}

// ErrForbidden creates a 403 Forbidden error
func ErrForbidden(message string) *HTTPError {
	return NewHTTPError(http.StatusForbidden, message)
}

// ErrNotFound creates a 404 Not Found error
func ErrNotFound(message string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, message)
}

// ErrInternalServerError creates a 500 Internal Server Error
func ErrInternalServerError(message string) *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, message)
}

// ErrServiceUnavailable creates a 503 Service Unavailable error
func ErrServiceUnavailable(message string) *HTTPError {
	return NewHTTPError(http.StatusServiceUnavailable, message)
}
