package adapters

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/toyz/rewire/pkg/rewire"
)

// EchoAdapter implements rewire.WebServerInterface for Echo v4
type EchoAdapter struct {
	engine *echo.Echo
}

// NewEchoAdapter creates a new Echo adapter
func NewEchoAdapter(e *echo.Echo) *EchoAdapter {
	return &EchoAdapter{engine: e}
}

// NewDefaultEchoAdapter creates an Echo adapter with recovery and permissive CORS
func NewDefaultEchoAdapter() *EchoAdapter {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover(), middleware.CORS())
	return &EchoAdapter{engine: e}
}

// convertPathToEcho converts a rewire path to Echo path format
func (ea *EchoAdapter) convertPathToEcho(path rewire.Path) string {
	echoPath := ""
	for _, part := range path.Parts() {
		switch part.Type {
		case rewire.StaticPart:
			echoPath += part.Value
		case rewire.ParameterPart:
			echoPath += ":" + part.Value
		case rewire.WildcardPart:
			echoPath += "*"
		}
	}
	return echoPath
}

// RegisterRoute registers a route with the Echo server
func (ea *EchoAdapter) RegisterRoute(method string, path rewire.Path, handler rewire.HandlerFunc, middlewares ...rewire.MiddlewareFunc) {
	echoMiddlewares := make([]echo.MiddlewareFunc, len(middlewares))
	for i, mw := range middlewares {
		echoMiddlewares[i] = ea.convertMiddleware(mw)
	}

	ea.engine.Add(method, ea.convertPathToEcho(path), ea.convertHandler(handler), echoMiddlewares...)
}

// Use adds global middleware
func (ea *EchoAdapter) Use(middleware rewire.MiddlewareFunc) {
	ea.engine.Use(ea.convertMiddleware(middleware))
}

// Start starts the server
func (ea *EchoAdapter) Start(addr string) error {
	err := ea.engine.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the server
func (ea *EchoAdapter) Stop(ctx context.Context) error {
	return ea.engine.Shutdown(ctx)
}

// Name returns the adapter name
func (ea *EchoAdapter) Name() string {
	return "Echo"
}

// ServeHTTP lets the adapter be used as an http.Handler
func (ea *EchoAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ea.engine.ServeHTTP(w, r)
}

// GetEngine returns the underlying Echo instance
func (ea *EchoAdapter) GetEngine() *echo.Echo {
	return ea.engine
}

// convertHandler converts rewire.HandlerFunc to echo.HandlerFunc
func (ea *EchoAdapter) convertHandler(handler rewire.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		return echoError(c, handler(&EchoRequestContext{context: c}))
	}
}

// convertMiddleware converts rewire.MiddlewareFunc to echo.MiddlewareFunc
func (ea *EchoAdapter) convertMiddleware(middleware rewire.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			wrapped := middleware(func(rewire.RequestContext) error {
				return next(c)
			})
			return echoError(c, wrapped(&EchoRequestContext{context: c}))
		}
	}
}

// echoError writes err as a JSON body unless the response is already committed
func echoError(c echo.Context, err error) error {
	if err == nil || c.Response().Committed {
		return nil
	}

	var httpErr *rewire.HTTPError
	if errors.As(err, &httpErr) {
		return c.JSON(httpErr.Code, map[string]interface{}{"error": httpErr.Message})
	}
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
}

// EchoRequestContext implements rewire.RequestContext for Echo
type EchoRequestContext struct {
	context echo.Context
}

// Context returns the request context
func (erc *EchoRequestContext) Context() context.Context {
	return erc.context.Request().Context()
}

// Method returns the HTTP method
func (erc *EchoRequestContext) Method() string {
	return erc.context.Request().Method
}

// Path returns the request path
func (erc *EchoRequestContext) Path() string {
	return erc.context.Request().URL.Path
}

// RealIP returns the real IP address
func (erc *EchoRequestContext) RealIP() string {
	return erc.context.RealIP()
}

// Param returns path parameter by name
func (erc *EchoRequestContext) Param(key string) string {
	return erc.context.Param(key)
}

// SetParam sets path parameter
func (erc *EchoRequestContext) SetParam(name, value string) {
	names := append(erc.context.ParamNames(), name)
	values := append(erc.context.ParamValues(), value)
	erc.context.SetParamNames(names...)
	erc.context.SetParamValues(values...)
}

// QueryParam returns query parameter by name
func (erc *EchoRequestContext) QueryParam(key string) string {
	return erc.context.QueryParam(key)
}

// QueryParams returns all query parameters
func (erc *EchoRequestContext) QueryParams() map[string][]string {
	return erc.context.QueryParams()
}

// Header returns a request header
func (erc *EchoRequestContext) Header(key string) string {
	return erc.context.Request().Header.Get(key)
}

// Response returns the response interface
func (erc *EchoRequestContext) Response() rewire.ResponseInterface {
	return &EchoResponseInterface{context: erc.context}
}

// Bind binds request body to provided struct
func (erc *EchoRequestContext) Bind(i interface{}) error {
	return erc.context.Bind(i)
}

// Get retrieves data from context
func (erc *EchoRequestContext) Get(key string) interface{} {
	return erc.context.Get(key)
}

// Set stores data in context
func (erc *EchoRequestContext) Set(key string, val interface{}) {
	erc.context.Set(key, val)
}

// EchoResponseInterface implements rewire.ResponseInterface for Echo responses
type EchoResponseInterface struct {
	context echo.Context
}

// Status returns the response status code
func (eri *EchoResponseInterface) Status() int {
	return eri.context.Response().Status
}

// SetHeader sets a response header
func (eri *EchoResponseInterface) SetHeader(key, value string) {
	eri.context.Response().Header().Set(key, value)
}

// JSON writes a JSON response
func (eri *EchoResponseInterface) JSON(code int, i interface{}) error {
	return eri.context.JSON(code, i)
}

// String writes a string response
func (eri *EchoResponseInterface) String(code int, s string) error {
	return eri.context.String(code, s)
}

// HTML writes an HTML response
func (eri *EchoResponseInterface) HTML(code int, html string) error {
	return eri.context.HTML(code, html)
}

// Written returns whether the response has been committed
func (eri *EchoResponseInterface) Written() bool {
	return eri.context.Response().Committed
}
