package adapters

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/toyz/rewire/pkg/rewire"
)

// GinAdapter implements rewire.WebServerInterface for Gin framework
type GinAdapter struct {
	engine *gin.Engine

	mu     sync.Mutex
	server *http.Server
}

// NewGinAdapter creates a new Gin adapter
func NewGinAdapter(g *gin.Engine) *GinAdapter {
	return &GinAdapter{engine: g}
}

// NewDefaultGinAdapter creates a Gin adapter with recovery and permissive CORS
func NewDefaultGinAdapter() *GinAdapter {
	engine := gin.New()
	engine.Use(gin.Recovery(), cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    rewire.HTTPVerbs(),
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))
	return &GinAdapter{engine: engine}
}

// convertPathToGin converts a rewire path to Gin path format
func (ga *GinAdapter) convertPathToGin(path rewire.Path) string {
	ginPath := ""
	for _, part := range path.Parts() {
		if part.Value == "" || part.Value == "/" {
			continue
		}

		switch part.Type {
		case rewire.StaticPart:
			ginPath += part.Value
		case rewire.ParameterPart:
			ginPath += ":" + part.Value
		case rewire.WildcardPart:
			ginPath = strings.TrimSuffix(ginPath, "/") + "/*path"
		}
	}
	if ginPath == "" {
		return "/"
	}
	return ginPath
}

// RegisterRoute registers a route with the Gin server
func (ga *GinAdapter) RegisterRoute(method string, path rewire.Path, handler rewire.HandlerFunc, middlewares ...rewire.MiddlewareFunc) {
	var handlers []gin.HandlerFunc
	for _, middleware := range middlewares {
		handlers = append(handlers, ga.convertMiddleware(middleware))
	}
	handlers = append(handlers, ga.convertHandler(handler))

	ga.engine.Handle(method, ga.convertPathToGin(path), handlers...)
}

// Use registers a global middleware with the Gin server
func (ga *GinAdapter) Use(middleware rewire.MiddlewareFunc) {
	ga.engine.Use(ga.convertMiddleware(middleware))
}

// Start serves the engine on addr until Stop is called
func (ga *GinAdapter) Start(addr string) error {
	server := &http.Server{Addr: addr, Handler: ga.engine}

	ga.mu.Lock()
	ga.server = server
	ga.mu.Unlock()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down
func (ga *GinAdapter) Stop(ctx context.Context) error {
	ga.mu.Lock()
	server := ga.server
	ga.server = nil
	ga.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Name returns the adapter name
func (ga *GinAdapter) Name() string {
	return "Gin"
}

// ServeHTTP lets the adapter be used as an http.Handler
func (ga *GinAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ga.engine.ServeHTTP(w, r)
}

// GetEngine returns the underlying Gin engine
func (ga *GinAdapter) GetEngine() *gin.Engine {
	return ga.engine
}

// convertHandler converts rewire.HandlerFunc to gin.HandlerFunc
func (ga *GinAdapter) convertHandler(handler rewire.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := handler(&GinRequestContext{ctx: c}); err != nil && !c.Writer.Written() {
			var httpErr *rewire.HTTPError
			if errors.As(err, &httpErr) {
				c.JSON(httpErr.Code, gin.H{"error": httpErr.Message})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
		}
	}
}

// convertMiddleware converts rewire.MiddlewareFunc to gin.HandlerFunc
func (ga *GinAdapter) convertMiddleware(middleware rewire.MiddlewareFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		next := func(rewire.RequestContext) error {
			c.Next()
			return nil
		}

		if err := middleware(next)(&GinRequestContext{ctx: c}); err != nil {
			var httpErr *rewire.HTTPError
			if errors.As(err, &httpErr) {
				c.AbortWithStatusJSON(httpErr.Code, gin.H{"error": httpErr.Message})
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
		}
	}
}

// GinRequestContext implements rewire.RequestContext for Gin
type GinRequestContext struct {
	ctx *gin.Context
}

// Context returns the request context
func (grc *GinRequestContext) Context() context.Context {
	return grc.ctx.Request.Context()
}

// Method returns the HTTP method
func (grc *GinRequestContext) Method() string {
	return grc.ctx.Request.Method
}

// Path returns the request path
func (grc *GinRequestContext) Path() string {
	return grc.ctx.Request.URL.Path
}

// RealIP returns the real IP address
func (grc *GinRequestContext) RealIP() string {
	return grc.ctx.ClientIP()
}

// Param returns a path parameter
func (grc *GinRequestContext) Param(name string) string {
	if value, ok := grc.ctx.Params.Get(name); ok {
		return value
	}
	if name == "*" {
		return grc.ctx.Param("path")
	}
	return ""
}

// SetParam sets a parameter value
func (grc *GinRequestContext) SetParam(name, value string) {
	grc.ctx.Params = append(grc.ctx.Params, gin.Param{Key: name, Value: value})
}

// QueryParam returns a query parameter
func (grc *GinRequestContext) QueryParam(name string) string {
	return grc.ctx.Query(name)
}

// QueryParams returns all query parameters
func (grc *GinRequestContext) QueryParams() map[string][]string {
	return grc.ctx.Request.URL.Query()
}

// Header returns a request header
func (grc *GinRequestContext) Header(key string) string {
	return grc.ctx.GetHeader(key)
}

// Response returns the response interface
func (grc *GinRequestContext) Response() rewire.ResponseInterface {
	return &GinResponseInterface{ctx: grc.ctx}
}

// Bind binds request body to a struct
func (grc *GinRequestContext) Bind(i interface{}) error {
	return grc.ctx.ShouldBindJSON(i)
}

// Get returns a value from context
func (grc *GinRequestContext) Get(key string) interface{} {
	value, _ := grc.ctx.Get(key)
	return value
}

// Set sets a value in context
func (grc *GinRequestContext) Set(key string, val interface{}) {
	grc.ctx.Set(key, val)
}

// GinResponseInterface implements rewire.ResponseInterface for Gin
type GinResponseInterface struct {
	ctx *gin.Context
}

// Status returns the response status code
func (gri *GinResponseInterface) Status() int {
	return gri.ctx.Writer.Status()
}

// SetHeader sets a response header
func (gri *GinResponseInterface) SetHeader(key, value string) {
	gri.ctx.Header(key, value)
}

// JSON writes a JSON response
func (gri *GinResponseInterface) JSON(code int, i interface{}) error {
	gri.ctx.JSON(code, i)
	return nil
}

// String writes a string response
func (gri *GinResponseInterface) String(code int, s string) error {
	gri.ctx.String(code, s)
	return nil
}

// HTML writes an HTML response
func (gri *GinResponseInterface) HTML(code int, html string) error {
	gri.ctx.Data(code, "text/html; charset=utf-8", []byte(html))
	return nil
}

// Written returns whether the response has been written
func (gri *GinResponseInterface) Written() bool {
	return gri.ctx.Writer.Written()
}
