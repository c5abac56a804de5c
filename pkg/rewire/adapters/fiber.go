package adapters

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/toyz/rewire/pkg/rewire"
)

// FiberAdapter wraps a Fiber app to implement rewire.WebServerInterface
type FiberAdapter struct {
	app *fiber.App
}

// NewFiberAdapter creates a new Fiber adapter instance
func NewFiberAdapter() *FiberAdapter {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	return &FiberAdapter{app: app}
}

// NewDefaultFiberAdapter creates a new Fiber adapter with panic recovery
func NewDefaultFiberAdapter() *FiberAdapter {
	adapter := NewFiberAdapter()
	adapter.app.Use(recover.New())
	return adapter
}

// convertPathToFiber converts a rewire path to Fiber path format
func (fa *FiberAdapter) convertPathToFiber(path rewire.Path) string {
	fiberPath := ""
	for _, part := range path.Parts() {
		if part.Value == "" || part.Value == "/" {
			continue
		}

		switch part.Type {
		case rewire.StaticPart:
			fiberPath += part.Value
		case rewire.ParameterPart:
			fiberPath += ":" + part.Value
		case rewire.WildcardPart:
			fiberPath = strings.TrimSuffix(fiberPath, "/") + "/*"
		}
	}
	if fiberPath == "" {
		return "/"
	}
	return fiberPath
}

// RegisterRoute registers a route with the Fiber app
func (fa *FiberAdapter) RegisterRoute(method string, path rewire.Path, handler rewire.HandlerFunc, middlewares ...rewire.MiddlewareFunc) {
	var handlers []fiber.Handler
	for _, mw := range middlewares {
		handlers = append(handlers, convertMiddlewareToFiber(mw))
	}
	handlers = append(handlers, convertHandlerToFiber(handler))

	fa.app.Add(strings.ToUpper(method), fa.convertPathToFiber(path), handlers...)
}

// Use adds middleware to the Fiber app
func (fa *FiberAdapter) Use(middleware rewire.MiddlewareFunc) {
	fa.app.Use(convertMiddlewareToFiber(middleware))
}

// Start starts the Fiber server
func (fa *FiberAdapter) Start(addr string) error {
	return fa.app.Listen(addr)
}

// Stop stops the Fiber server
func (fa *FiberAdapter) Stop(ctx context.Context) error {
	return fa.app.ShutdownWithContext(ctx)
}

// Name returns the adapter name
func (fa *FiberAdapter) Name() string {
	return "Fiber"
}

// GetApp returns the underlying Fiber app
func (fa *FiberAdapter) GetApp() *fiber.App {
	return fa.app
}

func convertHandlerToFiber(handler rewire.HandlerFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := newFiberRequestContext(c)
		return fiberError(ctx, handler(ctx))
	}
}

func convertMiddlewareToFiber(middleware rewire.MiddlewareFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := newFiberRequestContext(c)
		err := middleware(func(rewire.RequestContext) error {
			return c.Next()
		})(ctx)
		return fiberError(ctx, err)
	}
}

func fiberError(ctx *FiberRequestContext, err error) error {
	if err == nil || ctx.response.written {
		return nil
	}

	var httpErr *rewire.HTTPError
	if errors.As(err, &httpErr) {
		return ctx.ctx.Status(httpErr.Code).JSON(fiber.Map{"error": httpErr.Message})
	}
	return ctx.ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

// FiberRequestContext wraps fiber.Ctx to implement rewire.RequestContext.
// Fiber cannot add route params after matching, so they live in an overlay.
type FiberRequestContext struct {
	ctx      *fiber.Ctx
	params   map[string]string
	response *FiberResponse
}

func newFiberRequestContext(c *fiber.Ctx) *FiberRequestContext {
	return &FiberRequestContext{ctx: c, response: &FiberResponse{ctx: c}}
}

func (frc *FiberRequestContext) Context() context.Context {
	return frc.ctx.UserContext()
}

func (frc *FiberRequestContext) Method() string {
	return frc.ctx.Method()
}

func (frc *FiberRequestContext) Path() string {
	return frc.ctx.Path()
}

func (frc *FiberRequestContext) RealIP() string {
	return frc.ctx.IP()
}

func (frc *FiberRequestContext) Param(name string) string {
	if value, ok := frc.params[name]; ok {
		return value
	}
	return frc.ctx.Params(name)
}

func (frc *FiberRequestContext) SetParam(name, value string) {
	if frc.params == nil {
		frc.params = make(map[string]string)
	}
	frc.params[name] = value
}

func (frc *FiberRequestContext) QueryParam(key string) string {
	return frc.ctx.Query(key)
}

func (frc *FiberRequestContext) QueryParams() map[string][]string {
	result := make(map[string][]string)
	frc.ctx.Request().URI().QueryArgs().VisitAll(func(key, value []byte) {
		result[string(key)] = append(result[string(key)], string(value))
	})
	return result
}

func (frc *FiberRequestContext) Header(key string) string {
	return frc.ctx.Get(key)
}

func (frc *FiberRequestContext) Response() rewire.ResponseInterface {
	return frc.response
}

func (frc *FiberRequestContext) Bind(obj interface{}) error {
	return frc.ctx.BodyParser(obj)
}

func (frc *FiberRequestContext) Get(key string) interface{} {
	return frc.ctx.Locals(key)
}

func (frc *FiberRequestContext) Set(key string, val interface{}) {
	frc.ctx.Locals(key, val)
}

// FiberResponse implements rewire.ResponseInterface on top of fiber.Ctx
type FiberResponse struct {
	ctx     *fiber.Ctx
	written bool
}

func (fr *FiberResponse) Status() int {
	return fr.ctx.Response().StatusCode()
}

func (fr *FiberResponse) SetHeader(name, value string) {
	fr.ctx.Set(name, value)
}

func (fr *FiberResponse) JSON(code int, data interface{}) error {
	fr.written = true
	return fr.ctx.Status(code).JSON(data)
}

func (fr *FiberResponse) String(code int, s string) error {
	fr.written = true
	return fr.ctx.Status(code).SendString(s)
}

func (fr *FiberResponse) HTML(code int, html string) error {
	fr.written = true
	fr.ctx.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return fr.ctx.Status(code).SendString(html)
}

// Written reports whether a body was sent through this response
func (fr *FiberResponse) Written() bool {
	return fr.written
}
