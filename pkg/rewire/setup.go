package rewire

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"

	"go.uber.org/zap"

	rerrors "github.com/toyz/rewire/internal/errors"
)

// Setup is one routable server instance with its own route table.
type Setup struct {
	rt     *Runtime
	name   string
	routes *RouteTable
	logger *zap.Logger

	mu     sync.Mutex
	beans  []any
	server WebServerInterface
}

func newSetup(rt *Runtime, name string) *Setup {
	s := &Setup{
		rt:     rt,
		name:   name,
		routes: NewRouteTable(),
		logger: rt.logger.Named("setup").With(zap.String("setup", name)),
	}
	s.routes.observe = func(action string) {
		rt.metrics.RouteMutations.WithLabelValues(name, action).Inc()
	}
	return s
}

// Name returns the setup name
func (s *Setup) Name() string {
	return s.name
}

// Routes returns the route table
func (s *Setup) Routes() *RouteTable {
	return s.routes
}

// GET starts a GET route
func (s *Setup) GET(path string) *RouteBuilder { return s.route("GET", path, ResponseData) }

// POST starts a POST route
func (s *Setup) POST(path string) *RouteBuilder { return s.route("POST", path, ResponseData) }

// PUT starts a PUT route
func (s *Setup) PUT(path string) *RouteBuilder { return s.route("PUT", path, ResponseData) }

// DELETE starts a DELETE route
func (s *Setup) DELETE(path string) *RouteBuilder { return s.route("DELETE", path, ResponseData) }

// PATCH starts a PATCH route
func (s *Setup) PATCH(path string) *RouteBuilder { return s.route("PATCH", path, ResponseData) }

// OPTIONS starts an OPTIONS route
func (s *Setup) OPTIONS(path string) *RouteBuilder { return s.route("OPTIONS", path, ResponseData) }

// HEAD starts a HEAD route
func (s *Setup) HEAD(path string) *RouteBuilder { return s.route("HEAD", path, ResponseData) }

// TRACE starts a TRACE route
func (s *Setup) TRACE(path string) *RouteBuilder { return s.route("TRACE", path, ResponseData) }

// Page starts a rendered page route served for both GET and POST
func (s *Setup) Page(path string) *RouteBuilder {
	return s.route(VerbGetOrPost, path, ResponseView)
}

func (s *Setup) route(verb, path string, response ResponseKind) *RouteBuilder {
	return &RouteBuilder{
		setup: s,
		route: Route{Verb: verb, Path: JoinPath(path, ""), Response: response},
	}
}

// Deregister removes the route under (verb, path); absent routes are ignored.
// VerbGetOrPost removes a page route.
func (s *Setup) Deregister(verb, path string) {
	s.routes.Remove(verb, JoinPath(path, ""))
}

// Beans registers the routes declared by the given components
func (s *Setup) Beans(beans ...any) error {
	if err := s.rt.reconciler.Apply(s, beans, true); err != nil {
		return err
	}
	s.mu.Lock()
	s.beans = append(s.beans, beans...)
	s.mu.Unlock()
	return nil
}

// Unbeans deregisters the routes declared by the given components
func (s *Setup) Unbeans(beans ...any) error {
	if err := s.rt.reconciler.Apply(s, beans, false); err != nil {
		return err
	}
	s.mu.Lock()
	s.beans = slices.DeleteFunc(s.beans, func(b any) bool {
		return slices.ContainsFunc(beans, func(other any) bool { return sameBean(b, other) })
	})
	s.mu.Unlock()
	return nil
}

// BeanCount returns how many beans are installed
func (s *Setup) BeanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.beans)
}

// ResetRoutes drops every route, failing if the table is not empty afterwards
func (s *Setup) ResetRoutes() error {
	return s.routes.Reset()
}

// Reload drops every route and installed bean. The listener stays mounted.
func (s *Setup) Reload() error {
	s.mu.Lock()
	s.beans = nil
	s.mu.Unlock()
	return s.ResetRoutes()
}

// Mount installs the dispatcher on server without starting it. Mounting the
// same server again is a no-op, so entry points can rerun after a restart.
func (s *Setup) Mount(server WebServerInterface) error {
	_, err := s.mount(server)
	return err
}

func (s *Setup) mount(server WebServerInterface) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		if s.server == server {
			return false, nil
		}
		return false, rerrors.ConfigurationErrorf("setup %s is already mounted on %s", s.name, s.server.Name())
	}
	s.server = server
	for _, verb := range HTTPVerbs() {
		server.RegisterRoute(verb, Path("/{*}"), s.Dispatch)
	}
	return true, nil
}

// Listen mounts the dispatcher on server and starts it in the background
func (s *Setup) Listen(server WebServerInterface, addr string) error {
	fresh, err := s.mount(server)
	if err != nil || !fresh {
		return err
	}

	s.logger.Info("Starting server", zap.String("adapter", server.Name()), zap.String("addr", addr))
	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the server the setup is mounted on, or nil
func (s *Setup) Server() WebServerInterface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

// Shutdown stops the server the setup is mounted on
func (s *Setup) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	s.logger.Info("Stopping server", zap.String("adapter", server.Name()))
	return server.Stop(ctx)
}

func (s *Setup) registerMarker(m Marker, path string, handler Handler, roles []string, component, operation string) {
	d, ok := LookupMarker(m.Kind)
	if !ok {
		return
	}
	s.routes.Put(Route{
		Verb:      d.Token,
		Path:      path,
		Handler:   handler,
		Response:  d.Response,
		Roles:     roles,
		View:      m.View,
		Title:     m.Title,
		Raw:       m.Raw,
		Component: component,
		Operation: operation,
	})
}

func (s *Setup) deregisterMarker(m Marker, path string) {
	if d, ok := LookupMarker(m.Kind); ok {
		s.routes.Remove(d.Token, path)
	}
}

func sameBean(a, b any) bool {
	defer func() { _ = recover() }()
	return a == b
}

// RouteBuilder configures a route before its handler is attached
type RouteBuilder struct {
	setup *Setup
	route Route
}

// Roles restricts the route to callers holding one of roles
func (b *RouteBuilder) Roles(roles ...string) *RouteBuilder {
	b.route.Roles = append(b.route.Roles, roles...)
	return b
}

// View sets the view a page renders
func (b *RouteBuilder) View(name string) *RouteBuilder {
	b.route.View = name
	return b
}

// Title sets the page title
func (b *RouteBuilder) Title(title string) *RouteBuilder {
	b.route.Title = title
	return b
}

// Handle registers h with the builder's default response kind
func (b *RouteBuilder) Handle(h Handler) {
	b.route.Handler = h
	b.setup.routes.Put(b.route)
}

// JSON registers h and serializes its result
func (b *RouteBuilder) JSON(h Handler) {
	b.route.Response = ResponseData
	b.Handle(h)
}

// Render registers h and renders its result through the view
func (b *RouteBuilder) Render(h Handler) {
	b.route.Response = ResponseView
	b.Handle(h)
}

// HTML registers h and serves its result as raw HTML
func (b *RouteBuilder) HTML(h Handler) {
	b.route.Response = ResponseView
	b.route.Raw = true
	b.Handle(h)
}
