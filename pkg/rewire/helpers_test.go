package rewire

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/toyz/rewire/internal/scan"
)

type fakeResponse struct {
	status  int
	headers map[string]string
	body    string
	written bool
}

func (r *fakeResponse) Status() int { return r.status }

func (r *fakeResponse) SetHeader(key, value string) {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
}

func (r *fakeResponse) JSON(code int, i interface{}) error {
	data, err := json.Marshal(i)
	if err != nil {
		return err
	}
	r.SetHeader("Content-Type", "application/json")
	return r.write(code, string(data))
}

func (r *fakeResponse) String(code int, s string) error {
	r.SetHeader("Content-Type", "text/plain")
	return r.write(code, s)
}

func (r *fakeResponse) HTML(code int, html string) error {
	r.SetHeader("Content-Type", "text/html")
	return r.write(code, html)
}

func (r *fakeResponse) write(code int, body string) error {
	r.status, r.body, r.written = code, body, true
	return nil
}

func (r *fakeResponse) Written() bool { return r.written }

type fakeRequest struct {
	method  string
	path    string
	params  map[string]string
	query   map[string][]string
	headers map[string]string
	store   map[string]interface{}
	res     *fakeResponse
}

func newRequest(method, path string) *fakeRequest {
	return &fakeRequest{
		method:  method,
		path:    path,
		params:  make(map[string]string),
		query:   make(map[string][]string),
		headers: make(map[string]string),
		store:   make(map[string]interface{}),
		res:     &fakeResponse{},
	}
}

func (r *fakeRequest) withHeader(key, value string) *fakeRequest {
	r.headers[key] = value
	return r
}

func (r *fakeRequest) Context() context.Context         { return context.Background() }
func (r *fakeRequest) Method() string                   { return r.method }
func (r *fakeRequest) Path() string                     { return r.path }
func (r *fakeRequest) RealIP() string                   { return "127.0.0.1" }
func (r *fakeRequest) Param(key string) string          { return r.params[key] }
func (r *fakeRequest) SetParam(name, value string)      { r.params[name] = value }
func (r *fakeRequest) QueryParams() map[string][]string { return r.query }
func (r *fakeRequest) Header(key string) string         { return r.headers[key] }
func (r *fakeRequest) Response() ResponseInterface      { return r.res }
func (r *fakeRequest) Bind(i interface{}) error         { return nil }
func (r *fakeRequest) Get(key string) interface{}       { return r.store[key] }
func (r *fakeRequest) Set(key string, val interface{})  { r.store[key] = val }

func (r *fakeRequest) QueryParam(key string) string {
	if values := r.query[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// usersController declares four routes under /api plus two entries that
// must be skipped: an operation without a method and a framework method.
type usersController struct {
	Base
	listed atomic.Int32
}

func (*usersController) Controller() ControllerSpec {
	return ControllerSpec{
		Paths: []string{"/api"},
		Operations: Operations{
			"List":          {GET()},
			"Create":        {POST("/users").WithRoles("admin")},
			"Show":          {GET("/users/{id:int}")},
			"Home":          {Page("/home").WithTitle("Home").WithView("home")},
			"Missing":       {GET("/missing")},
			"ComponentName": {GET("/name")},
		},
	}
}

func (u *usersController) List(req RequestContext) (any, error) {
	u.listed.Add(1)
	return []string{"ada", "linus"}, nil
}

func (u *usersController) Create(req RequestContext) (any, error) {
	return map[string]string{"created": "ok"}, nil
}

func (u *usersController) Show(req RequestContext) (any, error) {
	return map[string]string{"id": req.Param("id")}, nil
}

func (u *usersController) Home() (any, error) {
	return "welcome", nil
}

type adminController struct{}

func (adminController) Controller() ControllerSpec {
	return ControllerSpec{
		Paths: []string{"/admin", "/ops"},
		Roles: []string{"operator"},
		Operations: Operations{
			"Stats": {GET().WithRoles("admin")},
			"Raw":   {Page().AsRaw()},
		},
	}
}

func (a *adminController) Stats(req RequestContext) (any, error) {
	return map[string]int{"requests": 1}, nil
}

func (a *adminController) Raw(req RequestContext) (any, error) {
	return "<b>raw</b>", nil
}

type plainStruct struct{}

type countingInspector struct {
	calls atomic.Int32
	frame Frame
	found bool
}

func (c *countingInspector) Caller() (Frame, bool) {
	c.calls.Add(1)
	return c.frame, c.found
}

type testRuntime struct {
	*Runtime
	registry *prometheus.Registry
}

func newTestRuntime(t *testing.T, opts ...Option) *testRuntime {
	t.Helper()
	registry := prometheus.NewRegistry()
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithMetricsRegisterer(registry),
		WithCatalog(scan.NewCatalog()),
		WithEntryPoints(NewEntryPoints()),
		WithCallerInspector(&countingInspector{}),
		WithResources(fstest.MapFS{
			"home.html": {Data: []byte(`<h1>{{.Title}}</h1><p>{{.Model}}</p>`)},
		}),
	}
	return &testRuntime{Runtime: New(append(base, opts...)...), registry: registry}
}

func routeKeys(routes []Route) []string {
	keys := make([]string, len(routes))
	for i, r := range routes {
		keys[i] = r.Key().String()
	}
	return keys
}
