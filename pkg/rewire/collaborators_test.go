package rewire

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	rerrors "github.com/toyz/rewire/internal/errors"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestJWTAuthenticator(t *testing.T) {
	secret := []byte("s3cret")
	auth := &JWTAuthenticator{Secret: secret}

	tests := []struct {
		name    string
		header  string
		roles   []string
		wantErr bool
	}{
		{"list claim", "Bearer " + signToken(t, secret, jwt.MapClaims{"roles": []string{"admin", "ops"}}), []string{"admin", "ops"}, false},
		{"string claim", "Bearer " + signToken(t, secret, jwt.MapClaims{"roles": "admin,ops"}), []string{"admin", "ops"}, false},
		{"no roles", "Bearer " + signToken(t, secret, jwt.MapClaims{"sub": "ada"}), nil, false},
		{"wrong secret", "Bearer " + signToken(t, []byte("other"), jwt.MapClaims{"roles": "admin"}), nil, true},
		{"missing header", "", nil, true},
		{"not bearer", "Basic YWRhOnB3", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles, err := auth.Roles(newRequest("GET", "/").withHeader("Authorization", tt.header))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.roles, roles)
		})
	}
}

func TestSecurity_RolesAllowed(t *testing.T) {
	s := NewSecurity(nil)
	roles := s.RolesAllowed(OperationInfo{
		ClassRoles: []string{"ops", " admin "},
		Marker:     GET().WithRoles("admin", "", "auditor"),
	})
	assert.Equal(t, []string{"admin", "auditor", "ops"}, roles)
	assert.Empty(t, s.RolesAllowed(OperationInfo{Marker: GET()}))
}

func TestSecurity_AuthorizeWithJWT(t *testing.T) {
	secret := []byte("s3cret")
	s := NewSecurity(&JWTAuthenticator{Secret: secret})

	req := newRequest("GET", "/").withHeader("Authorization", "Bearer "+signToken(t, secret, jwt.MapClaims{"roles": "viewer"}))
	assert.NoError(t, s.Authorize(req, nil))
	assert.NoError(t, s.Authorize(req, []string{"viewer", "admin"}))

	err := s.Authorize(req, []string{"admin"})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)

	err = s.Authorize(newRequest("GET", "/"), []string{"admin"})
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestConfig_FileEnvAndOverrides(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rewire.yaml")
	require.NoError(t, os.WriteFile(file, []byte("app:\n  title: From file\n  port: 8080\n"), 0o644))
	t.Setenv("REWIRE_APP_MODE", "dev")

	c := NewConfig(file, zaptest.NewLogger(t))
	assert.Equal(t, "From file", c.Str("app.title"))
	assert.Equal(t, 8080, c.Int("app.port"))
	assert.Equal(t, "dev", c.Str("app.mode"))

	_, ok := c.Lookup("app.missing")
	assert.False(t, ok)

	c.Set("app.title", "Override")
	c.Set("app.debug", "true")
	assert.Equal(t, "Override", c.Str("app.title"))
	assert.True(t, c.Bool("app.debug"))

	c.Reset()
	assert.Equal(t, "From file", c.Str("app.title"))
}

func TestConfig_MissingFileIsNotFatal(t *testing.T) {
	c := NewConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Empty(t, c.Str("app.title"))
}

func TestConfig_WatchNotifiesOnFileChange(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rewire.yaml")
	require.NoError(t, os.WriteFile(file, []byte("greeting: hello\n"), 0o644))

	// the watch goroutine may still log while the test ends, so not through t
	c := NewConfig(file, nil)
	t.Cleanup(func() { _ = c.Close() })
	var changes atomic.Int32
	c.OnChange(func() { changes.Add(1) })
	c.Watch()
	c.Watch()

	require.NoError(t, os.WriteFile(file, []byte("greeting: hi\n"), 0o644))
	assert.Eventually(t, func() bool {
		return changes.Load() > 0 && c.Str("greeting") == "hi"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestConfig_WatchSurvivesReset(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rewire.yaml")
	require.NoError(t, os.WriteFile(file, []byte("greeting: hello\n"), 0o644))

	c := NewConfig(file, nil)
	t.Cleanup(func() { _ = c.Close() })
	c.Watch()

	before := runtime.NumGoroutine()
	for range 20 {
		c.Reset()
		c.Watch()
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+1, "restarts must not start more watchers")

	var changes atomic.Int32
	c.OnChange(func() { changes.Add(1) })
	c.Set("override", "kept")
	require.NoError(t, os.WriteFile(file, []byte("greeting: hi\n"), 0o644))
	assert.Eventually(t, func() bool {
		return changes.Load() > 0 && c.Str("greeting") == "hi"
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "kept", c.Str("override"))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestRenderer(t *testing.T) {
	fsys := fstest.MapFS{
		"users.html":  {Data: []byte(`<ul>{{range .Model}}<li>{{.}}</li>{{end}}</ul>`)},
		"broken.html": {Data: []byte(`{{if}}`)},
	}
	r := NewRenderer(NewResources(fsys))

	html, err := r.Render("users", ViewModel{Model: []string{"ada", "<script>"}})
	require.NoError(t, err)
	assert.Equal(t, "<ul><li>ada</li><li>&lt;script&gt;</li></ul>", html)
	assert.Equal(t, 1, r.Cached())

	html, err = r.Render("missing", ViewModel{Title: "T", Model: "m"})
	require.NoError(t, err)
	assert.Contains(t, html, "<title>T</title>")

	_, err = r.Render("broken", ViewModel{})
	assert.Error(t, err)

	r.Reset()
	assert.Zero(t, r.Cached())
}

func TestResources_CacheFollowsModTime(t *testing.T) {
	fsys := fstest.MapFS{"a.txt": {Data: []byte("one"), ModTime: time.Unix(1, 0)}}
	res := NewResources(fsys)

	data, err := res.Load("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	assert.Equal(t, 1, res.Cached())

	fsys["a.txt"] = &fstest.MapFile{Data: []byte("two"), ModTime: time.Unix(2, 0)}
	data, err = res.Load("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	_, err = res.Load("none.txt")
	assert.Error(t, err)

	res.Reset()
	assert.Zero(t, res.Cached())
}

func TestResources_RemovedFileLeavesCache(t *testing.T) {
	fsys := fstest.MapFS{"a.txt": {Data: []byte("one"), ModTime: time.Unix(1, 0)}}
	res := NewResources(fsys)

	_, err := res.Load("a.txt")
	require.NoError(t, err)
	require.Equal(t, 1, res.Cached())

	delete(fsys, "a.txt")
	_, err = res.Load("a.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Zero(t, res.Cached())
}

func TestJobs(t *testing.T) {
	jobs := NewJobs(zaptest.NewLogger(t))

	_, err := jobs.Schedule("@every 1h", func() {})
	require.NoError(t, err)
	_, err = jobs.Schedule("not a spec", func() {})
	assert.Error(t, err)
	assert.Equal(t, 1, jobs.Len())

	jobs.Initialize()
	jobs.Initialize()
	assert.True(t, jobs.Started())

	jobs.Reset()
	assert.False(t, jobs.Started())
	assert.Zero(t, jobs.Len())
}

type initCounter struct {
	inits int
}

func (c *initCounter) Init() error {
	c.inits++
	return nil
}

func TestContainer(t *testing.T) {
	c := NewContainer()

	first, err := c.Singleton(TypeOf[initCounter]())
	require.NoError(t, err)
	second, err := c.Singleton(TypeOf[*initCounter]())
	require.NoError(t, err)
	assert.Same(t, first.Interface(), second.Interface())
	assert.Equal(t, 1, first.Interface().(*initCounter).inits)

	_, err = c.Singleton(TypeFor(reflect.TypeOf(0)))
	assert.True(t, rerrors.HasCode(err, rerrors.ConfigurationErrorCode))

	provided := &usersController{}
	c.Provide(provided)
	v, err := c.Singleton(TypeOf[usersController]())
	require.NoError(t, err)
	assert.Same(t, provided, v.Interface())

	c.Manage(provided)
	c.ManageTypes(TypeOf[adminController]())
	assert.Len(t, c.ManagedInstances(), 1)
	assert.Len(t, c.ManagedTypes(), 1)

	c.Reset()
	assert.Empty(t, c.ManagedInstances())
	assert.Empty(t, c.ManagedTypes())
}

func sampleEntry(ctx context.Context, args []string) error { return nil }

func TestEntryPoints(t *testing.T) {
	entries := NewEntryPoints()
	v0 := entries.Version()

	name := entries.Register(sampleEntry)
	assert.Equal(t, "github.com/toyz/rewire/pkg/rewire.sampleEntry", name)
	assert.Greater(t, entries.Version(), v0)

	_, ok := entries.Load(name)
	assert.True(t, ok)

	entries.Remove(name)
	_, ok = entries.Load(name)
	assert.False(t, ok)
	assert.Empty(t, FuncName(nil))
}

func TestPackageOf(t *testing.T) {
	tests := map[string]string{
		"main.main":                             "main",
		"example.com/app.main":                  "example.com/app",
		"example.com/app/api.(*Users).List":     "example.com/app/api",
		"example.com/app/api.Handler.func1":     "example.com/app/api",
		"github.com/toyz/rewire/pkg/rewire.New": "github.com/toyz/rewire/pkg/rewire",
	}
	for function, expected := range tests {
		assert.Equal(t, expected, packageOf(function), function)
	}
}

func TestStackInspector_SkipsFrameworkAndRuntime(t *testing.T) {
	assert.True(t, isFrameworkPackage("github.com/toyz/rewire/pkg/rewire"))
	assert.True(t, isFrameworkPackage("github.com/toyz/rewire/pkg/rewire/adapters"))
	assert.True(t, isFrameworkPackage("runtime"))
	assert.True(t, isFrameworkPackage("testing"))
	assert.False(t, isFrameworkPackage("github.com/toyz/rewire/internal/demo"))
	assert.False(t, isFrameworkPackage("main"))

	// every frame of an in-package test belongs to the framework or the toolchain
	_, ok := NewStackInspector().Caller()
	assert.False(t, ok)
}

func TestServerConfig(t *testing.T) {
	t.Setenv("REWIRE_SERVER_PORT", "9090")
	t.Setenv("REWIRE_SERVER_ADAPTER", "echo")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "echo", cfg.Adapter)
	assert.Equal(t, ":9090", cfg.Addr())
}

func TestServerConfig_InvalidValue(t *testing.T) {
	t.Setenv("REWIRE_SERVER_PORT", "abc")

	_, err := LoadServerConfig()
	require.Error(t, err)
	assert.True(t, rerrors.HasCode(err, rerrors.ConfigurationErrorCode))
	assert.Contains(t, err.Error(), "failed to load configuration 'server'")
}
