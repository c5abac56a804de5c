package rewire

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	rerrors "github.com/toyz/rewire/internal/errors"
	"github.com/toyz/rewire/internal/scan"
)

// DefaultSetupName is the name of the setup discovered components are installed on
const DefaultSetupName = "default"

// Resettable is a cache cleared on every restart
type Resettable interface {
	Reset()
}

type options struct {
	logger        *zap.Logger
	registerer    prometheus.Registerer
	configFile    string
	introspector  Introspector
	inspector     CallerInspector
	authenticator Authenticator
	resources     fs.FS
	catalog       *scan.Catalog
	entries       *EntryPoints
	loaderFactory LoaderFactory
}

// Option configures a Runtime
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetricsRegisterer registers the runtime metrics with reg
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithConfigFile reads configuration from file
func WithConfigFile(file string) Option {
	return func(o *options) { o.configFile = file }
}

// WithIntrospector replaces the reflection based introspector
func WithIntrospector(i Introspector) Option {
	return func(o *options) { o.introspector = i }
}

// WithCallerInspector replaces the stack based caller inspection
func WithCallerInspector(i CallerInspector) Option {
	return func(o *options) { o.inspector = i }
}

// WithAuthenticator sets the authenticator used for role checks
func WithAuthenticator(a Authenticator) Option {
	return func(o *options) { o.authenticator = a }
}

// WithResources sets the file system views and resources are loaded from
func WithResources(fsys fs.FS) Option {
	return func(o *options) { o.resources = fsys }
}

// WithCatalog replaces the process-wide component catalog
func WithCatalog(c *scan.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithEntryPoints replaces the process-wide entry point table
func WithEntryPoints(e *EntryPoints) Option {
	return func(o *options) { o.entries = e }
}

// WithLoaderFactory sets how a fresh entry loader is built for each restart
func WithLoaderFactory(f LoaderFactory) Option {
	return func(o *options) { o.loaderFactory = f }
}

// Runtime is the process-wide context object. It owns every registry and
// collaborator and is passed by reference to the components that need them.
type Runtime struct {
	logger     *zap.Logger
	config     *Config
	env        *Env
	container  *Container
	security   *Security
	resources  *Resources
	renderer   *Renderer
	jobs       *Jobs
	metrics    *Metrics
	modules    *ModuleRegistry
	catalog    *scan.Catalog
	entries    *EntryPoints
	reconciler *Reconciler
	app        *App

	setupsMu sync.RWMutex
	setups   []*Setup

	// gate is held for reading by every dispatched request and for writing
	// by a restart, which therefore waits for in-flight requests to finish.
	gate sync.RWMutex

	cachesMu sync.Mutex
	caches   map[string]Resettable
}

var (
	components  = scan.NewCatalog()
	entryPoints = NewEntryPoints()

	defaultRuntime atomic.Pointer[Runtime]
)

// Component registers component values or types with the process-wide
// catalog. Call it from init functions; Scan finds them by package.
func Component(values ...any) {
	components.Add(values...)
}

// Entry registers an entry point with the process-wide entry point table
func Entry(fn EntryFunc) string {
	return entryPoints.Register(fn)
}

// Default returns the process-wide runtime, creating it on first use
func Default() *Runtime {
	if rt := defaultRuntime.Load(); rt != nil {
		return rt
	}
	defaultRuntime.CompareAndSwap(nil, New())
	return defaultRuntime.Load()
}

// SetDefault replaces the process-wide runtime. Entry points reach the
// runtime through Default, so a command configures it before running one.
func SetDefault(rt *Runtime) {
	defaultRuntime.Store(rt)
}

// New creates a runtime. The built-in HTTP module is registered.
func New(opts ...Option) *Runtime {
	o := &options{
		logger:  zap.NewNop(),
		catalog: components,
		entries: entryPoints,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.introspector == nil {
		o.introspector = NewIntrospector()
	}
	if o.inspector == nil {
		o.inspector = NewStackInspector()
	}

	rt := &Runtime{
		logger:    o.logger,
		config:    NewConfig(o.configFile, o.logger),
		env:       NewEnv(),
		container: NewContainer(),
		security:  NewSecurity(o.authenticator),
		resources: NewResources(o.resources),
		jobs:      NewJobs(o.logger),
		metrics:   NewMetrics(o.registerer),
		modules:   NewModuleRegistry(o.logger),
		catalog:   o.catalog,
		entries:   o.entries,
		caches:    make(map[string]Resettable),
	}
	if o.resources == nil {
		rt.resources = NewDirResources("templates")
	}
	rt.renderer = NewRenderer(rt.resources)
	rt.reconciler = newReconciler(rt, o.introspector)
	rt.app = newApp(rt, o.inspector, o.loaderFactory)

	// the HTTP module is a pointer, registration cannot fail
	_ = rt.modules.Register(&HTTPModule{rt: rt})

	return rt
}

// Logger returns the runtime's root logger
func (rt *Runtime) Logger() *zap.Logger { return rt.logger }

// Config returns the layered configuration
func (rt *Runtime) Config() *Config { return rt.config }

// Env returns the active profiles and launch mode
func (rt *Runtime) Env() *Env { return rt.env }

// Container returns the singleton container that materializes type beans
func (rt *Runtime) Container() *Container { return rt.container }

// Security returns the role resolver
func (rt *Runtime) Security() *Security { return rt.security }

// Resources returns the resource loader views are read from
func (rt *Runtime) Resources() *Resources { return rt.resources }

// Renderer returns the page renderer
func (rt *Runtime) Renderer() *Renderer { return rt.renderer }

// Jobs returns the scheduler
func (rt *Runtime) Jobs() *Jobs { return rt.jobs }

// Metrics returns the runtime's prometheus collectors
func (rt *Runtime) Metrics() *Metrics { return rt.metrics }

// Modules returns the module registry
func (rt *Runtime) Modules() *ModuleRegistry { return rt.modules }

// Catalog returns the descriptor catalog
func (rt *Runtime) Catalog() *scan.Catalog { return rt.catalog }

// EntryPoints returns the entry points known by name
func (rt *Runtime) EntryPoints() *EntryPoints { return rt.entries }

// Reconciler returns the reconciler that turns components into routes
func (rt *Runtime) Reconciler() *Reconciler { return rt.reconciler }

// App returns the application lifecycle
func (rt *Runtime) App() *App { return rt.app }

// Epoch returns the current application epoch
func (rt *Runtime) Epoch() Epoch { return rt.app.Epoch() }

// Setup returns the named setup, creating it on first use
func (rt *Runtime) Setup(name string) *Setup {
	rt.setupsMu.Lock()
	defer rt.setupsMu.Unlock()

	for _, s := range rt.setups {
		if s.name == name {
			return s
		}
	}
	s := newSetup(rt, name)
	rt.setups = append(rt.setups, s)
	return s
}

// DefaultSetup returns the setup discovered components are installed on
func (rt *Runtime) DefaultSetup() *Setup {
	return rt.Setup(DefaultSetupName)
}

// Setups returns every setup in creation order
func (rt *Runtime) Setups() []*Setup {
	rt.setupsMu.RLock()
	defer rt.setupsMu.RUnlock()
	return append([]*Setup(nil), rt.setups...)
}

// RegisterCache adds a cache cleared on every restart and full reset
func (rt *Runtime) RegisterCache(name string, cache Resettable) {
	rt.cachesMu.Lock()
	defer rt.cachesMu.Unlock()
	rt.caches[name] = cache
}

func (rt *Runtime) resetCaches() {
	rt.cachesMu.Lock()
	caches := make([]Resettable, 0, len(rt.caches))
	for _, c := range rt.caches {
		caches = append(caches, c)
	}
	rt.cachesMu.Unlock()

	for _, c := range caches {
		c.Reset()
	}
}

// Init runs module default initialization
func (rt *Runtime) Init(ctx context.Context) error {
	return rt.modules.InitDefaults(ctx)
}

// ResetAll returns the runtime to its initial state between test cases:
// application state, routes, configuration, environment, container, caches
// and jobs. Registered modules, components and entry points stay.
func (rt *Runtime) ResetAll(ctx context.Context) error {
	rt.app.ResetGlobalState()
	rt.app.resetEpoch()
	rt.config.Reset()
	rt.env.Reset()
	rt.container.Reset()
	rt.resources.Reset()
	rt.renderer.Reset()
	rt.resetCaches()
	rt.jobs.Reset()
	rt.catalog.Reset()

	errs := rerrors.NewMultipleErrors()
	for _, s := range rt.Setups() {
		if err := s.Reload(); err != nil {
			errs.Add(fmt.Errorf("setup %s: %w", s.Name(), err))
		}
	}
	errs.Add(rt.Init(ctx))
	return errs.ErrorOrNil()
}

// ShutdownAll stops every listening setup concurrently
func (rt *Runtime) ShutdownAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range rt.Setups() {
		g.Go(func() error {
			return s.Shutdown(ctx)
		})
	}
	return g.Wait()
}
