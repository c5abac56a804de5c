package rewire

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	rerrors "github.com/toyz/rewire/internal/errors"
)

// ErrHelp is returned by Args when the reserved help argument is present
var ErrHelp = errors.New("rewire: help requested")

// HelpText describes the arguments Args understands
const HelpText = `Arguments:
  help                 print this help
  profiles=a,b         activate profiles (test marks a test environment)
  app.path=pkg1,pkg2   packages scanned for components
  key=value            override a configuration key`

// Epoch identifies one run of the application between restarts
type Epoch struct {
	ID  string
	Seq uint64
}

// App is the bootstrap controller. It tracks the application identity (entry
// point, package, scan path), runs the Args, Scan and Register phases and
// owns the restart state.
type App struct {
	rt            *Runtime
	logger        *zap.Logger
	inspector     CallerInspector
	loaderFactory LoaderFactory

	mu          sync.Mutex
	path        []string
	mainName    string
	appPkg      string
	restarted   bool
	managed     bool
	fixture     bool
	degraded    bool
	restartErr  error
	args        []string
	inferred    bool
	inspections int
	hooksRan    bool
	invoked     map[string]bool
	epoch       Epoch
	subscribed  bool
	subscribeAt uint64

	dirty     atomic.Bool
	restartMu sync.Mutex

	listenersMu sync.Mutex
	listeners   []RestartListener
}

func newApp(rt *Runtime, inspector CallerInspector, loaderFactory LoaderFactory) *App {
	a := &App{
		rt:            rt,
		logger:        rt.logger.Named("app"),
		inspector:     inspector,
		loaderFactory: loaderFactory,
		invoked:       make(map[string]bool),
	}
	a.beginEpoch()
	return a
}

// beginEpoch must be called with mu held or before the app is shared
func (a *App) beginEpoch() {
	a.epoch = Epoch{ID: uuid.NewString(), Seq: a.epoch.Seq + 1}
	a.hooksRan = false
	a.inferred = false
	clear(a.invoked)
}

// Epoch returns the current epoch
func (a *App) Epoch() Epoch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epoch
}

// Args applies process arguments: profiles=a,b activates profiles and
// key=value overrides configuration.
func (a *App) Args(args ...string) error {
	a.mu.Lock()
	a.args = slices.Clone(args)
	a.mu.Unlock()
	a.rt.env.SetArgs(args)

	if slices.Contains(args, "help") {
		return ErrHelp
	}

	overrides := make([][2]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return rerrors.ConfigurationErrorf("invalid argument %q", arg).
				WithSuggestion("arguments have the form key=value, run with help for details")
		}
		if key == "profiles" {
			a.rt.env.SetProfiles(splitList(value)...)
			a.rt.config.Reset()
			continue
		}
		overrides = append(overrides, [2]string{key, value})
	}

	for _, kv := range overrides {
		a.rt.config.Set(kv[0], kv[1])
	}
	return nil
}

// Path returns the packages scanned for components. Unless set explicitly,
// it is the application package inferred from the caller.
func (a *App) Path() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.path == nil {
		a.inferCallers()
		if a.appPkg != "" {
			return []string{a.appPkg}
		}
		return []string{}
	}
	return slices.Clone(a.path)
}

// SetPath sets the scanned packages explicitly
func (a *App) SetPath(pkgs ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.path = slices.Clone(pkgs)
}

// inferCallers inspects the stack at most once per epoch and never after a
// restart or when the application identity is already known. mu must be held.
func (a *App) inferCallers() {
	if a.restarted || a.inferred || a.appPkg != "" || a.mainName != "" {
		return
	}
	a.inferred = true
	a.inspections++

	frame, ok := a.inspector.Caller()
	if !ok {
		return
	}
	a.appPkg = frame.Package
	a.mainName = frame.Function
	a.logger.Debug("Inferred application identity",
		zap.String("package", a.appPkg),
		zap.String("main", a.mainName))
}

// Inspections returns how many stack inspections inferred the caller
func (a *App) Inspections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inspections
}

// SetMain records the entry point name used by restarts
func (a *App) SetMain(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mainName = name
	if a.appPkg == "" {
		a.appPkg = packageOf(name)
	}
}

// Main returns the entry point name
func (a *App) Main() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mainName
}

// Package returns the application package
func (a *App) Package() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.appPkg
}

// SetManaged marks the application as managed by a container, which
// disables scanning.
func (a *App) SetManaged(managed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.managed = managed
}

// IsManaged reports whether scanning is disabled
func (a *App) IsManaged() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.managed
}

// IsRestarted reports whether the application restarted at least once
func (a *App) IsRestarted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restarted
}

// IsDegraded reports whether the last restart could not find the entry point
func (a *App) IsDegraded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.degraded
}

// Run registers entry as the application entry point and invokes it with
// args. Restarts invoke it again with the same args.
func (a *App) Run(ctx context.Context, entry EntryFunc, args ...string) error {
	if entry == nil {
		return rerrors.ConfigurationError("entry point must not be nil")
	}
	name := a.rt.entries.Register(entry)

	a.mu.Lock()
	a.mainName = name
	if a.appPkg == "" {
		a.appPkg = packageOf(name)
	}
	a.args = slices.Clone(args)
	a.mu.Unlock()

	_, err := a.invoke(ctx, name, entry, args)
	return err
}

// Invoke runs the named entry point unless it already ran in this epoch
func (a *App) Invoke(ctx context.Context, name string) (bool, error) {
	entry, ok := a.loader().Load(name)
	if !ok {
		return false, rerrors.LookupMiss("entry point", name)
	}
	a.mu.Lock()
	args := slices.Clone(a.args)
	a.mu.Unlock()
	return a.invoke(ctx, name, entry, args)
}

func (a *App) invoke(ctx context.Context, name string, entry EntryFunc, args []string) (bool, error) {
	a.mu.Lock()
	if a.invoked[name] {
		a.mu.Unlock()
		return false, nil
	}
	a.invoked[name] = true
	a.mu.Unlock()

	return true, entry(ctx, slices.Clone(args))
}

// Invoked returns the entry points invoked in this epoch
func (a *App) Invoked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.invoked))
	for name := range a.invoked {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (a *App) loader() EntryLoader {
	if a.loaderFactory != nil {
		if l := a.loaderFactory(); l != nil {
			return l
		}
	}
	return a.rt.entries
}

// Bootstrap runs the Args phase, scans and registers components unless the
// application is managed, and boots the collaborators.
func (a *App) Bootstrap(ctx context.Context, args ...string) error {
	if err := a.Args(args...); err != nil {
		return err
	}
	if !a.IsManaged() {
		if err := a.Beans(ctx, a.Scan()...); err != nil {
			return err
		}
	}
	return a.Boot(ctx)
}

// Scan returns the registered components of the given packages. Without
// packages the application path is used; the app.path configuration key
// overrides both.
func (a *App) Scan(pkgs ...string) []any {
	if len(pkgs) > 0 {
		a.SetPath(pkgs...)
	}

	path := a.Path()
	if configured, ok := a.rt.config.Lookup("app.path"); ok && strings.TrimSpace(configured) != "" {
		path = splitList(configured)
	}

	beans := a.FindBeans(path...)
	a.logger.Debug("Scanned components", zap.Strings("path", path), zap.Int("found", len(beans)))
	return beans
}

// FindBeans returns the catalog entries under the given package prefixes
func (a *App) FindBeans(pkgs ...string) []any {
	return a.rt.catalog.Find(pkgs...)
}

// Beans registers components on the default setup. When a test fixture
// drives the application under the test profile, the module before-test
// hooks run first, once per epoch. The hooks clean up routes and state, but
// the application identity recorded by Run survives them.
func (a *App) Beans(ctx context.Context, beans ...any) error {
	if a.rt.env.IsTest() && a.InFixture() {
		id := a.identity()
		err := a.RunTestHooks(ctx, false)
		a.restoreIdentity(id)
		if err != nil {
			return err
		}
	}
	return a.rt.DefaultSetup().Beans(beans...)
}

// SetFixture marks the application as driven by a test fixture. It stays
// set until the fixture clears it or the runtime is reset.
func (a *App) SetFixture(fixture bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fixture = fixture
}

// InFixture reports whether a test fixture drives the application
func (a *App) InFixture() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fixture
}

// appIdentity is the part of the app state that restarts depend on
type appIdentity struct {
	mainName  string
	appPkg    string
	path      []string
	args      []string
	invoked   map[string]bool
	restarted bool
	managed   bool
	inferred  bool
}

func (a *App) identity() appIdentity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return appIdentity{
		mainName:  a.mainName,
		appPkg:    a.appPkg,
		path:      slices.Clone(a.path),
		args:      slices.Clone(a.args),
		invoked:   maps.Clone(a.invoked),
		restarted: a.restarted,
		managed:   a.managed,
		inferred:  a.inferred,
	}
}

func (a *App) restoreIdentity(id appIdentity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mainName = id.mainName
	a.appPkg = id.appPkg
	a.path = id.path
	a.args = id.args
	clear(a.invoked)
	maps.Copy(a.invoked, id.invoked)
	a.restarted = id.restarted
	a.managed = id.managed
	a.inferred = id.inferred
}

// RunTestHooks runs the module before-test hooks unless they already ran in
// this epoch.
func (a *App) RunTestHooks(ctx context.Context, integration bool) error {
	a.mu.Lock()
	if a.hooksRan {
		a.mu.Unlock()
		return nil
	}
	a.hooksRan = true
	a.mu.Unlock()

	return a.rt.modules.RunBefore(ctx, integration)
}

// Boot starts scheduled jobs and subscribes to configuration changes
func (a *App) Boot(ctx context.Context) error {
	a.rt.jobs.Initialize()

	gen := a.rt.config.currentGeneration()
	a.mu.Lock()
	subscribe := !a.subscribed || a.subscribeAt != gen
	a.subscribed, a.subscribeAt = true, gen
	a.mu.Unlock()

	if subscribe {
		a.rt.config.OnChange(a.NotifyChanges)
		a.rt.config.Watch()
	}
	return nil
}

// ResetGlobalState forgets the application identity and per-epoch state
func (a *App) ResetGlobalState() {
	a.mu.Lock()
	a.mainName = ""
	a.appPkg = ""
	a.restarted = false
	a.managed = false
	a.degraded = false
	a.restartErr = nil
	a.path = nil
	a.args = nil
	a.inferred = false
	clear(a.invoked)
	a.mu.Unlock()

	a.dirty.Store(false)
}

// resetEpoch starts a fresh epoch after a full runtime reset
func (a *App) resetEpoch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beginEpoch()
	a.subscribed = false
	a.fixture = false
}

func splitList(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
