package rewire

import (
	"context"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// EntryFunc is an application entry point. It is invoked with the original
// process arguments on start and on every restart, and must not block:
// long-running servers are started in their own goroutines.
//
// During a restart the entry point runs while in-flight requests are held
// off, so it must not dispatch a request and wait for the response.
type EntryFunc func(ctx context.Context, args []string) error

// EntryLoader resolves an entry point by name
type EntryLoader interface {
	Load(name string) (EntryFunc, bool)
}

// LoaderFactory builds the loader used by one restart
type LoaderFactory func() EntryLoader

// EntryPoints is a versioned handle table of entry points
type EntryPoints struct {
	mu      sync.RWMutex
	fns     map[string]EntryFunc
	version uint64
}

// NewEntryPoints creates an empty table
func NewEntryPoints() *EntryPoints {
	return &EntryPoints{fns: make(map[string]EntryFunc)}
}

// Register adds fn under its qualified function name and returns the name
func (e *EntryPoints) Register(fn EntryFunc) string {
	name := FuncName(fn)
	e.RegisterNamed(name, fn)
	return name
}

// RegisterNamed adds or replaces fn under name
func (e *EntryPoints) RegisterNamed(name string, fn EntryFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fns[name] = fn
	e.version++
}

// Remove drops the entry point under name
func (e *EntryPoints) Remove(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.fns[name]; ok {
		delete(e.fns, name)
		e.version++
	}
}

// Load returns the entry point registered under name
func (e *EntryPoints) Load(name string) (EntryFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.fns[name]
	return fn, ok
}

// Version changes whenever the table changes
func (e *EntryPoints) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// FuncName returns the qualified name of a function value
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}

// Frame is a caller found by stack inspection
type Frame struct {
	Package  string
	Function string
}

// CallerInspector finds the first caller outside the framework
type CallerInspector interface {
	Caller() (Frame, bool)
}

// CallerInspectorFunc adapts a function to CallerInspector
type CallerInspectorFunc func() (Frame, bool)

// Caller calls f
func (f CallerInspectorFunc) Caller() (Frame, bool) {
	return f()
}

var frameworkPackage = reflect.TypeOf(Frame{}).PkgPath()

var ignoredPackages = []string{"runtime", "testing", "reflect"}

type stackInspector struct{}

// NewStackInspector returns an inspector walking the goroutine's call stack
func NewStackInspector() CallerInspector {
	return stackInspector{}
}

func (stackInspector) Caller() (Frame, bool) {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		f, more := frames.Next()
		pkg := packageOf(f.Function)
		if !isFrameworkPackage(pkg) {
			return Frame{Package: pkg, Function: f.Function}, true
		}
		if !more {
			return Frame{}, false
		}
	}
}

func isFrameworkPackage(pkg string) bool {
	if pkg == "" || pkg == frameworkPackage || strings.HasPrefix(pkg, frameworkPackage+"/") {
		return true
	}
	for _, ignored := range ignoredPackages {
		if pkg == ignored || strings.HasPrefix(pkg, ignored+"/") {
			return true
		}
	}
	return false
}

// packageOf extracts the package path from a qualified function name such
// as example.com/app/api.(*Users).List
func packageOf(function string) string {
	slash := strings.LastIndex(function, "/")
	dot := strings.Index(function[slash+1:], ".")
	if dot < 0 {
		return function
	}
	return function[:slash+1+dot]
}
