package rewire

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"sync"

	"go.uber.org/zap"

	rerrors "github.com/toyz/rewire/internal/errors"
)

// Module is an ordered subsystem participant. Lower orders run first.
type Module interface {
	Name() string
	Order() int
	BeforeTest(ctx context.Context, integration bool) error
	AfterTest(ctx context.Context, integration bool) error
}

// DefaultsInitializer is implemented by modules that restore defaults after a
// restart or a full runtime reset.
type DefaultsInitializer interface {
	InitDefaults(ctx context.Context) error
}

type moduleEntry struct {
	module Module
	seq    int
}

// ModuleRegistry holds the registered modules. Registration is additive only.
type ModuleRegistry struct {
	mu      sync.RWMutex
	entries []moduleEntry
	nextSeq int
	logger  *zap.Logger
}

// NewModuleRegistry creates an empty registry
func NewModuleRegistry(logger *zap.Logger) *ModuleRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModuleRegistry{logger: logger.Named("modules")}
}

// Register adds m unless the same module is already registered.
func (r *ModuleRegistry) Register(m Module) error {
	if m == nil {
		return rerrors.RegistrationError("module", "<nil>", "module must not be nil")
	}
	if !reflect.TypeOf(m).Comparable() {
		return rerrors.RegistrationError("module", m.Name(), "module identity must be comparable, register a pointer").
			WithSuggestion(fmt.Sprintf("pass &%s{} instead of a value", reflect.TypeOf(m).Name()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.module == m {
			return nil
		}
	}
	r.entries = append(r.entries, moduleEntry{module: m, seq: r.nextSeq})
	r.nextSeq++
	return nil
}

// List returns the modules ordered by order, ties by registration sequence
func (r *ModuleRegistry) List() []Module {
	r.mu.RLock()
	entries := slices.Clone(r.entries)
	r.mu.RUnlock()

	slices.SortStableFunc(entries, func(a, b moduleEntry) int {
		return cmp.Or(
			cmp.Compare(a.module.Order(), b.module.Order()),
			cmp.Compare(a.seq, b.seq),
		)
	})

	modules := make([]Module, len(entries))
	for i, e := range entries {
		modules[i] = e.module
	}
	return modules
}

// All returns an ordered sequence of the modules. Every iteration takes a
// fresh snapshot, so the sequence can be ranged over repeatedly.
func (r *ModuleRegistry) All() iter.Seq[Module] {
	return func(yield func(Module) bool) {
		for _, m := range r.List() {
			if !yield(m) {
				return
			}
		}
	}
}

// Len returns the number of registered modules
func (r *ModuleRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// RunBefore invokes every module's before-test hook in order and stops at the
// first failure.
func (r *ModuleRegistry) RunBefore(ctx context.Context, integration bool) error {
	for m := range r.All() {
		r.logger.Info("Running module before-test hook",
			zap.String("module", m.Name()),
			zap.Int("order", m.Order()),
			zap.Bool("integration", integration))

		if err := m.BeforeTest(ctx, integration); err != nil {
			return fmt.Errorf("module %s (order %d) before-test hook: %w", m.Name(), m.Order(), err)
		}
	}
	return nil
}

// RunAfter invokes every module's after-test hook in order and stops at the
// first failure.
func (r *ModuleRegistry) RunAfter(ctx context.Context, integration bool) error {
	for m := range r.All() {
		if err := m.AfterTest(ctx, integration); err != nil {
			return fmt.Errorf("module %s (order %d) after-test hook: %w", m.Name(), m.Order(), err)
		}
	}
	return nil
}

// InitDefaults runs InitDefaults on every module that implements it
func (r *ModuleRegistry) InitDefaults(ctx context.Context) error {
	for m := range r.All() {
		di, ok := m.(DefaultsInitializer)
		if !ok {
			continue
		}
		if err := di.InitDefaults(ctx); err != nil {
			return fmt.Errorf("module %s defaults: %w", m.Name(), err)
		}
	}
	return nil
}
