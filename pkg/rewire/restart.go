package rewire

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	rerrors "github.com/toyz/rewire/internal/errors"
)

// RestartListener is notified around every restart. Failures are logged and
// never abort the restart or reach other listeners. Both hooks run while
// requests are held off, so a hook must not dispatch a request and wait
// for the response.
type RestartListener interface {
	BeforeAppRestart() error
	AfterAppRestart() error
}

// AddRestartListener subscribes l to restarts
func (a *App) AddRestartListener(l RestartListener) {
	if l == nil {
		return
	}
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.listeners = append(a.listeners, l)
}

// RemoveRestartListener unsubscribes l
func (a *App) RemoveRestartListener(l RestartListener) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.listeners = slices.DeleteFunc(a.listeners, func(other RestartListener) bool {
		return sameBean(other, l)
	})
}

func (a *App) restartListeners() []RestartListener {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	return slices.Clone(a.listeners)
}

// NotifyChanges marks the application dirty. Only the first notification
// after a restart is logged.
func (a *App) NotifyChanges() {
	if a.dirty.CompareAndSwap(false, true) {
		a.logger.Info("Detected code or resource changes")
	}
}

// IsDirty reports whether a restart is pending
func (a *App) IsDirty() bool {
	return a.dirty.Load()
}

// RestartIfDirty restarts the application when changes were detected. Of
// many concurrent callers exactly one performs the restart.
func (a *App) RestartIfDirty(ctx context.Context) bool {
	if !a.dirty.Load() {
		return false
	}

	a.restartMu.Lock()
	defer a.restartMu.Unlock()

	if !a.dirty.CompareAndSwap(true, false) {
		return false
	}
	a.restart(ctx)
	return true
}

// Restart restarts the application unconditionally
func (a *App) Restart(ctx context.Context) {
	a.restartMu.Lock()
	defer a.restartMu.Unlock()

	a.dirty.Store(false)
	a.restart(ctx)
}

func (a *App) restart(ctx context.Context) {
	started := time.Now()
	outcome := "ok"
	errs := rerrors.NewMultipleErrors()
	defer func() {
		a.mu.Lock()
		a.restartErr = errs.ErrorOrNil()
		a.mu.Unlock()
		a.rt.metrics.Restarts.WithLabelValues(outcome).Inc()
		a.rt.metrics.RestartDuration.Observe(time.Since(started).Seconds())
	}()

	a.mu.Lock()
	name := a.mainName
	args := slices.Clone(a.args)
	a.restarted = true
	a.mu.Unlock()

	if name == "" {
		a.logger.Warn("Restarting without a known entry point")
	}

	// in-flight requests drain before any state is torn down
	a.rt.gate.Lock()
	defer a.rt.gate.Unlock()

	listeners := a.restartListeners()
	for _, l := range listeners {
		a.notifyListener(l, "before", l.BeforeAppRestart)
	}

	a.mu.Lock()
	a.path = nil
	a.mu.Unlock()
	a.rt.config.Reset()
	a.rt.env.Reset()
	a.rt.resources.Reset()
	a.rt.renderer.Reset()
	a.rt.resetCaches()

	for _, s := range a.rt.Setups() {
		if err := s.Reload(); err != nil {
			a.logger.Error("Failed to reload setup", zap.String("setup", s.Name()), zap.Error(err))
			errs.Add(fmt.Errorf("setup %s: %w", s.Name(), err))
			outcome = "error"
		}
	}
	a.rt.catalog.Reset()
	a.rt.jobs.Reset()
	a.mu.Lock()
	a.beginEpoch()
	epoch := a.epoch
	a.mu.Unlock()

	if err := a.rt.Init(ctx); err != nil {
		a.logger.Error("Failed to initialize module defaults", zap.Error(err))
		errs.Add(err)
		outcome = "error"
	}

	entry, ok := a.loader().Load(name)
	if !ok {
		a.mu.Lock()
		a.degraded = true
		a.mu.Unlock()
		err := rerrors.ConfigurationError("cannot restart the application, entry point not found").
			WithCause(rerrors.LookupMiss("entry point", name)).
			WithSuggestion("start the application with App.Run or register the entry point with rewire.Entry")
		a.logger.Error("Restart degraded",
			zap.String("main", name),
			zap.String("epoch", epoch.ID),
			zap.Error(err))
		errs.Add(err)
		outcome = "degraded"
		return
	}

	a.mu.Lock()
	a.degraded = false
	a.mu.Unlock()

	if _, err := a.invoke(ctx, name, entry, args); err != nil {
		a.logger.Error("Entry point failed during restart", zap.String("main", name), zap.Error(err))
		errs.Add(err)
		outcome = "error"
	}

	for _, l := range listeners {
		a.notifyListener(l, "after", l.AfterAppRestart)
	}

	a.logger.Info("Successfully restarted the application",
		zap.String("epoch", epoch.ID),
		zap.Uint64("seq", epoch.Seq),
		zap.Duration("took", time.Since(started)))
}

// RestartError returns the failures of the last restart, or nil when it
// succeeded. Listener failures are not included.
func (a *App) RestartError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restartErr
}

func (a *App) notifyListener(l RestartListener, phase string, hook func() error) {
	err := safeCall(hook)
	if err == nil {
		return
	}
	failure := rerrors.ListenerFailure(fmt.Sprintf("%T", l), phase, err)
	a.logger.Error("Restart listener failed", zap.String("phase", phase), zap.Error(failure))
	a.rt.metrics.ListenerFailures.WithLabelValues(phase).Inc()
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
