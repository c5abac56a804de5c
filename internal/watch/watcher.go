// Package watch turns file system changes under the application's source
// directories into restart requests.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/toyz/rewire/internal/utils"
)

// DefaultDebounce coalesces bursts of events such as an editor saving many files
const DefaultDebounce = 200 * time.Millisecond

// DefaultExtensions are the file types whose changes mark the app dirty
var DefaultExtensions = []string{".go", ".html", ".yaml", ".yml", ".json", ".toml"}

// Notifier is told about changes; *rewire.App implements it
type Notifier interface {
	NotifyChanges()
}

// Options configure a Watcher
type Options struct {
	Debounce   time.Duration
	Extensions []string
	Logger     *zap.Logger
}

// Watcher watches directory trees and notifies once per burst of changes
type Watcher struct {
	notifier   Notifier
	debounce   time.Duration
	extensions []string
	logger     *zap.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	watched map[string]struct{}
}

// New creates a watcher over dirs and everything below them
func New(notifier Notifier, dirs []string, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		notifier:   notifier,
		debounce:   opts.Debounce,
		extensions: opts.Extensions,
		logger:     opts.Logger.Named("watch"),
		fsw:        fsw,
		watched:    make(map[string]struct{}),
	}
	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Dirs returns the watched directories in sorted order
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.watched))
	for dir := range w.watched {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	return dirs
}

// Run processes events until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.relevant(event.Name) {
		return
	}

	w.logger.Debug("Change detected", zap.String("file", event.Name), zap.String("op", event.Op.String()))
	w.schedule()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.notifier.NotifyChanges)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.fsw.Close()
}

func (w *Watcher) relevant(name string) bool {
	base := filepath.Base(name)
	if skipped(base) || strings.HasSuffix(base, "~") {
		return false
	}
	return slices.Contains(w.extensions, filepath.Ext(base))
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipped(d.Name()) {
			return filepath.SkipDir
		}

		w.mu.Lock()
		_, seen := w.watched[path]
		w.mu.Unlock()
		if seen {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}

		w.mu.Lock()
		w.watched[path] = struct{}{}
		w.mu.Unlock()
		return nil
	})
}

// skipped follows the go tool: dot and underscore prefixed names, vendor and testdata
func skipped(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
		name == "vendor" || name == "testdata" || name == "node_modules"
}

// ResolveDirs returns the module root containing start plus the directories
// of local replace directives.
func ResolveDirs(start string) ([]string, error) {
	goMod, err := utils.FindGoModFile(start)
	if err != nil {
		return nil, err
	}
	info, err := utils.ParseGoMod(goMod)
	if err != nil {
		return nil, err
	}

	dirs := []string{info.Dir}
	for _, dir := range info.LocalReplaces {
		if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}
