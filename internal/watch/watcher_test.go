package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingNotifier struct {
	calls atomic.Int32
}

func (n *countingNotifier) NotifyChanges() { n.calls.Add(1) }

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func startWatcher(t *testing.T, dirs ...string) (*Watcher, *countingNotifier) {
	t.Helper()
	notifier := &countingNotifier{}
	w, err := New(notifier, dirs, Options{Debounce: 50 * time.Millisecond, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, notifier
}

func TestWatcher_SkipsHiddenAndVendoredTrees(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"api", ".git", "_examples", "vendor", "api/testdata"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	w, _ := startWatcher(t, root)
	assert.Equal(t, []string{root, filepath.Join(root, "api")}, w.Dirs())
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	root := t.TempDir()
	w, notifier := startWatcher(t, root)
	require.NotEmpty(t, w.Dirs())

	for i := range 5 {
		write(t, filepath.Join(root, "main.go"), "package main // "+string(rune('a'+i)))
	}
	assert.Eventually(t, func() bool { return notifier.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return notifier.calls.Load() > 1 }, 200*time.Millisecond, 20*time.Millisecond)
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	root := t.TempDir()
	_, notifier := startWatcher(t, root)

	write(t, filepath.Join(root, "notes.txt"), "hello")
	write(t, filepath.Join(root, "main.go~"), "backup")
	assert.Never(t, func() bool { return notifier.calls.Load() > 0 }, 200*time.Millisecond, 20*time.Millisecond)
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	w, notifier := startWatcher(t, root)

	require.NoError(t, os.Mkdir(filepath.Join(root, "views"), 0o755))
	assert.Eventually(t, func() bool { return len(w.Dirs()) == 2 }, 2*time.Second, 10*time.Millisecond)

	write(t, filepath.Join(root, "views", "home.html"), "<h1>hi</h1>")
	assert.Eventually(t, func() bool { return notifier.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestResolveDirs(t *testing.T) {
	parent := t.TempDir()
	app := filepath.Join(parent, "app")
	lib := filepath.Join(parent, "lib")
	require.NoError(t, os.MkdirAll(lib, 0o755))
	write(t, filepath.Join(app, "go.mod"), "module example.com/app\n\ngo 1.25\n\nreplace example.com/lib => ../lib\n\nreplace example.com/gone => ../gone\n")
	write(t, filepath.Join(app, "cmd", "app", "main.go"), "package main")

	dirs, err := ResolveDirs(filepath.Join(app, "cmd", "app"))
	require.NoError(t, err)
	assert.Equal(t, []string{app, lib}, dirs)

	_, err = ResolveDirs(string(filepath.Separator))
	assert.Error(t, err)
}
