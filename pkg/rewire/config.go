package rewire

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is the prefix of environment variables overriding configuration
const EnvPrefix = "REWIRE"

// Config is the configuration collaborator backed by viper. Values come from
// an optional config file, REWIRE_* environment variables and key=value
// process arguments, in increasing precedence.
type Config struct {
	mu         sync.RWMutex
	v          *viper.Viper
	file       string
	generation uint64
	listeners  []func()
	watcher    *fsnotify.Watcher
	ignore     atomic.Bool
	logger     *zap.Logger
}

// NewConfig creates a config reading file when it is not empty
func NewConfig(file string, logger *zap.Logger) *Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Config{file: file, logger: logger.Named("config")}
	c.v = c.load()
	return c
}

func (c *Config) load() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if c.file != "" {
		v.SetConfigFile(c.file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				c.logger.Warn("Failed to read config file", zap.String("file", c.file), zap.Error(err))
			}
		}
	}
	return v
}

// Lookup returns the string value of key and whether it is set
func (c *Config) Lookup(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.v.IsSet(key) {
		return "", false
	}
	return c.v.GetString(key), true
}

// Str returns the string value of key, or "" when unset
func (c *Config) Str(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetString(key)
}

// Bool returns the boolean value of key
func (c *Config) Bool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetBool(key)
}

// Int returns the integer value of key
func (c *Config) Int(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetInt(key)
}

// Set overrides key for the current epoch. Overrides come from process
// arguments and do not notify change listeners.
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Set(key, value)
}

// Notify delivers a change notification to the listeners, as a watched
// config file change does.
func (c *Config) Notify() {
	c.fire(c.currentGeneration())
}

// OnChange subscribes fn to configuration changes
func (c *Config) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Watch starts watching the config file for changes. The watch is started
// once per Config and survives Reset; it is a no-op without a file.
func (c *Config) Watch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == "" || c.watcher != nil {
		return
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		c.logger.Warn("Failed to watch config file", zap.String("file", c.file), zap.Error(err))
		return
	}
	file := filepath.Clean(c.file)
	// editors replace files on save, so the directory is watched
	if err := w.Add(filepath.Dir(file)); err != nil {
		_ = w.Close()
		c.logger.Warn("Failed to watch config file", zap.String("file", c.file), zap.Error(err))
		return
	}
	c.watcher = w
	go c.watch(w, file)
}

func (c *Config) watch(w *fsnotify.Watcher, file string) {
	for {
		select {
		case e, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != file || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			c.logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))
			c.reload()
			c.Notify()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

// reload re-reads the config file, keeping overrides
func (c *Config) reload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.v.ReadInConfig(); err != nil {
		c.logger.Warn("Failed to reload config file", zap.String("file", c.file), zap.Error(err))
	}
}

// Close stops watching the config file
func (c *Config) Close() error {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Close()
}

// IgnoreChanges stops notifying listeners until the next Reset
func (c *Config) IgnoreChanges() {
	c.ignore.Store(true)
}

// Reset drops overrides and listeners and re-reads the config sources. A
// running file watch is kept and notifies the listeners subscribed later.
func (c *Config) Reset() {
	v := c.load()

	c.mu.Lock()
	c.v = v
	c.generation++
	c.listeners = nil
	c.mu.Unlock()

	c.ignore.Store(false)
}

func (c *Config) currentGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// fire notifies listeners of the given generation. Notifications captured
// before a Reset are dropped.
func (c *Config) fire(gen uint64) {
	if c.ignore.Load() {
		return
	}

	c.mu.RLock()
	if gen != c.generation {
		c.mu.RUnlock()
		return
	}
	listeners := append([]func(){}, c.listeners...)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
