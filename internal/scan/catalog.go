package scan

import (
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Entry is a registered component candidate
type Entry struct {
	Package string
	Name    string
	Value   any
}

// Catalog is the component scanner. Components register themselves at init
// time; Find filters them by package prefix and caches the result until Reset.
type Catalog struct {
	mu      sync.RWMutex
	entries []Entry
	cache   map[string][]Entry
	scans   int
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{cache: make(map[string][]Entry)}
}

// Add registers a component value, deriving its package from its type
func (c *Catalog) Add(values ...any) {
	for _, v := range values {
		pkg, name := Identify(v)
		c.AddEntry(Entry{Package: pkg, Name: name, Value: v})
	}
}

// AddEntry registers an entry and invalidates cached scans
func (c *Catalog) AddEntry(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	clear(c.cache)
}

// Find returns the values registered under any of the package prefixes.
// No prefixes means every package.
func (c *Catalog) Find(prefixes ...string) []any {
	entries := c.FindEntries(prefixes...)
	values := make([]any, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return values
}

// FindEntries is Find returning the full entries, ordered by package then name
func (c *Catalog) FindEntries(prefixes ...string) []Entry {
	key := cacheKey(prefixes)

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return slices.Clone(cached)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var found []Entry
	for _, e := range c.entries {
		if matches(e.Package, prefixes) {
			found = append(found, e)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Package != found[j].Package {
			return found[i].Package < found[j].Package
		}
		return found[i].Name < found[j].Name
	})
	c.cache[key] = found
	c.scans++
	return slices.Clone(found)
}

// Scans returns how many uncached scans were performed
func (c *Catalog) Scans() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scans
}

// Packages returns the distinct packages with registered components
func (c *Catalog) Packages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var pkgs []string
	for _, e := range c.entries {
		if !slices.Contains(pkgs, e.Package) {
			pkgs = append(pkgs, e.Package)
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

// Len returns the number of registered components
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops cached scan results. Registered components stay.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cache)
}

// Identify returns the package path and type name of a component value. A
// reflect.Type or a value with a Type() reflect.Type method is identified by
// the type it describes.
func Identify(v any) (pkg, name string) {
	var t reflect.Type
	switch x := v.(type) {
	case reflect.Type:
		t = x
	case interface{ Type() reflect.Type }:
		t = x.Type()
	default:
		t = reflect.TypeOf(v)
	}
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "", ""
	}
	return t.PkgPath(), t.Name()
}

func matches(pkg string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		p = strings.TrimSuffix(strings.TrimSpace(p), "/...")
		if p == "" || pkg == p || strings.HasPrefix(pkg, p+"/") {
			return true
		}
	}
	return false
}

func cacheKey(prefixes []string) string {
	sorted := slices.Clone(prefixes)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}
