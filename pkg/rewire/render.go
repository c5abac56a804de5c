package rewire

import (
	"bytes"
	"errors"
	"html/template"
	"io/fs"
	"os"
	"path"
	"sync"

	"github.com/toyz/rewire/internal/utils"
)

// Resources loads static resources such as view templates. Loaded contents
// are cached until the file changes or the cache is reset.
type Resources struct {
	mu    sync.RWMutex
	fsys  fs.FS
	cache *utils.Cache[string, []byte]
}

// NewResources creates a resource loader over fsys
func NewResources(fsys fs.FS) *Resources {
	return &Resources{
		fsys:  fsys,
		cache: utils.NewCache[string, []byte](),
	}
}

// NewDirResources creates a resource loader over a directory
func NewDirResources(dir string) *Resources {
	return NewResources(os.DirFS(dir))
}

// SetFS replaces the underlying file system and drops cached contents
func (r *Resources) SetFS(fsys fs.FS) {
	r.mu.Lock()
	r.fsys = fsys
	r.mu.Unlock()
	r.cache.Clear()
}

// Load returns the contents of name
func (r *Resources) Load(name string) ([]byte, error) {
	r.mu.RLock()
	fsys := r.fsys
	r.mu.RUnlock()

	if fsys == nil {
		return nil, fs.ErrNotExist
	}

	info, err := fs.Stat(fsys, name)
	if err != nil {
		r.cache.Delete(name)
		return nil, err
	}
	if data, ok := r.cache.GetFresh(name, info); ok {
		return data, nil
	}

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	r.cache.SetWithInfo(name, data, info)
	return data, nil
}

// Cached returns the number of cached resources
func (r *Resources) Cached() int {
	return r.cache.Size()
}

// Reset drops cached contents
func (r *Resources) Reset() {
	r.cache.Clear()
}

// ViewModel is the data passed to a view template
type ViewModel struct {
	Title string
	Path  string
	Model any
}

const defaultView = `<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>{{.Model}}</body>
</html>`

// Renderer renders page routes with html/template. Views are loaded from
// resources as <view>.html; a missing view falls back to a minimal page.
type Renderer struct {
	resources *Resources
	cache     *utils.Cache[string, *template.Template]
	fallback  *template.Template
}

// NewRenderer creates a renderer loading views from resources
func NewRenderer(resources *Resources) *Renderer {
	return &Renderer{
		resources: resources,
		cache:     utils.NewCache[string, *template.Template](),
		fallback:  template.Must(template.New("default").Parse(defaultView)),
	}
}

// Render executes the named view with data
func (r *Renderer) Render(view string, data ViewModel) (string, error) {
	tmpl, err := r.template(view)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Renderer) template(view string) (*template.Template, error) {
	if view == "" {
		return r.fallback, nil
	}
	if tmpl, ok := r.cache.Get(view); ok {
		return tmpl, nil
	}

	src, err := r.resources.Load(path.Clean(view) + ".html")
	if errors.Is(err, fs.ErrNotExist) {
		return r.fallback, nil
	}
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(view).Parse(string(src))
	if err != nil {
		return nil, err
	}
	r.cache.Set(view, tmpl)
	return tmpl, nil
}

// Cached returns the number of compiled views
func (r *Renderer) Cached() int {
	return r.cache.Size()
}

// Reset drops compiled views
func (r *Renderer) Reset() {
	r.cache.Clear()
}
