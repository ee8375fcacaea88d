// Package loader implements the dynamic loader (C4): it opens compiled
// shared objects and resolves named symbols without cgo, using
// ebitengine/purego's dlopen/dlsym bindings, and caches handles by path
// so repeated loads of the same artifact are cheap and safe to unload
// independently.
package loader

import (
	"sync"

	"github.com/ebitengine/purego"

	"github.com/compiledb/compiledb/internal/dberr"
	"github.com/compiledb/compiledb/internal/logging"
)

var log = logging.GetLogger("loader")

// Handle represents one open shared object, tracked by path so multiple
// logical loads can share the same OS-level mapping.
type Handle struct {
	path string
	raw  uintptr
}

// Path returns the filesystem path this handle was opened from.
func (h *Handle) Path() string { return h.path }

type cacheEntry struct {
	raw      uintptr
	refcount int
}

// Loader opens and caches shared object handles.
type Loader struct {
	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// New returns an empty Loader.
func New() *Loader {
	return &Loader{cache: make(map[string]*cacheEntry)}
}

// Load opens path with immediate symbol resolution and process-local
// scope. A second Load of the same path returns a handle sharing the
// same underlying OS resource; both handles must be Unloaded before the
// mapping is actually released.
func (l *Loader) Load(path string) (*Handle, error) {
	const op = "loader.Load"

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.cache[path]; ok {
		entry.refcount++
		return &Handle{path: path, raw: entry.raw}, nil
	}

	raw, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, dberr.Wrap(dberr.LoadError, op, err, "dlopen %s", path)
	}

	l.cache[path] = &cacheEntry{raw: raw, refcount: 1}
	log.Debug("loaded artifact", "path", path)
	return &Handle{path: path, raw: raw}, nil
}

// Lookup resolves a named symbol within h's shared object.
func (l *Loader) Lookup(h *Handle, name string) (uintptr, error) {
	const op = "loader.Lookup"

	sym, err := purego.Dlsym(h.raw, name)
	if err != nil {
		return 0, dberr.Wrap(dberr.LoadError, op, err, "symbol %q not found in %s", name, h.path)
	}
	return sym, nil
}

// Unload releases h. The caller guarantees no outstanding function
// pointer obtained via Lookup is invoked after Unload drops the last
// reference to the underlying shared object.
func (l *Loader) Unload(h *Handle) error {
	const op = "loader.Unload"

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.cache[h.path]
	if !ok {
		return dberr.New(dberr.InvalidArgument, op, "handle for "+h.path+" is not tracked by this loader")
	}

	entry.refcount--
	if entry.refcount > 0 {
		return nil
	}

	delete(l.cache, h.path)
	if err := purego.Dlclose(entry.raw); err != nil {
		return dberr.Wrap(dberr.LoadError, op, err, "dlclose %s", h.path)
	}
	log.Debug("unloaded artifact", "path", h.path)
	return nil
}
