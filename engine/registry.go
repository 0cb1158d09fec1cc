package engine

import (
	"path/filepath"
	"sort"
	"sync"
)

var (
	published   = make(map[string]*Engine)
	publishedMu sync.RWMutex
)

// Publish makes e reachable through Lookup by its path. Engines publish
// themselves on Load and unpublish on Close.
func Publish(e *Engine) {
	publishedMu.Lock()
	defer publishedMu.Unlock()
	published[e.path] = e
}

// Unpublish removes e if it is still the engine published under its path.
func Unpublish(e *Engine) {
	publishedMu.Lock()
	defer publishedMu.Unlock()
	if published[e.path] == e {
		delete(published, e.path)
	}
}

// Lookup returns the live engine loaded from path. An empty path matches
// when exactly one engine is live.
func Lookup(path string) (*Engine, bool) {
	publishedMu.RLock()
	defer publishedMu.RUnlock()

	var e *Engine
	if path == "" {
		if len(published) != 1 {
			return nil, false
		}
		for _, only := range published {
			e = only
		}
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, false
		}
		e = published[abs]
	}
	if e == nil || e.Closed() {
		return nil, false
	}
	return e, true
}

// Published lists the paths of all live engines.
func Published() []string {
	publishedMu.RLock()
	defer publishedMu.RUnlock()

	paths := make([]string, 0, len(published))
	for p := range published {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
