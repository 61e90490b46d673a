// Copyright 2026 Socotra, Inc.

package mcp

import "sync"

// debouncer coalesces repeated notification sends for the same method into
// a single flush on the next scheduler tick: if two callers schedule the
// same key before the pending flush has run, only one notification goes
// out. This is what lets a server batch a flurry of tools/list_changed
// triggers (e.g. a directory scan registering many tools at once) into one
// wire message instead of one per registration.
type debouncer struct {
	mu      sync.Mutex
	pending map[string]bool
}

func newDebouncer() *debouncer {
	return &debouncer{pending: make(map[string]bool)}
}

// schedule arranges for flush to run once on the next tick for key, unless
// a flush for key is already scheduled and has not yet run.
func (d *debouncer) schedule(key string, flush func()) {
	d.mu.Lock()
	if d.pending[key] {
		d.mu.Unlock()
		return
	}
	d.pending[key] = true
	d.mu.Unlock()

	go func() {
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
		flush()
	}()
}
