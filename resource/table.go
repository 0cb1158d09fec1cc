package resource

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("reference table closed")

type entry struct {
	value any
	rep   uint32
	gen   uint32
	valid bool
}

// Table maps handles to runtime-side representations. It is safe for
// concurrent use.
type Table struct {
	entries   []entry
	freeList  []uint32
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert registers rep and an optional host value, returning its handle.
func (t *Table) Insert(rep uint32, value any) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	var idx uint32
	if n := len(t.freeList); n > 0 {
		idx = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
	} else {
		t.entries = append(t.entries, entry{})
		idx = uint32(len(t.entries))
	}

	e := &t.entries[idx-1]
	e.gen++
	e.rep = rep
	e.value = value
	e.valid = true
	h := makeHandle(idx, e.gen)
	t.mu.Unlock()

	t.notify(Event{Type: EventRegistered, Handle: h, Rep: rep, Value: value})
	return h, nil
}

// lookup returns the live entry for h. Caller holds t.mu.
func (t *Table) lookup(h Handle) *entry {
	idx := h.Index()
	if idx == 0 || int(idx) > len(t.entries) {
		return nil
	}
	e := &t.entries[idx-1]
	if !e.valid || e.gen != h.Generation() {
		return nil
	}
	return e
}

// Rep returns the representation registered for h.
func (t *Table) Rep(h Handle) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e := t.lookup(h)
	if e == nil {
		return 0, false
	}
	return e.rep, true
}

// Get returns the host value registered for h.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e := t.lookup(h)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Remove unregisters h and returns its representation. It reports false for
// unknown, stale or already removed handles, so a handle is removed at most once.
func (t *Table) Remove(h Handle) (uint32, bool) {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil {
		t.mu.Unlock()
		return 0, false
	}
	rep, value := e.rep, e.value
	e.valid = false
	e.value = nil
	e.rep = 0
	t.freeList = append(t.freeList, h.Index())
	t.mu.Unlock()

	t.notify(Event{Type: EventRemoved, Handle: h, Rep: rep, Value: value})
	return rep, true
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all live handles until fn returns false.
func (t *Table) Each(fn func(Handle, uint32) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(makeHandle(uint32(i+1), e.gen), e.rep) {
				break
			}
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close stops accepting inserts and forgets every live handle. It returns the
// number of handles that were still live; their runtime side goes away with
// the runtime itself.
func (t *Table) Close() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0
	}
	t.closed = true

	live := 0
	for i := range t.entries {
		if t.entries[i].valid {
			live++
		}
	}
	t.entries = nil
	t.freeList = nil
	return live
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
