// internal/endpoint/registry.go
package endpoint

import (
	"sort"
	"sync"
)

// Registry holds every configured endpoint. It is safe for concurrent use;
// the lock is only held for the in-memory read or write and callers always
// receive copies, never references into the map.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewRegistry creates and returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]Record),
	}
}

// Add inserts rec, replacing any record already stored under rec.Name.
func (r *Registry) Add(rec Record) {
	rec = rec.Clone()

	r.mu.Lock()
	r.records[rec.Name] = rec
	r.mu.Unlock()
}

// Update merges fields into the record stored under name, last writer wins
// per key. Nothing is created when name is absent; the result reports whether
// a record was updated.
func (r *Registry) Update(name string, fields Fields) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[name]
	if !ok {
		return false
	}
	merged := current.Fields.Clone()
	for k, v := range fields {
		merged[k] = v
	}
	current.Fields = merged
	r.records[name] = current
	return true
}

// Delete removes the record stored under name and reports whether one existed.
func (r *Registry) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[name]; !ok {
		return false
	}
	delete(r.records, name)
	return true
}

// Get retrieves a copy of the record stored under name.
func (r *Registry) Get(name string) (Record, bool) {
	r.mu.RLock()
	rec, ok := r.records[name]
	r.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// ListAll returns a snapshot of the whole catalog taken under one lock.
func (r *Registry) ListAll() map[string]Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Record, len(r.records))
	for name, rec := range r.records {
		out[name] = rec.Clone()
	}
	return out
}

// Names returns the registered names in lexicographic order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
