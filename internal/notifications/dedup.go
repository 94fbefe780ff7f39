package notifications

import "sync"

// Deduplicator remembers which item ids already produced an alert.
type Deduplicator struct {
	mu    sync.Mutex
	shown map[string]struct{}
}

// NewDeduplicator creates an empty set.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{shown: make(map[string]struct{})}
}

// Admit records id and reports whether it was not seen before.
func (d *Deduplicator) Admit(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.shown[id]; ok {
		return false
	}
	d.shown[id] = struct{}{}
	return true
}

// Len returns the number of remembered ids.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shown)
}

// Reset forgets every id.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	d.shown = make(map[string]struct{})
	d.mu.Unlock()
}
