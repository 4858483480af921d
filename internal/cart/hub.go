package cart

import (
	"sync"

	"storefront-cart/internal/model"
)

// Hub fans authoritative snapshots out to subscribers. Only snapshots newer
// than the current one are accepted, so late responses never roll state back.
type Hub struct {
	deliver sync.Mutex // serializes delivery so subscribers see versions in order

	mu      sync.Mutex
	current *model.CartSnapshot
	subs    map[uint64]func(*model.CartSnapshot)
	nextID  uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]func(*model.CartSnapshot))}
}

// Subscribe registers fn for every accepted snapshot and returns a function
// that removes it. fn runs on the publishing goroutine and must not call Publish.
func (h *Hub) Subscribe(fn func(*model.CartSnapshot)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish offers a snapshot. It reports whether the snapshot was newer than
// the current one and therefore delivered.
func (h *Hub) Publish(snap *model.CartSnapshot) bool {
	if snap == nil {
		return false
	}

	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	if !snap.IsNewerThan(h.current) {
		h.mu.Unlock()
		return false
	}
	h.current = snap
	subs := make([]func(*model.CartSnapshot), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return true
}

// Current returns the latest accepted snapshot, or nil before the first one.
// Callers must treat it as read-only.
func (h *Hub) Current() *model.CartSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}
