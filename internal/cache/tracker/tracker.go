// Package tracker implements the artifact cache's LRU bookkeeping: an
// insertion-ordered mapping from cache key to entry size, with a
// total-size bound and front-eviction on overflow.
//
// The list-based LRU here is the same shape as the teacher's
// hlsMemBuffer (container/list plus a map to *list.Element), with the
// front as the least recent end: promotion moves an entry to the back
// and eviction takes from the front. It is adapted to track sizes without also
// owning the bytes themselves — the artifact cache, not the tracker,
// owns the payload files.
package tracker

import (
	"container/list"
	"sort"
	"sync"
)

// InitialEntry describes one entry discovered during cache initialization,
// used to seed a Tracker in recency order.
type InitialEntry struct {
	Key          string
	Size         int64
	LastAccessed int64 // unix nanos; only used to sort initial entries
}

// Tracker is the LRU size tracker. The zero value is not usable; use New.
type Tracker struct {
	mu        sync.Mutex
	sizeLimit int64
	totalSize int64
	order     *list.List // front = least recent, back = most recent
	elements  map[string]*list.Element
}

type node struct {
	key  string
	size int64
}

// New creates a Tracker seeded with entries (sorted ascending by
// LastAccessed, oldest first) and bounded by sizeLimit. If the sum of
// entries' sizes already exceeds sizeLimit, no eviction happens at
// construction time — spec.md §4.4: "the next successful insertion will
// evict down."
func New(entries []InitialEntry, sizeLimit int64) *Tracker {
	sorted := make([]InitialEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LastAccessed < sorted[j].LastAccessed })

	t := &Tracker{
		sizeLimit: sizeLimit,
		order:     list.New(),
		elements:  make(map[string]*list.Element),
	}
	for _, e := range sorted {
		el := t.order.PushBack(&node{key: e.Key, size: e.Size})
		t.elements[e.Key] = el
		t.totalSize += e.Size
	}
	return t
}

// TotalSize returns the current tracked total size across all entries.
func (t *Tracker) TotalSize() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalSize
}

// Len returns the number of tracked entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

// Promote moves key to the most-recent position. A no-op if key is absent.
func (t *Tracker) Promote(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.elements[key]; ok {
		t.order.MoveToBack(el)
	}
}

// Insert records size for key (replacing any prior size for the same
// key), appends it at the most-recent position, then evicts from the
// least-recent end until total size is under the limit. It returns the
// evicted keys in eviction order (oldest first).
func (t *Tracker) Insert(key string, size int64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.elements[key]; ok {
		n := el.Value.(*node)
		t.totalSize -= n.size
		n.size = size
		t.totalSize += size
		t.order.MoveToBack(el)
	} else {
		el := t.order.PushBack(&node{key: key, size: size})
		t.elements[key] = el
		t.totalSize += size
	}

	var evicted []string
	for t.totalSize > t.sizeLimit && t.order.Len() > 0 {
		front := t.order.Front()
		n := front.Value.(*node)
		if n.key == key && t.order.Len() == 1 {
			// A single entry larger than the limit is kept; there is
			// nothing else to evict to make room for it.
			break
		}
		t.order.Remove(front)
		delete(t.elements, n.key)
		t.totalSize -= n.size
		evicted = append(evicted, n.key)
	}
	return evicted
}

// Remove drops key from the tracker without regard to eviction ordering
// (used when the artifact cache discovers an entry is invalid outside the
// normal insert path).
func (t *Tracker) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.elements[key]
	if !ok {
		return
	}
	n := el.Value.(*node)
	t.totalSize -= n.size
	t.order.Remove(el)
	delete(t.elements, key)
}

// SetSizeLimit updates the size limit in place. It does not itself evict;
// the next Insert will evict down to the new limit.
func (t *Tracker) SetSizeLimit(limit int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sizeLimit = limit
}

// Keys returns tracked keys from least to most recently used (for tests).
func (t *Tracker) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]string, 0, t.order.Len())
	for el := t.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*node).key)
	}
	return keys
}
