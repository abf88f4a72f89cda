package notify

import (
	"sync"

	"localnotify/internal/kit"
)

// scheduleIndex maps caller identifiers to platform ids while keeping
// insertion order for FIFO eviction. The order list is intrusive (nodes
// are the map values), so eviction of the oldest entry is O(1).
//
// All mutating operations take the writer lock for their whole critical
// section; size/contains queries take it shared. When both the index and
// the group registry must be locked, the index lock comes first.
type scheduleIndex struct {
	mu    sync.RWMutex
	nodes map[string]*indexNode
	head  *indexNode // oldest
	tail  *indexNode // newest
	max   int
}

type indexNode struct {
	identifier string
	platformID kit.PlatformID
	prev, next *indexNode
}

func newScheduleIndex(max int) *scheduleIndex {
	if max <= 0 {
		max = defaultMaxTracked
	}
	return &scheduleIndex{nodes: map[string]*indexNode{}, max: max}
}

// insert adds identifier at the newest end. An existing identifier is
// treated as an update: the old entry is unlinked and the identifier
// re-added with fresh insertion order. When the index is full the single
// oldest entry is evicted first; its identifier is returned so the
// caller can clean up the group registry.
func (x *scheduleIndex) insert(identifier string, pid kit.PlatformID) (evicted string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if n, ok := x.nodes[identifier]; ok {
		x.unlinkLocked(n)
		delete(x.nodes, identifier)
	}
	if len(x.nodes) >= x.max && x.head != nil {
		evicted = x.head.identifier
		delete(x.nodes, evicted)
		x.unlinkLocked(x.head)
	}

	n := &indexNode{identifier: identifier, platformID: pid}
	x.nodes[identifier] = n
	if x.tail == nil {
		x.head, x.tail = n, n
	} else {
		n.prev = x.tail
		x.tail.next = n
		x.tail = n
	}
	return evicted
}

func (x *scheduleIndex) unlinkLocked(n *indexNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		x.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		x.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// remove deletes identifier and returns its platform id.
func (x *scheduleIndex) remove(identifier string) (kit.PlatformID, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n, ok := x.nodes[identifier]
	if !ok {
		return 0, false
	}
	delete(x.nodes, identifier)
	x.unlinkLocked(n)
	return n.platformID, true
}

func (x *scheduleIndex) get(identifier string) (kit.PlatformID, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.nodes[identifier]
	if !ok {
		return 0, false
	}
	return n.platformID, true
}

func (x *scheduleIndex) contains(identifier string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.nodes[identifier]
	return ok
}

func (x *scheduleIndex) count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.nodes)
}

func (x *scheduleIndex) clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.nodes = map[string]*indexNode{}
	x.head, x.tail = nil, nil
}

// pair is one identifier/platform-id mapping in insertion order.
type pair struct {
	identifier string
	platformID kit.PlatformID
}

// entries copies the index oldest-first. The lock is held only for the
// copy, never across I/O.
func (x *scheduleIndex) entries() []pair {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]pair, 0, len(x.nodes))
	for n := x.head; n != nil; n = n.next {
		out = append(out, pair{identifier: n.identifier, platformID: n.platformID})
	}
	return out
}
