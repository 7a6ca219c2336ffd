// ABOUTME: TTL-bounded filter for recognizing redelivered tool-call requests.
// ABOUTME: Keyed by the call's correlation id; a duplicate within the window is dropped.

package dispatch

import (
	"container/list"
	"sync"
	"time"
)

// redeliveryWindow is how long a seen call id is remembered. It comfortably
// exceeds any sane dispatch timeout, so a redelivery inside the reply
// window is always caught.
const redeliveryWindow = 2 * time.Minute

// redeliveryCap bounds the filter's memory. At capacity the oldest entry is
// evicted; a runtime handling more concurrent calls than this would re-run
// a redelivered call, which is safe but wasteful.
const redeliveryCap = 4096

type seenCall struct {
	at   time.Time
	elem *list.Element
}

// redeliveryFilter tracks recently seen call ids. Insertion order is kept
// in a list so capacity eviction is O(1).
type redeliveryFilter struct {
	mu    sync.Mutex
	seen  map[string]*seenCall
	order *list.List
}

func newRedeliveryFilter() *redeliveryFilter {
	return &redeliveryFilter{
		seen:  make(map[string]*seenCall),
		order: list.New(),
	}
}

// duplicate reports whether callID was already seen inside the window,
// marking it as seen either way. Expired entries in the way are reclaimed.
func (f *redeliveryFilter) duplicate(callID string) bool {
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if entry, ok := f.seen[callID]; ok {
		if now.Sub(entry.at) < redeliveryWindow {
			return true
		}
		entry.at = now
		f.order.MoveToBack(entry.elem)
		return false
	}

	// Reclaim expired entries from the front before considering eviction.
	for front := f.order.Front(); front != nil; front = f.order.Front() {
		key := front.Value.(string)
		if now.Sub(f.seen[key].at) < redeliveryWindow {
			break
		}
		f.order.Remove(front)
		delete(f.seen, key)
	}

	if len(f.seen) >= redeliveryCap {
		front := f.order.Front()
		f.order.Remove(front)
		delete(f.seen, front.Value.(string))
	}

	f.seen[callID] = &seenCall{at: now, elem: f.order.PushBack(callID)}
	return false
}
