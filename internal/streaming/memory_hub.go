package streaming

import (
	"context"
	"sync"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

const defaultChannelBuffer = 64

// feedSub is one consumer of the session status feed.
type feedSub struct {
	ch     chan StreamEvent
	filter EventFilter
}

// sessionScoped reports whether the subscriber follows a single session and
// can therefore be retired once that session reaches a terminal event.
func (s *feedSub) sessionScoped() bool {
	return s.filter.SessionID != ""
}

// MemoryHub is the in-process EventHub backing the session status feed.
// Publishing never blocks on a slow consumer, and subscribers pinned to a
// single session are closed automatically after that session's terminal
// event, so per-call waiters (transfer callbacks, dashboard drill-downs) do
// not leak across the engine's lifetime.
type MemoryHub struct {
	mu     sync.RWMutex
	subs   map[uint64]*feedSub
	nextID uint64
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[uint64]*feedSub)}
}

// Publish fans the event out to every matching subscriber. Full subscriber
// buffers drop the event rather than stall the drive loop. A terminal session
// event additionally retires subscribers scoped to that session.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var retired []uint64

	h.mu.RLock()
	terminal := terminalEvent(event.EventType)
	for id, sub := range h.subs {
		if !matchFilter(sub.filter, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// slow subscriber; the feed is best-effort
		}
		if terminal && sub.sessionScoped() && sub.filter.SessionID == event.SessionID {
			retired = append(retired, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range retired {
		h.drop(id, true)
	}
	return nil
}

// Subscribe registers a consumer for events passing the filter. The returned
// cancel is idempotent and safe to call after the hub has already retired the
// subscription; the channel closes when either happens first.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &feedSub{
		ch:     make(chan StreamEvent, defaultChannelBuffer),
		filter: filter,
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	return sub.ch, func() { h.drop(id, false) }, nil
}

// SubscriberCount reports the number of live subscriptions.
func (h *MemoryHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// drop removes a subscription. Closing happens outside any send path: sends
// only run while the subscriber is still in the map under the read lock, and
// removal takes the write lock first.
func (h *MemoryHub) drop(id uint64, closeCh bool) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok && closeCh {
		close(sub.ch)
	}
}

// terminalEvent reports whether the session emits nothing after this event.
func terminalEvent(eventType string) bool {
	switch eventType {
	case schema.EventSessionCompleted, schema.EventSessionAbandoned, schema.EventSessionFailed:
		return true
	}
	return false
}

// matchFilter reports whether the event passes the subscriber's filter.
func matchFilter(f EventFilter, e StreamEvent) bool {
	if f.SessionID != "" && f.SessionID != e.SessionID {
		return false
	}
	if len(f.EventTypes) == 0 {
		return true
	}
	for _, t := range f.EventTypes {
		if t == e.EventType {
			return true
		}
	}
	return false
}
