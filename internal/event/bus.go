// Package event provides the in-process fan-out bus for typed events.
//
// Publish is synchronous: handlers run on the publisher's goroutine in
// priority order, so cancellable events (server_pre_start) and mutable events
// (launch option build) observe every subscriber before the publisher
// continues. Subscribers that want to run after everyone else register with
// PriorityMonitor.
package event

import (
	"sort"
	"sync"

	"github.com/swicore/switcher/pkg/types"
)

// Priority orders handlers for one event type. Lower runs first.
type Priority int

const (
	PriorityHigh    Priority = -100
	PriorityNormal  Priority = 0
	PriorityLow     Priority = 100
	PriorityMonitor Priority = 1000
)

type handler struct {
	id       int64
	priority Priority
	fn       func(types.Event)
}

// Bus dispatches typed events to subscribers.
type Bus struct {
	mu       sync.RWMutex
	nextID   int64
	handlers map[string][]handler // keyed by event type, sorted
	anySubs  []handler            // receive every event (websocket fan-out)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]handler)}
}

// Subscribe registers a handler for one event type and returns an
// unsubscribe function. Handlers with equal priority run in registration
// order.
func (b *Bus) Subscribe(eventType string, pri Priority, fn func(types.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	h := handler{id: b.nextID, priority: pri, fn: fn}
	hs := append(b.handlers[eventType], h)
	sortHandlers(hs)
	b.handlers[eventType] = hs
	id := h.id
	return func() { b.remove(eventType, id) }
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(pri Priority, fn func(types.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	h := handler{id: b.nextID, priority: pri, fn: fn}
	b.anySubs = append(b.anySubs, h)
	sortHandlers(b.anySubs)
	id := h.id
	return func() { b.removeAny(id) }
}

// Publish delivers the event synchronously to typed handlers first, then to
// catch-all subscribers.
func (b *Bus) Publish(ev types.Event) {
	b.mu.RLock()
	typed := b.handlers[ev.EventType()]
	hs := make([]handler, 0, len(typed)+len(b.anySubs))
	hs = append(hs, typed...)
	hs = append(hs, b.anySubs...)
	b.mu.RUnlock()

	for _, h := range hs {
		h.fn(ev)
	}
}

func (b *Bus) remove(eventType string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[eventType]
	for i, h := range hs {
		if h.id == id {
			b.handlers[eventType] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

func (b *Bus) removeAny(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.anySubs {
		if h.id == id {
			b.anySubs = append(b.anySubs[:i:i], b.anySubs[i+1:]...)
			return
		}
	}
}

func sortHandlers(hs []handler) {
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].priority != hs[j].priority {
			return hs[i].priority < hs[j].priority
		}
		return hs[i].id < hs[j].id
	})
}
