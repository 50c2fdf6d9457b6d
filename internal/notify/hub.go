// Package notify broadcasts competition-scoped change events to connected
// subscribers. Delivery is at-most-once and best-effort: a subscriber that
// is not connected when an event fires never sees it.
package notify

import (
	"context"
	"sync"
)

// Event types
const (
	EventScoreUpdate  = "scoreUpdate"
	EventStatusChange = "statusChange"
)

// Event is the payload delivered to subscribers
type Event struct {
	Type          string `json:"type"`
	CompetitionID string `json:"competitionId"`
	Status        string `json:"status,omitempty"`
}

// ScoreUpdate builds the event sent after a score is accepted
func ScoreUpdate(competitionID string) Event {
	return Event{Type: EventScoreUpdate, CompetitionID: competitionID}
}

// Handler receives events. It runs on the publisher's goroutine and must not block.
type Handler func(Event)

// Notifier publishes events
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Subscriber registers handlers for one competition
type Subscriber interface {
	Subscribe(competitionID string, h Handler) *Subscription
}

// Broker is a Notifier whose events can also be subscribed to
type Broker interface {
	Notifier
	Subscriber
	Close() error
}

// Hub is the in-process subscriber registry
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]Handler)}
}

// Subscribe registers h for events of competitionID
func (h *Hub) Subscribe(competitionID string, handler Handler) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.subs[competitionID] == nil {
		h.subs[competitionID] = make(map[uint64]Handler)
	}
	h.subs[competitionID][id] = handler

	return &Subscription{
		CompetitionID: competitionID,
		cancel:        func() { h.remove(competitionID, id) },
	}
}

func (h *Hub) remove(competitionID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[competitionID]
	delete(set, id)
	if len(set) == 0 {
		delete(h.subs, competitionID)
	}
}

// Notify delivers e to the local subscribers of e.CompetitionID
func (h *Hub) Notify(ctx context.Context, e Event) error {
	h.Dispatch(e)
	return nil
}

// Dispatch calls every handler subscribed to e.CompetitionID
func (h *Hub) Dispatch(e Event) {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs[e.CompetitionID]))
	for _, fn := range h.subs[e.CompetitionID] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}

// Count returns the number of active subscriptions for competitionID
func (h *Hub) Count(competitionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[competitionID])
}

// Close drops every subscription
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = make(map[string]map[uint64]Handler)
	return nil
}

// Subscription is one registered handler. Unsubscribe may be called any number of times.
type Subscription struct {
	CompetitionID string
	once          sync.Once
	cancel        func()
}

// Unsubscribe removes the handler
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}
