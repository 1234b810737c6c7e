package guestsession

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a session lifecycle transition.
type EventType string

const (
	EventCreated            EventType = "created"
	EventValidated          EventType = "validated"
	EventActivityUpdated    EventType = "activity_updated"
	EventCustomerAssociated EventType = "customer_associated"
	EventOrderRecorded      EventType = "order_recorded"
	EventExtended           EventType = "extended"
	EventExpired            EventType = "expired"
	EventCleanup            EventType = "cleanup"
)

// Event is an audit record of one session lifecycle transition. Cleanup
// events carry no session ID; Count holds the number of removed records.
type Event struct {
	Type      EventType
	SessionID uuid.UUID
	StoreID   string
	At        time.Time
	Count     int
}

// Listener receives session events. Listeners run synchronously on the
// mutating goroutine and should hand off expensive work.
type Listener func(Event)

// eventHub is a callback registry with per-listener panic isolation: audit
// hooks must never break the ordering flow that triggered them.
type eventHub struct {
	mu        sync.RWMutex
	listeners []Listener
	log       *slog.Logger
}

func newEventHub(log *slog.Logger) *eventHub {
	return &eventHub{log: log}
}

func (h *eventHub) subscribe(l Listener) {
	if l == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

func (h *eventHub) emit(e Event) {
	h.mu.RLock()
	listeners := h.listeners
	h.mu.RUnlock()

	for _, l := range listeners {
		h.safeCall(l, e)
	}
}

func (h *eventHub) safeCall(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("session event listener panicked",
				slog.String("event", string(e.Type)),
				slog.Any("panic", r),
			)
		}
	}()
	l(e)
}
