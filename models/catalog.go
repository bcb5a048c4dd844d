package models

import (
	"sync"
	"time"
)

// EventCatalog caches catalog events in memory so that a burst of scans does
// not hit the database for every lookup.
// It is periodically refreshed by RefreshEventsTask.
type EventCatalog struct {
	events      map[string]Event
	lock        sync.RWMutex
	LastUpdated time.Time
}

func NewEventCatalog() *EventCatalog {
	return &EventCatalog{
		events: make(map[string]Event),
	}
}

// Replace swaps in a full snapshot of the catalog.
func (c *EventCatalog) Replace(events []Event) {
	next := make(map[string]Event, len(events))
	for _, ev := range events {
		next[ev.ID] = ev
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.events = next
}

func (c *EventCatalog) Get(id string) (Event, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	ev, ok := c.events[id]
	return ev, ok
}

func (c *EventCatalog) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return len(c.events)
}
