// Package events carries change notifications between components through
// typed topics. Publishing is synchronous: every subscriber has run when
// Publish returns.
package events

import (
	"maps"
	"slices"
	"sync"

	"github.com/tphummel/dcims/internal/models"
)

// Topic is a typed publish/subscribe channel.
type Topic[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(T)
}

// Subscribe registers fn and returns a function that removes it again.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs == nil {
		t.subs = map[int]func(T){}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber in subscription order.
func (t *Topic[T]) Publish(ev T) {
	t.mu.RLock()
	ids := slices.Sorted(maps.Keys(t.subs))
	fns := make([]func(T), len(ids))
	for i, id := range ids {
		fns[i] = t.subs[id]
	}
	t.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len reports the number of current subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Change kinds.
const (
	Created = "create"
	Updated = "update"
	Deleted = "delete"
)

// ServerChanged is published after a server record is written or removed.
type ServerChanged struct {
	Action string
	UserID string
	Server *models.Server
}

// DashboardChanged is published after a dashboard is written or removed.
type DashboardChanged struct {
	Action    string
	UserID    string
	Dashboard *models.Dashboard
}

// EnumColorChanged is published when a color mapping is set or removed.
type EnumColorChanged struct {
	Action string
	UserID string
	Color  *models.EnumColor
}

// FilterPreferenceChanged is published when a user saves server filters.
type FilterPreferenceChanged struct {
	UserID  string
	Filters *models.ServerFilters
}

// ServersImported is published once per CSV import.
type ServersImported struct {
	UserID   string
	Imported int
	Errors   int
}

// Bus groups every topic of the service.
type Bus struct {
	ServerChanged           Topic[ServerChanged]
	DashboardChanged        Topic[DashboardChanged]
	EnumColorChanged        Topic[EnumColorChanged]
	FilterPreferenceChanged Topic[FilterPreferenceChanged]
	ServersImported         Topic[ServersImported]
}

// NewBus returns a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{}
}
