// Package world tracks which actors are connected so deferred actions can
// rebuild their execution context when they fire.
package world

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/worldscript/pkg/schema"
)

// Directory is the set of live actor sessions keyed by actor ID.
type Directory struct {
	mu     sync.RWMutex
	actors map[uint32]schema.ActorRef
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{actors: make(map[uint32]schema.ActorRef)}
}

// Join registers or refreshes an actor. Actor ID 0 is reserved for
// world-scoped triggers and is rejected.
func (d *Directory) Join(actor schema.ActorRef) error {
	if actor.ID == 0 {
		return schema.NewError(schema.ErrCodeValidation, "actor id 0 is reserved")
	}
	d.mu.Lock()
	d.actors[actor.ID] = actor
	d.mu.Unlock()
	return nil
}

// Leave drops an actor. It reports whether the actor was present.
func (d *Directory) Leave(id uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.actors[id]
	delete(d.actors, id)
	return ok
}

// Actor returns a copy of the actor's snapshot.
func (d *Directory) Actor(id uint32) (schema.ActorRef, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.actors[id]
	return a, ok
}

// ContextFor builds a fresh execution context for a connected actor.
func (d *Directory) ContextFor(_ context.Context, id uint32) (*schema.ExecutionContext, bool) {
	a, ok := d.Actor(id)
	if !ok {
		return nil, false
	}
	return &schema.ExecutionContext{Actor: &a}, true
}

// Online returns connected actor IDs in ascending order.
func (d *Directory) Online() []uint32 {
	d.mu.RLock()
	ids := make([]uint32, 0, len(d.actors))
	for id := range d.actors {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
