package core

import (
	"context"

	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

// Mutation is the verdict of a transition: what the store must do with the document.
type Mutation int

const (
	Keep Mutation = iota
	Save
	Delete
)

func (m Mutation) String() string {
	switch m {
	case Save:
		return "save"
	case Delete:
		return "delete"
	default:
		return "keep"
	}
}

// UpdateFunc receives a private copy of the current document and may modify it.
// It can run more than once when the store retries after a write conflict, so it
// must not have side effects beyond its own closure.
// A non-Keep mutation is committed even if err is non-nil.
type UpdateFunc func(room *domain.Room) (Mutation, error)

// RoomStore is the document store holding one record per room.
//
// Update is the only read-modify-write primitive and must be serializable per
// room: two concurrent Updates on the same code never both see the same version.
type RoomStore interface {
	// Create fails with domain.ErrConflict when the code is taken.
	Create(ctx context.Context, room *domain.Room) error
	// Get fails with domain.ErrNotFound when the room does not exist.
	Get(ctx context.Context, code domain.RoomCode) (*domain.Room, error)
	// Update returns the committed document, or nil when it was deleted.
	// fn is not called when the room does not exist.
	Update(ctx context.Context, code domain.RoomCode, fn UpdateFunc) (*domain.Room, error)
	Close() error
}

// Publisher puts events on the channel bus. Delivery is at-most-once.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Deliverer hands an event received from the bus to local subscribers.
type Deliverer interface {
	Deliver(ev Event)
}
