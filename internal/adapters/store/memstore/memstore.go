// Package memstore keeps rooms in process memory. It serves single-instance
// deployments and tests.
package memstore

import (
	"context"
	"sync"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

type Store struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]*domain.Room
}

var _ core.RoomStore = (*Store)(nil)

func New() *Store {
	return &Store{rooms: make(map[domain.RoomCode]*domain.Room)}
}

func (s *Store) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return domain.Internal("create room", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.Errorf(domain.KindConflict, "Room %s already exists.", room.Code)
	}
	s.rooms[room.Code] = room.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Internal("get room", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "Room %s not found.", code)
	}
	return room.Clone(), nil
}

// Update holds the write lock across fn, which makes every update serial.
func (s *Store) Update(ctx context.Context, code domain.RoomCode, fn core.UpdateFunc) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Internal("update room", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rooms[code]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "Room %s not found.", code)
	}
	next := cur.Clone()
	mut, err := fn(next)
	switch mut {
	case core.Save:
		s.rooms[code] = next.Clone()
		return next, err
	case core.Delete:
		delete(s.rooms, code)
		return nil, err
	}
	return cur.Clone(), err
}

func (s *Store) Close() error { return nil }
