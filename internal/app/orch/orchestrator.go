// Package orch runs room operations as store transactions and announces their
// outcome on the channel bus.
package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

type Orchestrator struct {
	Store core.RoomStore
	Bus   core.Publisher
	Now   func() time.Time
}

func New(store core.RoomStore, bus core.Publisher) *Orchestrator {
	return &Orchestrator{Store: store, Bus: bus, Now: time.Now}
}

// Snapshot is the payload of a room-snapshot event.
type Snapshot struct {
	Room *domain.Room `json:"roomData"`
}

// Deleted is the payload of a room-deleted event.
type Deleted struct {
	RoomCode domain.RoomCode `json:"roomCode"`
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

// notify publishes one admin-action. The caller decides whether a failure matters.
func (o *Orchestrator) notify(ctx context.Context, n domain.Notification) error {
	ev, err := core.NewEvent(n.RoomCode.Channel(), core.EventAdminAction, n)
	if err != nil {
		return domain.Internal("encode notification", err)
	}
	if err := o.Bus.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(n.RoomCode)).Str("action", string(n.Action)).Msg("publish notification")
		return domain.Internal("The change was saved but the notification could not be sent.", err)
	}
	return nil
}

// announce publishes an admin-action nobody waits on; a failure is logged at warn.
func (o *Orchestrator) announce(ctx context.Context, n domain.Notification) {
	ev, err := core.NewEvent(n.RoomCode.Channel(), core.EventAdminAction, n)
	if err == nil {
		err = o.Bus.Publish(ctx, ev)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(n.RoomCode)).Str("action", string(n.Action)).Msg("publish notification")
	}
}

// watch mirrors a committed document onto the bus. Failures are logged only.
func (o *Orchestrator) watch(ctx context.Context, code domain.RoomCode, room *domain.Room) {
	var (
		ev  core.Event
		err error
	)
	if room == nil {
		ev, err = core.NewEvent(code.Channel(), core.EventRoomDeleted, Deleted{RoomCode: code})
	} else {
		ev, err = core.NewEvent(code.Channel(), core.EventRoomSnapshot, Snapshot{Room: room})
	}
	if err == nil {
		err = o.Bus.Publish(ctx, ev)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(code)).Msg("publish snapshot")
	}
}

// IsMember backs channel authorization: only members may subscribe to a room's channel.
func (o *Orchestrator) IsMember(ctx context.Context, code domain.RoomCode, userID domain.UserID) (bool, error) {
	room, err := o.Store.Get(ctx, code)
	if domain.KindOf(err) == domain.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return room.HasMember(userID), nil
}

func (o *Orchestrator) Snapshot(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	if !code.Valid() {
		return nil, domain.Errorf(domain.KindBadRequest, "Invalid room code.")
	}
	return o.Store.Get(ctx, code)
}
