package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

// CreateRoom fails with Conflict when the code is taken; the caller picks a new one.
func (o *Orchestrator) CreateRoom(ctx context.Context, code domain.RoomCode, user domain.User) (*domain.Room, error) {
	room, err := core.NewRoom(code, user, o.now())
	if err != nil {
		return nil, err
	}
	if err := o.Store.Create(ctx, room); err != nil {
		return nil, err
	}
	log.Info().Str("module", "orch").Str("room", string(code)).Str("owner", string(user.ID)).Msg("room created")
	return room, nil
}

func (o *Orchestrator) JoinRoom(ctx context.Context, code domain.RoomCode, user domain.User) (*domain.Room, error) {
	if !code.Valid() {
		return nil, domain.Errorf(domain.KindBadRequest, "Invalid room code.")
	}
	var res core.JoinResult
	saved, err := o.Store.Update(ctx, code, func(r *domain.Room) (core.Mutation, error) {
		var (
			mut core.Mutation
			err error
		)
		res, mut, err = core.Join(r, user, o.now())
		if res.Room != nil {
			*r = *res.Room
		}
		return mut, err
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindForbidden {
			log.Info().Str("module", "orch").Str("room", string(code)).Str("user", string(user.ID)).Msg("join refused")
		}
		return nil, err
	}
	if !res.Joined {
		return saved, nil
	}

	log.Info().Str("module", "orch").Str("room", string(code)).Str("user", string(user.ID)).Msg("member joined")
	// The joiner has no subscription yet; the announcement is for the others.
	o.announce(ctx, domain.Notification{
		Action:         domain.ActionJoin,
		Message:        fmt.Sprintf("%s joined the room.", res.Member.Username),
		RoomCode:       code,
		ActorID:        user.ID,
		TargetIDs:      []domain.UserID{user.ID},
		TargetUsername: res.Member.Username,
	})
	o.watch(ctx, code, saved)
	return saved, nil
}

// LeaveRoom publishes exactly one of leave, owner_transfer or room_closed.
func (o *Orchestrator) LeaveRoom(ctx context.Context, code domain.RoomCode, userID domain.UserID) (string, error) {
	if !code.Valid() {
		return "", domain.Errorf(domain.KindBadRequest, "Invalid room code.")
	}
	var res core.LeaveResult
	saved, err := o.Store.Update(ctx, code, func(r *domain.Room) (core.Mutation, error) {
		var (
			mut core.Mutation
			err error
		)
		res, mut, err = core.Leave(r, userID)
		if res.Room != nil {
			*r = *res.Room
		}
		return mut, err
	})
	if err != nil {
		return "", err
	}

	n := domain.Notification{
		Action:         domain.ActionLeave,
		Message:        fmt.Sprintf("%s left the room.", res.Departed.Username),
		RoomCode:       code,
		ActorID:        userID,
		TargetIDs:      []domain.UserID{userID},
		TargetUsername: res.Departed.Username,
	}
	switch {
	case res.Closed:
		n.Action = domain.ActionRoomClosed
		n.Message = fmt.Sprintf("%s left and the room was closed.", res.Departed.Username)
	case res.NewOwner != nil:
		n.Action = domain.ActionOwnerTransfer
		n.NewOwnerID = res.NewOwner.UserID
		n.Message = fmt.Sprintf("%s left. %s is now the owner.", res.Departed.Username, res.NewOwner.Username)
	}
	log.Info().Str("module", "orch").Str("room", string(code)).Str("user", string(userID)).Str("action", string(n.Action)).Msg("member left")

	pubErr := o.notify(ctx, n)
	o.watch(ctx, code, saved)
	if pubErr != nil {
		return "", pubErr
	}
	return fmt.Sprintf("You left room %s.", code), nil
}
