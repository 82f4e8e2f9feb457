package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

// AdminCommand runs one owner command in a single transaction, then publishes its
// notification. A publish failure is reported as Internal although the change is committed.
func (o *Orchestrator) AdminCommand(ctx context.Context, code domain.RoomCode, callerID domain.UserID, command string, args []string) (string, error) {
	if !code.Valid() {
		return "", domain.Errorf(domain.KindBadRequest, "Invalid room code.")
	}
	var res core.CommandResult
	saved, err := o.Store.Update(ctx, code, func(r *domain.Room) (core.Mutation, error) {
		var err error
		res, err = core.Execute(r, callerID, command, args)
		if err != nil {
			return core.Keep, err
		}
		*r = *res.Room
		return res.Mutation, nil
	})
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("room", string(code)).Str("user", string(callerID)).Str("command", command).Msg("command rejected")
		return "", err
	}
	if res.Notification == nil {
		return res.Message, nil
	}

	log.Info().Str("module", "orch").Str("room", string(code)).Str("user", string(callerID)).Str("action", string(res.Notification.Action)).Msg("command applied")
	pubErr := o.notify(ctx, *res.Notification)
	o.watch(ctx, code, saved)
	if pubErr != nil {
		return "", pubErr
	}
	return res.Message, nil
}
