package client

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

const createAttempts = 5

const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func NewRoomCode() domain.RoomCode {
	b := make([]byte, domain.RoomCodeLen)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return domain.RoomCode(b)
}

// CreateRoom creates a room under a fresh code, drawing a new one on Conflict.
func CreateRoom(ctx context.Context, api *API, user domain.User) (domain.RoomCode, error) {
	return createRoom(ctx, api, user, NewRoomCode)
}

func createRoom(ctx context.Context, api *API, user domain.User, gen func() domain.RoomCode) (domain.RoomCode, error) {
	var err error
	for range createAttempts {
		code := gen()
		err = api.CreateRoom(ctx, code, user)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return "", err
		}
		log.Debug().Str("module", "client").Str("room", string(code)).Msg("room code taken")
	}
	return "", err
}
