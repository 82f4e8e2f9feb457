package redisstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/store/storetest"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

func TestContract(t *testing.T) {
	mr := miniredis.RunT(t)

	storetest.Run(t, func(t *testing.T) core.RoomStore {
		client, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
		require.NoError(t, err)
		s := New(client, "test-"+uuid.NewString(), 256)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestContractLive(t *testing.T) {
	addr := storetest.EnvOrSkip(t, "ROOMS_TEST_REDIS_ADDR")

	storetest.Run(t, func(t *testing.T) core.RoomStore {
		client, err := NewClient(context.Background(), Config{Addr: addr})
		require.NoError(t, err)
		// A fresh namespace per subtest keeps runs independent without FLUSHDB.
		s := New(client, "test-"+uuid.NewString(), 64)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func newStore(t *testing.T, retries int) (*Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	s := New(client, "rooms", retries)
	t.Cleanup(func() { _ = s.Close() })

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = other.Close() })
	return s, other
}

func seed(t *testing.T, s *Store) *domain.Room {
	t.Helper()
	room, err := core.NewRoom("ABCDE", domain.User{ID: "U1", Username: "Alice"}, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), room))
	return room
}

var bob = domain.UserRef{ID: "U2", Username: "Bob"}

func TestUpdateRetriesOnWatchConflict(t *testing.T) {
	ctx := context.Background()
	s, other := newStore(t, 4)
	room := seed(t, s)

	calls := 0
	saved, err := s.Update(ctx, room.Code, func(r *domain.Room) (core.Mutation, error) {
		calls++
		if calls == 1 {
			// Another writer locks the room between WATCH and EXEC.
			locked := room.Clone()
			locked.IsLocked = true
			require.NoError(t, other.Set(ctx, s.key(room.Code), mustJSON(t, locked), 0).Err())
		}
		r.WhitelistedUsers = append(r.WhitelistedUsers, bob)
		return core.Save, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "the first attempt lost the race and was retried")
	assert.True(t, saved.IsLocked, "the retry saw the concurrent write")
	assert.Equal(t, []domain.UserRef{bob}, saved.WhitelistedUsers)

	got, err := s.Get(ctx, room.Code)
	require.NoError(t, err)
	assert.True(t, got.IsLocked)
	assert.Equal(t, []domain.UserRef{bob}, got.WhitelistedUsers)
}

func TestUpdateGivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	s, other := newStore(t, 3)
	room := seed(t, s)

	calls := 0
	_, err := s.Update(ctx, room.Code, func(r *domain.Room) (core.Mutation, error) {
		calls++
		require.NoError(t, other.Set(ctx, s.key(room.Code), mustJSON(t, room), 0).Err())
		r.IsLocked = true
		return core.Save, nil
	})
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Equal(t, 3, calls)

	got, err := s.Get(ctx, room.Code)
	require.NoError(t, err)
	assert.False(t, got.IsLocked, "no attempt committed")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
