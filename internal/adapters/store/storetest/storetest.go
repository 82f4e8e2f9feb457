// Package storetest is the behavioural contract every core.RoomStore must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) core.RoomStore

// Millisecond precision survives every backend.
var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// EnvOrSkip returns the value of key or skips the test.
func EnvOrSkip(t *testing.T, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set", key)
	}
	return v
}

func user(i int) domain.User {
	return domain.User{ID: domain.UserID(fmt.Sprintf("U%d", i)), Username: fmt.Sprintf("user%d", i)}
}

func newRoom(t *testing.T, code domain.RoomCode) *domain.Room {
	t.Helper()
	r, err := core.NewRoom(code, user(1), base)
	require.NoError(t, err)
	return r
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return c
}

// Run executes the contract against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, factory(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, factory(t)) })
	t.Run("UpdateMutations", func(t *testing.T) { testUpdateMutations(t, factory(t)) })
	t.Run("UpdateErrorCommits", func(t *testing.T) { testUpdateErrorCommits(t, factory(t)) })
	t.Run("ConcurrentJoins", func(t *testing.T) { testConcurrentJoins(t, factory(t)) })
	t.Run("ConcurrentLeaves", func(t *testing.T) { testConcurrentLeaves(t, factory(t)) })
}

func assertSameRoom(t *testing.T, want, got *domain.Room) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.Code, got.Code)
	assert.Equal(t, want.OwnerID, got.OwnerID)
	assert.Equal(t, want.IsLocked, got.IsLocked)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", want.CreatedAt, got.CreatedAt)
	require.Len(t, got.Members, len(want.Members))
	for i := range want.Members {
		assert.Equal(t, want.Members[i].UserID, got.Members[i].UserID)
		assert.Equal(t, want.Members[i].Username, got.Members[i].Username)
		assert.True(t, want.Members[i].JoinTime.Equal(got.Members[i].JoinTime))
	}
	assert.ElementsMatch(t, want.BannedUsers, got.BannedUsers)
	assert.ElementsMatch(t, want.WhitelistedUsers, got.WhitelistedUsers)
	assert.ElementsMatch(t, want.Knocks, got.Knocks)
}

func testCreateGet(t *testing.T, s core.RoomStore) {
	c := ctx(t)
	r := newRoom(t, "ABCDE")
	require.NoError(t, s.Create(c, r))

	got, err := s.Get(c, "ABCDE")
	require.NoError(t, err)
	assertSameRoom(t, r, got)

	err = s.Create(c, newRoom(t, "ABCDE"))
	assert.True(t, errors.Is(err, domain.ErrConflict), "duplicate create: %v", err)

	_, err = s.Get(c, "ZZZZZ")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "missing get: %v", err)
}

func testUpdateMissing(t *testing.T, s core.RoomStore) {
	called := false
	_, err := s.Update(ctx(t), "QWERT", func(*domain.Room) (core.Mutation, error) {
		called = true
		return core.Save, nil
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.False(t, called)
}

func testUpdateMutations(t *testing.T, s core.RoomStore) {
	c := ctx(t)
	require.NoError(t, s.Create(c, newRoom(t, "MUTAT")))

	saved, err := s.Update(c, "MUTAT", func(r *domain.Room) (core.Mutation, error) {
		res, mut, err := core.Join(r, user(2), base.Add(time.Second))
		*r = *res.Room
		return mut, err
	})
	require.NoError(t, err)
	require.Len(t, saved.Members, 2)

	got, err := s.Get(c, "MUTAT")
	require.NoError(t, err)
	assertSameRoom(t, saved, got)

	kept, err := s.Update(c, "MUTAT", func(r *domain.Room) (core.Mutation, error) {
		r.IsLocked = true
		return core.Keep, nil
	})
	require.NoError(t, err)
	assert.False(t, kept.IsLocked, "Keep discards changes")

	deleted, err := s.Update(c, "MUTAT", func(*domain.Room) (core.Mutation, error) { return core.Delete, nil })
	require.NoError(t, err)
	assert.Nil(t, deleted)
	_, err = s.Get(c, "MUTAT")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, s.Create(c, newRoom(t, "MUTAT")), "codes are reusable after deletion")
}

func testUpdateErrorCommits(t *testing.T, s core.RoomStore) {
	c := ctx(t)
	require.NoError(t, s.Create(c, newRoom(t, "KNOCK")))
	refused := domain.Errorf(domain.KindForbidden, "locked")

	_, err := s.Update(c, "KNOCK", func(r *domain.Room) (core.Mutation, error) {
		r.Knocks = append(r.Knocks, user(9).Ref())
		return core.Save, refused
	})
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = s.Update(c, "KNOCK", func(r *domain.Room) (core.Mutation, error) {
		r.IsLocked = true
		return core.Keep, refused
	})
	assert.Error(t, err)

	got, err := s.Get(c, "KNOCK")
	require.NoError(t, err)
	assert.Equal(t, []domain.UserRef{user(9).Ref()}, got.Knocks)
	assert.False(t, got.IsLocked)
}

func testConcurrentJoins(t *testing.T, s core.RoomStore) {
	c := ctx(t)
	require.NoError(t, s.Create(c, newRoom(t, "CONCJ")))

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 2; i < n+2; i++ {
		wg.Add(1)
		go func(u domain.User, at time.Time) {
			defer wg.Done()
			_, err := s.Update(c, "CONCJ", func(r *domain.Room) (core.Mutation, error) {
				res, mut, err := core.Join(r, u, at)
				if res.Room != nil {
					*r = *res.Room
				}
				return mut, err
			})
			errs <- err
		}(user(i), base.Add(time.Duration(i)*time.Millisecond))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(c, "CONCJ")
	require.NoError(t, err)
	assert.Len(t, got.Members, n+1)
	assert.NoError(t, core.CheckInvariants(got))
}

func testConcurrentLeaves(t *testing.T, s core.RoomStore) {
	c := ctx(t)
	r := newRoom(t, "CONCL")
	res, _, err := core.Join(r, user(2), base.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, s.Create(c, res.Room))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var deletes int
	for _, id := range []domain.UserID{"U1", "U2"} {
		wg.Add(1)
		go func(id domain.UserID) {
			defer wg.Done()
			var last core.Mutation
			_, err := s.Update(c, "CONCL", func(r *domain.Room) (core.Mutation, error) {
				res, mut, err := core.Leave(r, id)
				if res.Room != nil {
					*r = *res.Room
				}
				last = mut
				return mut, err
			})
			assert.NoError(t, err)
			if last == core.Delete {
				mu.Lock()
				deletes++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, deletes, "exactly one leave observes the last member")
	_, err = s.Get(c, "CONCL")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
