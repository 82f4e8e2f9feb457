package orch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/store/memstore"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Publish(_ context.Context, ev core.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func (r *recorder) notifications(t *testing.T) []domain.Notification {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, ev := range r.events {
		if ev.Name != core.EventAdminAction {
			continue
		}
		var n domain.Notification
		require.NoError(t, json.Unmarshal(ev.Data, &n))
		out = append(out, n)
	}
	return out
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, ev core.Event) error {
	return m.Called(ctx, ev).Error(0)
}

var (
	alice = domain.User{ID: "U1", Username: "Alice"}
	bob   = domain.User{ID: "U2", Username: "Bob"}
	carol = domain.User{ID: "U3", Username: "Carol"}
)

func newOrch() (*Orchestrator, *recorder) {
	rec := &recorder{}
	o := New(memstore.New(), rec)
	tick := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	o.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	return o, rec
}

func TestCreateRoom(t *testing.T) {
	o, _ := newOrch()
	ctx := context.Background()

	room, err := o.CreateRoom(ctx, "ABCDE", alice)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, room.OwnerID)

	_, err = o.CreateRoom(ctx, "ABCDE", bob)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	_, err = o.CreateRoom(ctx, "abc", bob)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestKickScenario(t *testing.T) {
	o, rec := newOrch()
	ctx := context.Background()
	_, err := o.CreateRoom(ctx, "ABCDE", alice)
	require.NoError(t, err)
	_, err = o.JoinRoom(ctx, "ABCDE", bob)
	require.NoError(t, err)
	rec.reset()

	msg, err := o.AdminCommand(ctx, "ABCDE", alice.ID, "!kick Bob", nil)
	require.NoError(t, err)
	assert.Contains(t, msg, "Bob")

	room, err := o.Snapshot(ctx, "ABCDE")
	require.NoError(t, err)
	require.Len(t, room.Members, 1)
	assert.Equal(t, alice.ID, room.Members[0].UserID)
	assert.Equal(t, "Alice", room.Members[0].Username)

	ns := rec.notifications(t)
	require.Len(t, ns, 1)
	assert.Equal(t, domain.ActionKick, ns[0].Action)
	assert.True(t, ns[0].Targets(bob.ID))
	assert.Equal(t, []string{core.EventAdminAction, core.EventRoomSnapshot}, rec.names())
}

func TestNonOwnerForbidden(t *testing.T) {
	o, rec := newOrch()
	ctx := context.Background()
	_, _ = o.CreateRoom(ctx, "ABCDE", alice)
	_, _ = o.JoinRoom(ctx, "ABCDE", bob)
	rec.reset()

	for _, line := range []string{"!kick Alice", "!lockroom", "!whatever", "!whitelist on"} {
		_, err := o.AdminCommand(ctx, "ABCDE", bob.ID, line, nil)
		assert.True(t, errors.Is(err, domain.ErrForbidden), line)
	}
	assert.Empty(t, rec.names())

	_, err := o.AdminCommand(ctx, "ZZZZZ", alice.ID, "!lockroom", nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLockWhitelistScenario(t *testing.T) {
	o, _ := newOrch()
	ctx := context.Background()
	_, _ = o.CreateRoom(ctx, "ABCDE", alice)

	_, err := o.AdminCommand(ctx, "ABCDE", alice.ID, "!lockroom", nil)
	require.NoError(t, err)

	_, err = o.JoinRoom(ctx, "ABCDE", carol)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = o.AdminCommand(ctx, "ABCDE", alice.ID, "!whitelist", []string{"on", "add", "Carol"})
	require.NoError(t, err)

	room, err := o.JoinRoom(ctx, "ABCDE", carol)
	require.NoError(t, err)
	assert.True(t, room.HasMember(carol.ID))
	assert.Empty(t, room.Knocks)
}

func TestLeaveChain(t *testing.T) {
	o, rec := newOrch()
	ctx := context.Background()
	_, _ = o.CreateRoom(ctx, "ABCDE", alice)
	_, _ = o.JoinRoom(ctx, "ABCDE", bob)
	rec.reset()

	_, err := o.LeaveRoom(ctx, "ABCDE", alice.ID)
	require.NoError(t, err)
	room, err := o.Snapshot(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, room.OwnerID)
	assert.Len(t, room.Members, 1)

	_, err = o.LeaveRoom(ctx, "ABCDE", bob.ID)
	require.NoError(t, err)
	_, err = o.Snapshot(ctx, "ABCDE")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = o.JoinRoom(ctx, "ABCDE", carol)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	ns := rec.notifications(t)
	require.Len(t, ns, 2)
	assert.Equal(t, domain.ActionOwnerTransfer, ns[0].Action)
	assert.Equal(t, bob.ID, ns[0].NewOwnerID)
	assert.Equal(t, domain.ActionRoomClosed, ns[1].Action)
	assert.Equal(t, core.EventRoomDeleted, rec.names()[len(rec.names())-1])

	_, err = o.LeaveRoom(ctx, "ABCDE", bob.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLeaveNotMember(t *testing.T) {
	o, _ := newOrch()
	ctx := context.Background()
	_, _ = o.CreateRoom(ctx, "ABCDE", alice)
	_, err := o.LeaveRoom(ctx, "ABCDE", bob.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestIdempotentJoin(t *testing.T) {
	o, rec := newOrch()
	ctx := context.Background()
	_, _ = o.CreateRoom(ctx, "ABCDE", alice)

	_, err := o.JoinRoom(ctx, "ABCDE", bob)
	require.NoError(t, err)
	n := len(rec.names())
	room, err := o.JoinRoom(ctx, "ABCDE", bob)
	require.NoError(t, err)
	assert.Len(t, room.Members, 2)
	assert.Len(t, rec.names(), n, "rejoin publishes nothing")
}

func TestPublishFailureKeepsCommit(t *testing.T) {
	pub := &mockPublisher{}
	o := New(memstore.New(), pub)
	ctx := context.Background()
	_, err := o.CreateRoom(ctx, "ABCDE", alice)
	require.NoError(t, err)

	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus down"))

	_, err = o.AdminCommand(ctx, "ABCDE", alice.ID, "!lockroom", nil)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))

	room, err := o.Snapshot(ctx, "ABCDE")
	require.NoError(t, err)
	assert.True(t, room.IsLocked, "mutation stays committed")

	// Join announcements are best-effort.
	_, err = o.AdminCommand(ctx, "ABCDE", alice.ID, "!unlockroom", nil)
	assert.Error(t, err)
	_, err = o.JoinRoom(ctx, "ABCDE", bob)
	assert.NoError(t, err)
	pub.AssertCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestJoinAnnounceFailureLogsWarn(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	pub := &mockPublisher{}
	o := New(memstore.New(), pub)
	ctx := context.Background()
	_, err := o.CreateRoom(ctx, "ABCDE", alice)
	require.NoError(t, err)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus down"))

	room, err := o.JoinRoom(ctx, "ABCDE", bob)
	require.NoError(t, err)
	assert.True(t, room.HasMember(bob.ID))

	var announced bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.NotEqual(t, "error", entry["level"], line)
		if entry["message"] == "publish notification" {
			announced = true
			assert.Equal(t, "warn", entry["level"])
			assert.Equal(t, string(domain.ActionJoin), entry["action"])
		}
	}
	assert.True(t, announced)
}

func TestStatusCommandPublishesNothing(t *testing.T) {
	o, rec := newOrch()
	ctx := context.Background()
	_, _ = o.CreateRoom(ctx, "ABCDE", alice)
	rec.reset()

	msg, err := o.AdminCommand(ctx, "ABCDE", alice.ID, "!whitelist off", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, msg)
	assert.Empty(t, rec.names())
}

func TestIsMember(t *testing.T) {
	o, _ := newOrch()
	ctx := context.Background()
	_, _ = o.CreateRoom(ctx, "ABCDE", alice)

	ok, err := o.IsMember(ctx, "ABCDE", alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = o.IsMember(ctx, "ABCDE", bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = o.IsMember(ctx, "ZZZZZ", alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentJoinsAndLeaves(t *testing.T) {
	o, _ := newOrch()
	ctx := context.Background()
	_, _ = o.CreateRoom(ctx, "ABCDE", alice)

	users := []domain.User{bob, carol, {ID: "U4", Username: "Dan"}, {ID: "U5", Username: "Eve"}}
	var wg sync.WaitGroup
	for _, u := range users {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(u domain.User) {
				defer wg.Done()
				_, _ = o.JoinRoom(ctx, "ABCDE", u)
			}(u)
		}
	}
	wg.Wait()

	room, err := o.Snapshot(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Len(t, room.Members, 5)
	assert.NoError(t, core.CheckInvariants(room))
}
