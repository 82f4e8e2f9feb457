package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

func threeMembers(t *testing.T) *domain.Room {
	t.Helper()
	r := mustRoom(t, alice)
	r = mustJoin(t, r, bob, t0.Add(time.Second))
	return mustJoin(t, r, carol, t0.Add(2*time.Second))
}

func run(t *testing.T, r *domain.Room, line string) CommandResult {
	t.Helper()
	res, err := Execute(r, alice.ID, line, nil)
	require.NoError(t, err, line)
	return res
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("!KICK  Bob", nil)
	require.NoError(t, err)
	assert.Equal(t, Command{Name: "kick", Args: []string{"Bob"}}, cmd)

	cmd, err = ParseCommand("!whitelist", []string{"on", "add", "Carol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"on", "add", "Carol"}, cmd.Args)
	assert.Equal(t, "!whitelist on add Carol", cmd.String())

	for _, bad := range []string{"", "   ", "kick Bob", "!"} {
		_, err = ParseCommand(bad, nil)
		assert.True(t, errors.Is(err, domain.ErrBadRequest), bad)
	}
	assert.True(t, IsCommand("  !kick"))
	assert.False(t, IsCommand("hello !"))
}

func TestExecute_NonOwnerAlwaysForbidden(t *testing.T) {
	r := threeMembers(t)
	for _, line := range []string{"!kick Alice", "!lockroom", "!nonsense", "!", "!whitelist on", "no-prefix"} {
		_, err := Execute(r, bob.ID, line, nil)
		assert.True(t, errors.Is(err, domain.ErrForbidden), line)
	}
	_, err := Execute(r, "", "!kick Bob", nil)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestExecute_Unknown(t *testing.T) {
	_, err := Execute(threeMembers(t), alice.ID, "!dance", nil)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestExecute_KickScenario(t *testing.T) {
	r := mustJoin(t, mustRoom(t, alice), bob, t0.Add(time.Second))

	res := run(t, r, "!kick bob")
	assert.Equal(t, Save, res.Mutation)
	require.Len(t, res.Room.Members, 1)
	assert.Equal(t, alice.ID, res.Room.Members[0].UserID)
	require.NotNil(t, res.Notification)
	assert.Equal(t, domain.ActionKick, res.Notification.Action)
	assert.True(t, res.Notification.Targets(bob.ID))
	assert.Equal(t, alice.ID, res.Notification.ActorID)
	assert.Equal(t, "Bob", res.Notification.TargetUsername)
	assert.Empty(t, res.Room.BannedUsers)
}

func TestExecute_KickFailures(t *testing.T) {
	r := threeMembers(t)
	cases := map[string]error{
		"!kick":         domain.ErrBadRequest,
		"!kick alice":   domain.ErrConflict,
		"!kick Mallory": domain.ErrNotFound,
		"!ban":          domain.ErrBadRequest,
		"!ban ALICE":    domain.ErrConflict,
		"!ban Mallory":  domain.ErrNotFound,
	}
	for line, want := range cases {
		_, err := Execute(r, alice.ID, line, nil)
		assert.True(t, errors.Is(err, want), "%s: %v", line, err)
	}
}

func TestExecute_BanThenUnban(t *testing.T) {
	r := threeMembers(t)

	res := run(t, r, "!ban Bob")
	assert.Equal(t, domain.ActionBan, res.Notification.Action)
	assert.False(t, res.Room.HasMember(bob.ID))
	assert.True(t, res.Room.IsBanned(bob.ID))
	assert.NoError(t, CheckInvariants(res.Room))

	_, _, err := Join(res.Room, bob, t0.Add(time.Minute))
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	res = run(t, res.Room, "!unban BOB")
	assert.Equal(t, domain.ActionUnban, res.Notification.Action)
	assert.False(t, res.Room.IsBanned(bob.ID))

	_, err = Execute(res.Room, alice.ID, "!unban Bob", nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = Execute(res.Room, alice.ID, "!unban", nil)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestExecute_KickAllAndBanAll(t *testing.T) {
	res := run(t, threeMembers(t), "!kickall")
	assert.Equal(t, domain.ActionKickAll, res.Notification.Action)
	assert.ElementsMatch(t, []domain.UserID{bob.ID, carol.ID}, res.Notification.TargetIDs)
	assert.Equal(t, []domain.UserID{alice.ID}, res.Room.MemberIDs())
	assert.Empty(t, res.Room.BannedUsers)

	_, err := Execute(res.Room, alice.ID, "!kickall", nil)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	_, err = Execute(res.Room, alice.ID, "!banall", nil)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	res = run(t, threeMembers(t), "!banall")
	assert.Equal(t, domain.ActionBanAll, res.Notification.Action)
	assert.Equal(t, []domain.UserID{alice.ID}, res.Room.MemberIDs())
	assert.Len(t, res.Room.BannedUsers, 2)
	assert.NoError(t, CheckInvariants(res.Room))
}

func TestExecute_LockToggle(t *testing.T) {
	r := mustRoom(t, alice)

	res := run(t, r, "!lockroom")
	assert.True(t, res.Room.IsLocked)
	assert.Equal(t, domain.ActionLock, res.Notification.Action)
	_, err := Execute(res.Room, alice.ID, "!lockroom", nil)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	res = run(t, res.Room, "!UnlockRoom")
	assert.False(t, res.Room.IsLocked)
	_, err = Execute(res.Room, alice.ID, "!unlockroom", nil)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestExecute_WhitelistStatusOnly(t *testing.T) {
	r := mustRoom(t, alice)
	for _, line := range []string{"!whitelist on", "!whitelist off"} {
		res := run(t, r, line)
		assert.Equal(t, Keep, res.Mutation, line)
		assert.Nil(t, res.Notification, line)
		assert.NotEmpty(t, res.Message, line)
	}
	for _, line := range []string{"!whitelist", "!whitelist maybe", "!whitelist on add", "!whitelist on swap Bob", "!whitelist off add Bob"} {
		_, err := Execute(r, alice.ID, line, nil)
		assert.True(t, errors.Is(err, domain.ErrBadRequest), line)
	}
}

func TestExecute_WhitelistMembers(t *testing.T) {
	r := threeMembers(t)

	res := run(t, r, "!whitelist on add bob")
	assert.Equal(t, domain.ActionWhitelistAdd, res.Notification.Action)
	assert.True(t, res.Room.IsWhitelisted(bob.ID))

	_, err := Execute(res.Room, alice.ID, "!whitelist on add Bob", nil)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	_, err = Execute(res.Room, alice.ID, "!whitelist on add Mallory", nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	res = run(t, res.Room, "!whitelist on remove Bob")
	assert.Equal(t, domain.ActionWhitelistDel, res.Notification.Action)
	assert.False(t, res.Room.IsWhitelisted(bob.ID))
	_, err = Execute(res.Room, alice.ID, "!whitelist on remove Bob", nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLockWhitelistScenario(t *testing.T) {
	r := run(t, mustRoom(t, alice), "!lockroom").Room

	res, mut, err := Join(r, carol, t0.Add(time.Second))
	require.True(t, errors.Is(err, domain.ErrForbidden))
	require.Equal(t, Save, mut)
	r = res.Room

	r = run(t, r, "!whitelist on add Carol").Room
	assert.True(t, r.IsWhitelisted(carol.ID))

	res, _, err = Join(r, carol, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, res.Joined)
	assert.True(t, res.Room.HasMember(carol.ID))
}

func TestExecute_DoesNotModifyInput(t *testing.T) {
	r := threeMembers(t)
	before := r.Clone()
	run(t, r, "!banall")
	assert.Equal(t, before, r)
}
