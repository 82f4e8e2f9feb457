package core

import (
	"fmt"
	"slices"
	"time"

	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

// NewRoom builds the document written by a create request.
func NewRoom(code domain.RoomCode, owner domain.User, now time.Time) (*domain.Room, error) {
	if !code.Valid() {
		return nil, domain.Errorf(domain.KindBadRequest, "Room code must be %d letters A-Z.", domain.RoomCodeLen)
	}
	if err := checkIdentity(owner); err != nil {
		return nil, err
	}
	return &domain.Room{
		Code:             code,
		OwnerID:          owner.ID,
		Members:          []domain.Member{{UserID: owner.ID, Username: owner.Username, JoinTime: now}},
		BannedUsers:      []domain.UserRef{},
		WhitelistedUsers: []domain.UserRef{},
		CreatedAt:        now,
	}, nil
}

type JoinResult struct {
	Room   *domain.Room
	Member domain.Member
	// Joined is false when the user was already a member.
	Joined bool
}

// Join admits user into room. A refusal caused by the lock is recorded as a knock,
// so the verdict can be Save together with a Forbidden error.
func Join(room *domain.Room, user domain.User, now time.Time) (JoinResult, Mutation, error) {
	if err := checkIdentity(user); err != nil {
		return JoinResult{}, Keep, err
	}
	next := room.Clone()

	if next.IsBanned(user.ID) {
		return JoinResult{Room: next}, Keep, domain.Errorf(domain.KindForbidden, "You are banned from room %s.", room.Code)
	}
	if m, ok := next.Member(user.ID); ok {
		return JoinResult{Room: next, Member: m}, Keep, nil
	}
	if next.IsLocked && !next.IsWhitelisted(user.ID) {
		mut := Keep
		if knock(next, domain.UserRef{ID: user.ID, Username: user.Username}) {
			mut = Save
		}
		return JoinResult{Room: next}, mut, domain.Errorf(domain.KindForbidden, "Room %s is locked.", room.Code)
	}

	joinTime := now
	if n := len(next.Members); n > 0 && !joinTime.After(next.Members[n-1].JoinTime) {
		joinTime = next.Members[n-1].JoinTime.Add(time.Nanosecond)
	}
	m := domain.Member{UserID: user.ID, Username: user.Username, JoinTime: joinTime}
	next.Members = append(next.Members, m)
	next.Knocks = slices.DeleteFunc(next.Knocks, func(k domain.UserRef) bool { return k.ID == user.ID })
	return JoinResult{Room: next, Member: m, Joined: true}, Save, nil
}

// knock records a refused joiner, newest last. Reports whether the list changed.
func knock(room *domain.Room, ref domain.UserRef) bool {
	if n := len(room.Knocks); n > 0 && room.Knocks[n-1] == ref {
		return false
	}
	room.Knocks = slices.DeleteFunc(room.Knocks, func(k domain.UserRef) bool { return k.ID == ref.ID })
	room.Knocks = append(room.Knocks, ref)
	if over := len(room.Knocks) - domain.MaxKnocks; over > 0 {
		room.Knocks = room.Knocks[over:]
	}
	return true
}

type LeaveResult struct {
	// Room is nil when the last member left.
	Room     *domain.Room
	Departed domain.Member
	NewOwner *domain.Member
	Closed   bool
}

// Leave removes userID. When the owner leaves, ownership passes to the remaining
// member with the earliest JoinTime; when nobody remains the room is deleted.
func Leave(room *domain.Room, userID domain.UserID) (LeaveResult, Mutation, error) {
	idx := room.MemberIndex(userID)
	if idx < 0 {
		return LeaveResult{}, Keep, domain.Errorf(domain.KindNotFound, "You are not a member of room %s.", room.Code)
	}
	next := room.Clone()
	departed := next.Members[idx]
	next.Members = slices.Delete(next.Members, idx, idx+1)

	if len(next.Members) == 0 {
		return LeaveResult{Departed: departed, Closed: true}, Delete, nil
	}

	res := LeaveResult{Room: next, Departed: departed}
	if next.OwnerID == userID {
		heir := earliest(next.Members)
		next.OwnerID = heir.UserID
		res.NewOwner = &heir
	}
	return res, Save, nil
}

func earliest(members []domain.Member) domain.Member {
	best := members[0]
	for _, m := range members[1:] {
		if m.JoinTime.Before(best.JoinTime) {
			best = m
		}
	}
	return best
}

func checkIdentity(u domain.User) error {
	if !u.ID.Valid() {
		return domain.Errorf(domain.KindBadRequest, "A valid userId is required.")
	}
	if err := domain.CheckUsername(u.Username); err != nil {
		return domain.Errorf(domain.KindBadRequest, "Invalid username: %v.", err)
	}
	return nil
}

// CheckInvariants validates a stored document.
func CheckInvariants(room *domain.Room) error {
	if len(room.Members) == 0 {
		return fmt.Errorf("room %s has no members", room.Code)
	}
	seen := make(map[domain.UserID]struct{}, len(room.Members))
	for i, m := range room.Members {
		if _, dup := seen[m.UserID]; dup {
			return fmt.Errorf("room %s: duplicate member %s", room.Code, m.UserID)
		}
		seen[m.UserID] = struct{}{}
		if i > 0 && m.JoinTime.Before(room.Members[i-1].JoinTime) {
			return fmt.Errorf("room %s: members out of join order at %d", room.Code, i)
		}
	}
	if _, ok := seen[room.OwnerID]; !ok {
		return fmt.Errorf("room %s: owner %s is not a member", room.Code, room.OwnerID)
	}
	for _, b := range room.BannedUsers {
		if _, ok := seen[b.ID]; ok {
			return fmt.Errorf("room %s: banned user %s is a member", room.Code, b.ID)
		}
	}
	return nil
}
