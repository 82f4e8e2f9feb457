package client

import (
	"sync"

	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

// Teardown reasons.
const (
	ReasonClosed      = "closed"
	ReasonRoomDeleted = "room_deleted"
	ReasonKicked      = "kicked"
	ReasonBanned      = "banned"
	ReasonRemoved     = "removed"
	ReasonSubError    = "subscription_error"
	ReasonConnLost    = "connection_lost"
)

// Verdict tells the session whether an applied change ends its stay in the room.
type Verdict struct {
	Teardown bool
	Reason   string
}

var stay = Verdict{}

func leave(reason string) Verdict { return Verdict{Teardown: true, Reason: reason} }

// Mirror is the local copy of one room record as seen by user Self.
type Mirror struct {
	Self domain.UserID

	mu   sync.RWMutex
	room *domain.Room
}

func NewMirror(self domain.UserID, room *domain.Room) *Mirror {
	m := &Mirror{Self: self}
	if room != nil {
		m.room = room.Clone()
	}
	return m
}

// Room returns a copy, or nil once the mirror is cleared.
func (m *Mirror) Room() *domain.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.room == nil {
		return nil
	}
	return m.room.Clone()
}

func (m *Mirror) Clear() {
	m.mu.Lock()
	m.room = nil
	m.mu.Unlock()
}

// ApplySnapshot replaces the copy. A snapshot that no longer lists Self means
// the user was removed, whatever notification may have been missed.
func (m *Mirror) ApplySnapshot(room *domain.Room) Verdict {
	if room == nil {
		return stay
	}
	m.mu.Lock()
	m.room = room.Clone()
	m.mu.Unlock()
	if !room.HasMember(m.Self) {
		return leave(ReasonRemoved)
	}
	return stay
}

func (m *Mirror) ApplyDeleted() Verdict {
	return leave(ReasonRoomDeleted)
}

// ApplyNotification decides from a notification whether Self was evicted.
// Apart from the owner, membership in the copy changes only through snapshots.
func (m *Mirror) ApplyNotification(n domain.Notification) Verdict {
	switch n.Action {
	case domain.ActionKick:
		if n.Targets(m.Self) {
			return leave(ReasonKicked)
		}
	case domain.ActionBan:
		if n.Targets(m.Self) {
			return leave(ReasonBanned)
		}
	case domain.ActionKickAll, domain.ActionBanAll:
		if n.Targets(m.Self) || (len(n.TargetIDs) == 0 && !m.isOwner()) {
			if n.Action == domain.ActionBanAll {
				return leave(ReasonBanned)
			}
			return leave(ReasonKicked)
		}
	case domain.ActionRoomClosed:
		return leave(ReasonRoomDeleted)
	case domain.ActionOwnerTransfer:
		m.mu.Lock()
		if m.room != nil && n.NewOwnerID != "" {
			m.room.OwnerID = n.NewOwnerID
		}
		m.mu.Unlock()
	}
	return stay
}

func (m *Mirror) isOwner() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.room != nil && m.room.OwnerID == m.Self
}
