package domain

import "time"

// Action tags a notification so clients can pattern-match side effects.
type Action string

const (
	ActionJoin          Action = "join"
	ActionLeave         Action = "leave"
	ActionOwnerTransfer Action = "owner_transfer"
	ActionRoomClosed    Action = "room_closed"
	ActionKick          Action = "kick"
	ActionBan           Action = "ban"
	ActionUnban         Action = "unban"
	ActionKickAll       Action = "kickall"
	ActionBanAll        Action = "banall"
	ActionLock          Action = "lockroom"
	ActionUnlock        Action = "unlockroom"
	ActionWhitelistAdd  Action = "whitelist_add"
	ActionWhitelistDel  Action = "whitelist_remove"
)

// Evicts reports whether targets of this action lose their membership.
func (a Action) Evicts() bool {
	switch a {
	case ActionKick, ActionBan, ActionKickAll, ActionBanAll:
		return true
	}
	return false
}

// Notification is the payload of an admin-action bus event.
type Notification struct {
	Action         Action   `json:"action"`
	Message        string   `json:"message"`
	RoomCode       RoomCode `json:"roomCode"`
	ActorID        UserID   `json:"actorId,omitempty"`
	TargetIDs      []UserID `json:"targetIds,omitempty"`
	TargetUsername string   `json:"targetUsername,omitempty"`
	NewOwnerID     UserID   `json:"newOwnerId,omitempty"`
}

// Targets reports whether id is named by the notification.
func (n Notification) Targets(id UserID) bool {
	for _, t := range n.TargetIDs {
		if t == id {
			return true
		}
	}
	return false
}

const MaxChatTextLen = 2000

// ChatMessage is the payload of a client-message event. It is never stored.
type ChatMessage struct {
	UserID   UserID    `json:"userId"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}
