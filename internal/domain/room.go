package domain

import (
	"slices"
	"strings"
	"time"
)

const (
	RoomCodeLen = 5
	MaxKnocks   = 16

	ChannelPrefix = "private-room-"
)

type RoomCode string

// Valid reports whether c is exactly five letters A-Z.
func (c RoomCode) Valid() bool {
	if len(c) != RoomCodeLen {
		return false
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

// Channel is the private bus channel carrying the room's events.
func (c RoomCode) Channel() string { return ChannelPrefix + string(c) }

// CodeFromChannel is the inverse of RoomCode.Channel.
func CodeFromChannel(channel string) (RoomCode, bool) {
	rest, ok := strings.CutPrefix(channel, ChannelPrefix)
	if !ok {
		return "", false
	}
	code := RoomCode(rest)
	return code, code.Valid()
}

// Member is one entry of a room's member list.
type Member struct {
	UserID   UserID    `json:"userId" bson:"userId"`
	Username string    `json:"username" bson:"username"`
	JoinTime time.Time `json:"joinTime" bson:"joinTime"`
}

func (m Member) Ref() UserRef { return UserRef{ID: m.UserID, Username: m.Username} }

// Room is the stored document. Members stay ordered by JoinTime.
type Room struct {
	Code             RoomCode  `json:"roomCode" bson:"code"`
	OwnerID          UserID    `json:"ownerId" bson:"ownerId"`
	Members          []Member  `json:"members" bson:"members"`
	BannedUsers      []UserRef `json:"bannedUsers" bson:"bannedUsers"`
	WhitelistedUsers []UserRef `json:"whitelistedUsers" bson:"whitelistedUsers"`
	IsLocked         bool      `json:"isLocked" bson:"isLocked"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
	Knocks           []UserRef `json:"knocks,omitempty" bson:"knocks,omitempty"`
}

// Clone returns a deep copy so transitions never alias stored slices.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	out.Members = slices.Clone(r.Members)
	out.BannedUsers = slices.Clone(r.BannedUsers)
	out.WhitelistedUsers = slices.Clone(r.WhitelistedUsers)
	out.Knocks = slices.Clone(r.Knocks)
	return &out
}

func (r *Room) MemberIndex(id UserID) int {
	return slices.IndexFunc(r.Members, func(m Member) bool { return m.UserID == id })
}

func (r *Room) HasMember(id UserID) bool { return r.MemberIndex(id) >= 0 }

func (r *Room) Member(id UserID) (Member, bool) {
	if i := r.MemberIndex(id); i >= 0 {
		return r.Members[i], true
	}
	return Member{}, false
}

// FindMemberByName matches usernames case-insensitively, earliest joiner first.
func (r *Room) FindMemberByName(name string) (Member, bool) {
	for _, m := range r.Members {
		if strings.EqualFold(m.Username, name) {
			return m, true
		}
	}
	return Member{}, false
}

func (r *Room) IsBanned(id UserID) bool { return containsRef(r.BannedUsers, id) }

func (r *Room) IsWhitelisted(id UserID) bool { return containsRef(r.WhitelistedUsers, id) }

func (r *Room) MemberIDs() []UserID {
	out := make([]UserID, 0, len(r.Members))
	for _, m := range r.Members {
		out = append(out, m.UserID)
	}
	return out
}

func containsRef(refs []UserRef, id UserID) bool {
	return slices.ContainsFunc(refs, func(u UserRef) bool { return u.ID == id })
}

// FindRefByName matches a reference list case-insensitively.
func FindRefByName(refs []UserRef, name string) (UserRef, bool) {
	for _, u := range refs {
		if strings.EqualFold(u.Username, name) {
			return u, true
		}
	}
	return UserRef{}, false
}

// RoomInfo is the listing view used by the HTTP API.
type RoomInfo struct {
	Code        RoomCode `json:"roomCode"`
	MemberCount int      `json:"memberCount"`
	IsLocked    bool     `json:"isLocked"`
}
