// Package domain contains entities without storage or transport logic.
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 32

	// Display names typed into the client.
	MinClientUsernameLen = 3
	MaxClientUsernameLen = 12
)

var (
	ErrUsernameTooLong  = errors.New("username too long")
	ErrUsernameTooShort = errors.New("username too short")
	ErrUsernameEmpty    = errors.New("username empty")
	ErrUserIDInvalid    = errors.New("user id invalid")
)

type UserID string

type User struct {
	ID       UserID `json:"userId"`
	Username string `json:"username"`
}

// NewUser issues a fresh anonymous identity.
func NewUser(username string) (*User, error) {
	username = strings.TrimSpace(username)
	if err := CheckUsername(username); err != nil {
		return nil, err
	}
	return &User{ID: UserID(uuid.NewString()), Username: username}, nil
}

// CheckUsername is the server-side rule; it is looser than the client's.
func CheckUsername(username string) error {
	if username == "" {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

// CheckClientUsername applies the 3-12 character rule shown in the join form.
func CheckClientUsername(username string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(username))
	switch {
	case n == 0:
		return ErrUsernameEmpty
	case n < MinClientUsernameLen:
		return ErrUsernameTooShort
	case n > MaxClientUsernameLen:
		return ErrUsernameTooLong
	}
	return nil
}

func (id UserID) Valid() bool {
	return id != "" && len(id) <= MaxUserIDLen
}

// UserRef is a user id with the display name seen when the reference was taken.
type UserRef struct {
	ID       UserID `json:"userId" bson:"userId"`
	Username string `json:"username" bson:"username"`
}

func (u User) Ref() UserRef { return UserRef{ID: u.ID, Username: u.Username} }
