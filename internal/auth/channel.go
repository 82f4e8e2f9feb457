package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
)

var ErrBadSignature = errors.New("bad channel signature")

// ChannelSigner produces "<key>:<hex hmac-sha256(secret, socket_id:channel)>"
// authorizations for private channels, and checks them on subscribe.
type ChannelSigner struct {
	key    string
	secret []byte
}

func NewChannelSigner(key, secret string) *ChannelSigner {
	return &ChannelSigner{key: key, secret: []byte(secret)}
}

func (s *ChannelSigner) mac(socketID core.SocketID, channel string) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(string(socketID) + ":" + channel))
	return m.Sum(nil)
}

func (s *ChannelSigner) Sign(socketID core.SocketID, channel string) string {
	return s.key + ":" + hex.EncodeToString(s.mac(socketID, channel))
}

func (s *ChannelSigner) Verify(socketID core.SocketID, channel, auth string) error {
	key, sig, ok := strings.Cut(auth, ":")
	if !ok || key != s.key {
		return ErrBadSignature
	}
	raw, err := hex.DecodeString(sig)
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal(raw, s.mac(socketID, channel)) {
		return ErrBadSignature
	}
	return nil
}
