package app

import "github.com/0Azuree/Ledeqth-sub000/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Policy decides what happens to a subscriber whose send queue is full.
type Policy interface {
	OnBackPressure(channel string, sub core.Subscriber) BackpressureAction
}

// SimplePolicy disconnects slow sockets; the client reconnects and resyncs from a snapshot.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(string, core.Subscriber) BackpressureAction {
	return KickMember
}

// LenientPolicy drops the frame and keeps the socket.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(string, core.Subscriber) BackpressureAction {
	return DropFrame
}

// PolicyByName maps a config value to a policy; unknown names get SimplePolicy.
func PolicyByName(name string) Policy {
	if name == "drop" {
		return LenientPolicy{}
	}
	return SimplePolicy{}
}
