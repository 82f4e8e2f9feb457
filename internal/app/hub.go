package app

import (
	"context"
	"encoding/json"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
	"github.com/rs/zerolog/log"
)

// Hub fans bus events out to the sockets subscribed on this instance.
// It is also the Publisher of a single-instance deployment.
type Hub struct {
	Registry *Registry
	Policy   Policy
}

func NewHub(policy Policy) *Hub {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Hub{Registry: NewRegistry(), Policy: policy}
}

var _ core.Publisher = (*Hub)(nil)
var _ core.Deliverer = (*Hub)(nil)

func (h *Hub) Publish(_ context.Context, ev core.Event) error {
	h.Deliver(ev)
	return nil
}

// Deliver never blocks. Sockets whose users are targeted by an evicting admin
// action lose the subscription after the notification is queued, and a deleted
// room's channel is emptied. Subscriptions not admitted yet queue the frame.
func (h *Hub) Deliver(ev core.Event) {
	frame, err := core.EventFrame(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("channel", ev.Channel).Msg("encode event")
		return
	}
	evict := evictionTargets(ev)
	closing := ev.Name == core.EventRoomDeleted

	targets := h.Registry.targets(ev.Channel)
	for _, t := range targets {
		if ev.ExcludeSocket != "" && t.sub.SocketID() == ev.ExcludeSocket {
			continue
		}
		queued, err := t.state.offer(t.sub.Signal(), frame)
		if err != nil {
			if queued {
				// Overflow before admission: the subscribe is refused instead.
				h.Registry.Unsubscribe(t.sub.SocketID(), ev.Channel)
				continue
			}
			h.onBackpressure(ev.Channel, t.sub, err)
			continue
		}
		if closing || evict(t.sub.UserID()) {
			h.terminate(ev.Channel, t.sub, !queued)
		}
	}
	log.Debug().Str("module", "app.hub").Str("channel", ev.Channel).Str("event", ev.Name).Int("subscribers", len(targets)).Msg("delivered")
}

func evictionTargets(ev core.Event) func(domain.UserID) bool {
	none := func(domain.UserID) bool { return false }
	if ev.Name != core.EventAdminAction {
		return none
	}
	var n domain.Notification
	if err := json.Unmarshal(ev.Data, &n); err != nil {
		log.Warn().Err(err).Str("module", "app.hub").Msg("admin-action payload")
		return none
	}
	if !n.Action.Evicts() {
		return none
	}
	return n.Targets
}

// terminate drops the subscription. Only an admitted one is told; a held
// subscribe fails in Admit instead.
func (h *Hub) terminate(channel string, sub core.Subscriber, announce bool) {
	if !h.Registry.Unsubscribe(sub.SocketID(), channel) || !announce {
		return
	}
	frame, err := core.Envelope{Type: core.MsgSubscriptionTerminated, Channel: channel}.Encode()
	if err == nil {
		_ = sub.Signal().TrySend(frame)
	}
	log.Info().Str("module", "app.hub").Str("sid", string(sub.SocketID())).Str("channel", channel).Msg("subscription terminated")
}

func (h *Hub) onBackpressure(channel string, sub core.Subscriber, cause error) {
	action := h.Policy.OnBackPressure(channel, sub)
	logger := log.Warn().Err(cause).Str("module", "app.hub").Str("sid", string(sub.SocketID())).Str("channel", channel).Stringer("action", action)
	switch action {
	case KickMember:
		logger.Msg("kicking slow socket")
		h.Registry.Cancel(sub.SocketID())
		h.Registry.Unbind(sub.SocketID())
		sub.Signal().Close()
	case DropFrame, MarkSlow:
		logger.Msg("dropped frame")
	default:
		logger.Msg("send failed")
	}
}
