package signal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/app"
	"github.com/0Azuree/Ledeqth-sub000/internal/app/orch"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

// handleSubscribe checks the channel signature against this socket's id, then
// re-checks membership because a signature outlives a kick.
func (ctl *SignalWSController) handleSubscribe(ctx context.Context, s *socket, env core.Envelope) {
	fail := func(reason string) {
		log.Info().Str("module", "signal").Str("sid", string(s.id)).Str("channel", env.Channel).Str("reason", reason).Msg("subscribe refused")
		ctl.send(s, core.Envelope{Type: core.MsgSubscriptionError, Channel: env.Channel, Message: reason})
	}

	code, ok := domain.CodeFromChannel(env.Channel)
	if !ok {
		fail("unknown_channel")
		return
	}
	if err := ctl.Signer.Verify(s.id, env.Channel, env.Auth); err != nil {
		fail("bad_auth")
		return
	}

	// Subscribe before reading the room: anything committed after the read
	// is queued on the held subscription and follows the snapshot.
	if !ctl.Hub.Registry.Subscribe(s.id, env.Channel) {
		fail("internal")
		return
	}
	refuse := func(reason string) {
		ctl.Hub.Registry.Unsubscribe(s.id, env.Channel)
		fail(reason)
	}

	rctx, cancel := ctl.requestContext(ctx)
	defer cancel()
	room, err := ctl.Orch.Snapshot(rctx, code)
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			log.Error().Err(err).Str("module", "signal").Str("room", string(code)).Msg("subscribe snapshot")
			refuse("internal")
			return
		}
		refuse("not_found")
		return
	}
	if !room.HasMember(s.user.ID) {
		refuse("not_member")
		return
	}

	succeeded, err := core.Envelope{Type: core.MsgSubscriptionSucceeded, Channel: env.Channel}.Encode()
	if err != nil {
		refuse("internal")
		return
	}
	ev, err := core.NewEvent(env.Channel, core.EventRoomSnapshot, orch.Snapshot{Room: room})
	if err != nil {
		refuse("internal")
		return
	}
	snap, err := core.EventFrame(ev)
	if err != nil {
		refuse("internal")
		return
	}
	if err := ctl.Hub.Registry.Admit(s.id, env.Channel, succeeded, snap); err != nil {
		if errors.Is(err, app.ErrNotSubscribed) {
			// Evicted between the read and admission.
			fail("not_member")
			return
		}
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.id)).Msg("admit")
	}
}

func (ctl *SignalWSController) handleUnsubscribe(s *socket, env core.Envelope) {
	if !ctl.Hub.Registry.Unsubscribe(s.id, env.Channel) {
		ctl.sendError(s, "not_subscribed")
	}
}

type clientText struct {
	Text string `json:"text"`
}

// handleClientMessage relays chat to the other subscribers. Nothing is stored.
func (ctl *SignalWSController) handleClientMessage(ctx context.Context, s *socket, env core.Envelope) {
	if !ctl.Hub.Registry.IsSubscribed(s.id, env.Channel) {
		ctl.sendError(s, "not_subscribed")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(string(s.user.ID)+"|"+env.Channel) {
		ctl.sendError(s, "rate_limited")
		return
	}
	var in clientText
	if err := json.Unmarshal(env.Data, &in); err != nil {
		ctl.sendError(s, "bad_payload")
		return
	}
	text := strings.TrimSpace(in.Text)
	if text == "" || utf8.RuneCountInString(text) > domain.MaxChatTextLen {
		ctl.sendError(s, "bad_text")
		return
	}

	ev, err := core.NewEvent(env.Channel, core.EventClientMessage, domain.ChatMessage{
		UserID:   s.user.ID,
		Username: s.user.Username,
		Text:     text,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return
	}
	ev.ExcludeSocket = s.id

	rctx, cancel := ctl.requestContext(ctx)
	defer cancel()
	if err := ctl.Bus.Publish(rctx, ev); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("channel", env.Channel).Msg("publish client message")
		ctl.sendError(s, "publish_failed")
	}
}
