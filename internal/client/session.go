package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/app/orch"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

// View renders what the session applies. All methods are called from the
// session's single event goroutine, in delivery order.
type View interface {
	RoomChanged(room *domain.Room)
	Notified(n domain.Notification)
	Chat(m domain.ChatMessage)
	ServerError(msg string)
	Closed(reason string)
}

var ErrSubscribe = errors.New("subscription refused")

const handshakeTimeout = 10 * time.Second

// Session holds the live subscription for one joined room. Open acquires it,
// Close or an eviction releases it; either way the mirror is cleared.
type Session struct {
	User    domain.User
	Code    domain.RoomCode
	Channel string

	api    *API
	conn   *websocket.Conn
	mirror *Mirror
	view   View

	writeMu sync.Mutex
	closing atomic.Bool
	done    chan struct{}
	reason  string
}

// Open subscribes user to the channel of room, which the caller has already joined.
func Open(ctx context.Context, api *API, user domain.User, room *domain.Room, view View) (*Session, error) {
	wsURL, err := api.WebsocketURL(user)
	if err != nil {
		return nil, fmt.Errorf("ws url: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	s := &Session{
		User:    user,
		Code:    room.Code,
		Channel: room.Code.Channel(),
		api:     api,
		conn:    conn,
		mirror:  NewMirror(user.ID, room),
		view:    view,
		done:    make(chan struct{}),
	}
	if err := s.subscribe(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Info().Str("module", "client").Str("room", string(s.Code)).Str("user", string(user.ID)).Msg("subscribed")

	go s.run()
	return s, nil
}

func (s *Session) readEnvelope() (core.Envelope, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return core.Envelope{}, err
	}
	return core.DecodeEnvelope(data)
}

// subscribe runs the handshake: connection_established, channelAuth, subscribe.
func (s *Session) subscribe(ctx context.Context) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetReadDeadline(deadline)
	defer s.conn.SetReadDeadline(time.Time{})

	env, err := s.readEnvelope()
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if env.Type != core.MsgConnectionEstablished || env.SocketID == "" {
		return fmt.Errorf("handshake: unexpected %q", env.Type)
	}

	auth, err := s.api.ChannelAuth(ctx, env.SocketID, s.Channel, s.User)
	if err != nil {
		return err
	}
	if err := s.write(core.Envelope{Type: core.MsgSubscribe, Channel: s.Channel, Auth: auth}); err != nil {
		return err
	}

	for {
		env, err := s.readEnvelope()
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		switch env.Type {
		case core.MsgSubscriptionSucceeded:
			return nil
		case core.MsgSubscriptionError:
			return fmt.Errorf("%w: %s", ErrSubscribe, env.Message)
		}
	}
}

func (s *Session) write(env core.Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(env)
}

// Say sends a chat line to the other subscribers.
func (s *Session) Say(text string) error {
	data, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	return s.write(core.Envelope{Type: core.MsgClientMessage, Channel: s.Channel, Data: data})
}

func (s *Session) Room() *domain.Room { return s.mirror.Room() }

func (s *Session) Done() <-chan struct{} { return s.done }

// Reason is valid once Done is closed.
func (s *Session) Reason() string {
	<-s.done
	return s.reason
}

// Close releases the subscription and waits for the event goroutine to finish.
func (s *Session) Close() {
	if s.closing.CompareAndSwap(false, true) {
		_ = s.write(core.Envelope{Type: core.MsgUnsubscribe, Channel: s.Channel})
		_ = s.conn.Close()
	}
	<-s.done
}

// run applies frames one at a time. It is the only caller of the View.
func (s *Session) run() {
	reason := ReasonConnLost
	defer func() {
		if s.closing.CompareAndSwap(false, true) {
			_ = s.write(core.Envelope{Type: core.MsgUnsubscribe, Channel: s.Channel})
			_ = s.conn.Close()
		}
		s.mirror.Clear()
		s.reason = reason
		log.Info().Str("module", "client").Str("room", string(s.Code)).Str("reason", reason).Msg("session closed")
		if s.view != nil {
			s.view.Closed(reason)
		}
		close(s.done)
	}()

	for {
		env, err := s.readEnvelope()
		if err != nil {
			if s.closing.Load() {
				reason = ReasonClosed
			}
			return
		}
		if v := s.apply(env); v.Teardown {
			reason = v.Reason
			return
		}
	}
}

func (s *Session) apply(env core.Envelope) Verdict {
	switch env.Type {
	case core.MsgEvent:
		if env.Channel != s.Channel {
			return stay
		}
		return s.applyEvent(env.Event, env.Data)
	case core.MsgSubscriptionTerminated:
		if env.Channel == s.Channel {
			return leave(ReasonRemoved)
		}
	case core.MsgSubscriptionError:
		return leave(ReasonSubError)
	case core.MsgError:
		if s.view != nil {
			s.view.ServerError(env.Message)
		}
	}
	return stay
}

func (s *Session) applyEvent(name string, data json.RawMessage) Verdict {
	switch name {
	case core.EventRoomSnapshot:
		var snap orch.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil || snap.Room == nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad snapshot")
			return stay
		}
		v := s.mirror.ApplySnapshot(snap.Room)
		if !v.Teardown && s.view != nil {
			s.view.RoomChanged(s.mirror.Room())
		}
		return v
	case core.EventRoomDeleted:
		return s.mirror.ApplyDeleted()
	case core.EventAdminAction:
		var n domain.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad notification")
			return stay
		}
		if s.view != nil {
			s.view.Notified(n)
		}
		return s.mirror.ApplyNotification(n)
	case core.EventClientMessage:
		var m domain.ChatMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return stay
		}
		if s.view != nil {
			s.view.Chat(m)
		}
	}
	return stay
}
