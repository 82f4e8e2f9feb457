package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	period := ctl.PingPeriod
	if period <= 0 {
		period = 54 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, s *socket) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(s.id)).Msg("readPump closing")
		ctl.Hub.Registry.Cancel(s.id)
		ctl.Hub.Registry.Unbind(s.id)
		s.conn.Close()
	}()

	period := ctl.PingPeriod
	if period <= 0 {
		period = 54 * time.Second
	}
	// A pong is due within one ping period plus slack.
	wait := period * 10 / 9
	_ = s.conn.conn.SetReadDeadline(time.Now().Add(wait))
	s.conn.conn.SetPongHandler(func(string) error {
		return s.conn.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if ctx.Err() != nil {
			log.Info().Str("module", "signal").Str("sid", string(s.id)).Msg("readPump ctx done")
			return
		}
		_, data, err := s.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(s.id)).Msg("readPump read error")
			}
			return
		}
		_ = s.conn.conn.SetReadDeadline(time.Now().Add(wait))
		ctl.handleSignal(ctx, s, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, s *socket, data []byte) {
	env, err := core.DecodeEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(s, "bad_payload")
		return
	}

	switch env.Type {
	case core.MsgSubscribe:
		ctl.handleSubscribe(ctx, s, env)
	case core.MsgUnsubscribe:
		ctl.handleUnsubscribe(s, env)
	case core.MsgClientMessage:
		ctl.handleClientMessage(ctx, s, env)
	case core.MsgPing:
		ctl.handlePing(s)
	case core.MsgWhoAmI:
		ctl.handleWhoAmI(s)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(s, "unknown_type")
	}
}

func (ctl *SignalWSController) send(s *socket, env core.Envelope) {
	f, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	if err := s.conn.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.id)).Str("type", env.Type).Msg("send dropped")
	}
}

func (ctl *SignalWSController) sendError(s *socket, msg string) {
	ctl.send(s, core.Envelope{Type: core.MsgError, Message: msg})
}
