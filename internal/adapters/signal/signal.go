package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/app"
	"github.com/0Azuree/Ledeqth-sub000/internal/app/orch"
	"github.com/0Azuree/Ledeqth-sub000/internal/auth"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const sendQueue = 64

type SignalWSController struct {
	Hub     *app.Hub
	Orch    *orch.Orchestrator
	Bus     core.Publisher
	Signer  *auth.ChannelSigner
	Limiter *RateLimiter

	ReadLimit  int64
	PingPeriod time.Duration
	Timeout    time.Duration
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// socket is one connection as the hub sees it.
type socket struct {
	id   core.SocketID
	user domain.User
	conn *WsSignalConn
}

func (s *socket) SocketID() core.SocketID         { return s.id }
func (s *socket) UserID() domain.UserID           { return s.user.ID }
func (s *socket) Signal() core.SignalConnection { return s.conn }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves one socket for user until it closes.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, user domain.User) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	s := &socket{
		id:   core.SocketID(uuid.NewString()),
		user: user,
		conn: &WsSignalConn{conn: ws, send: make(chan core.Frame, sendQueue)},
	}
	log.Info().Str("module", "signal").Str("sid", string(s.id)).Str("user", string(user.ID)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Hub.Registry.Bind(s, cancel)
	ctl.send(s, core.Envelope{Type: core.MsgConnectionEstablished, SocketID: s.id})

	go ctl.writePump(ctx, s.conn)
	go ctl.readPump(ctx, s)
}

func (ctl *SignalWSController) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctl.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ctl.Timeout)
}
