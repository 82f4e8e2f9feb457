package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/config"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

type handlers struct {
	cfg  *config.Config
	deps Deps
}

type identityRequest struct {
	Username string `json:"username" binding:"required,max=32"`
}

type roomRequest struct {
	RoomCode string `json:"roomCode" binding:"required,roomcode"`
	Username string `json:"username" binding:"required,max=32"`
	UserID   string `json:"userId" binding:"required,max=64"`
	AppID    string `json:"appId"`
}

type leaveRequest struct {
	RoomCode string `json:"roomCode" binding:"required,roomcode"`
	UserID   string `json:"userId" binding:"required,max=64"`
	Username string `json:"username"`
	AppID    string `json:"appId"`
}

type commandRequest struct {
	UserID   string   `json:"userId" binding:"required,max=64"`
	Username string   `json:"username"`
	RoomCode string   `json:"roomCode" binding:"required,roomcode"`
	Command  string   `json:"command" binding:"required"`
	Args     []string `json:"args"`
	AppID    string   `json:"appId"`
}

func (h *handlers) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.cfg.RequestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
}

// bind decodes the body and validates the optional appId. It writes the error response itself.
func (h *handlers) bind(c *gin.Context, req any, appID func() string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, bindError(err))
		return false
	}
	if id := appID(); id != "" && id != h.cfg.AppID {
		writeError(c, domain.Errorf(domain.KindBadRequest, "Unknown appId."))
		return false
	}
	return true
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// identity issues an anonymous identity and remembers it in the session cookie.
func (h *handlers) identity(c *gin.Context) {
	var req identityRequest
	if !h.bind(c, &req, func() string { return "" }) {
		return
	}
	user, err := domain.NewUser(req.Username)
	if err != nil {
		writeError(c, domain.Errorf(domain.KindBadRequest, "Invalid username: %v.", err))
		return
	}
	token, err := h.deps.Tokens.Issue(*user)
	if err != nil {
		writeError(c, domain.Internal("issue token", err))
		return
	}
	sess := sessions.Default(c)
	sess.Set(sessUserID, string(user.ID))
	sess.Set(sessUsername, user.Username)
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	log.Info().Str("module", "adapters.http").Str("user", string(user.ID)).Msg("identity issued")
	c.JSON(http.StatusOK, gin.H{"userId": user.ID, "username": user.Username, "token": token})
}

func (h *handlers) createRoom(c *gin.Context) {
	var req roomRequest
	if !h.bind(c, &req, func() string { return req.AppID }) {
		return
	}
	user := domain.User{ID: domain.UserID(req.UserID), Username: strings.TrimSpace(req.Username)}
	if !checkCaller(c, user.ID, h.cfg.Auth.RequireToken) {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	room, err := h.deps.Orch.CreateRoom(ctx, domain.RoomCode(req.RoomCode), user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Room %s created.", room.Code), "roomCode": room.Code})
}

func (h *handlers) joinRoom(c *gin.Context) {
	var req roomRequest
	if !h.bind(c, &req, func() string { return req.AppID }) {
		return
	}
	user := domain.User{ID: domain.UserID(req.UserID), Username: strings.TrimSpace(req.Username)}
	if !checkCaller(c, user.ID, h.cfg.Auth.RequireToken) {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	room, err := h.deps.Orch.JoinRoom(ctx, domain.RoomCode(req.RoomCode), user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Joined room %s.", room.Code), "roomData": room})
}

func (h *handlers) leaveRoom(c *gin.Context) {
	var req leaveRequest
	if !h.bind(c, &req, func() string { return req.AppID }) {
		return
	}
	if !checkCaller(c, domain.UserID(req.UserID), h.cfg.Auth.RequireToken) {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	msg, err := h.deps.Orch.LeaveRoom(ctx, domain.RoomCode(req.RoomCode), domain.UserID(req.UserID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *handlers) adminCommand(c *gin.Context) {
	var req commandRequest
	if !h.bind(c, &req, func() string { return req.AppID }) {
		return
	}
	if !checkCaller(c, domain.UserID(req.UserID), h.cfg.Auth.RequireToken) {
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	msg, err := h.deps.Orch.AdminCommand(ctx, domain.RoomCode(req.RoomCode), domain.UserID(req.UserID), req.Command, req.Args)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// channelAuth signs a private-channel subscription for a member of the room.
func (h *handlers) channelAuth(c *gin.Context) {
	socketID := core.SocketID(c.PostForm("socket_id"))
	channel := c.PostForm("channel_name")
	userID := domain.UserID(c.GetHeader("x-user-id"))
	if u, ok := identityOf(c); ok {
		if userID != "" && userID != u.ID {
			unauthorized(c, "x-user-id does not match your identity.")
			return
		}
		userID = u.ID
	} else if h.cfg.Auth.RequireToken {
		unauthorized(c, "Identity required.")
		return
	}
	if socketID == "" || !userID.Valid() {
		unauthorized(c, "Missing socket or user identity.")
		return
	}
	code, ok := domain.CodeFromChannel(channel)
	if !ok {
		unauthorized(c, "Unknown channel.")
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	member, err := h.deps.Orch.IsMember(ctx, code, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !member {
		log.Info().Str("module", "adapters.http").Str("user", string(userID)).Str("channel", channel).Str("username", c.GetHeader("x-username")).Msg("channel auth refused")
		unauthorized(c, "Not a member of this room.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth": h.deps.Signer.Sign(socketID, channel)})
}

func (h *handlers) room(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()
	room, err := h.deps.Orch.Snapshot(ctx, domain.RoomCode(c.Param("code")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomData": room})
}
