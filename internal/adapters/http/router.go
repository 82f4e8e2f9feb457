package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/signal"
	"github.com/0Azuree/Ledeqth-sub000/internal/app/orch"
	"github.com/0Azuree/Ledeqth-sub000/internal/auth"
	"github.com/0Azuree/Ledeqth-sub000/internal/config"
)

type Deps struct {
	Orch   *orch.Orchestrator
	Tokens *auth.TokenService
	Signer *auth.ChannelSigner
	Signal *signal.SignalWSController
}

// Route prefixes. The second one keeps URLs of the static front-end working.
var prefixes = []string{"/api", "/.netlify/functions"}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidators()

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: int(cfg.Auth.TokenTTL.Seconds()), HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("RoomsSession", store))
	r.Use(IdentityMiddleware(d.Tokens))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	h := &handlers{cfg: cfg, deps: d}
	for _, p := range prefixes {
		api := r.Group(p)
		api.GET("/health", h.health)
		api.POST("/identity", h.identity)
		api.POST("/createRoom", h.createRoom)
		api.POST("/joinRoom", h.joinRoom)
		api.POST("/leaveRoom", h.leaveRoom)
		api.POST("/adminCommand", h.adminCommand)
		api.POST("/channelAuth", h.channelAuth)
		api.GET("/rooms/:code", h.room)
		if d.Signal != nil {
			api.GET("/ws", func(c *gin.Context) {
				user, ok := wsIdentity(c, cfg.Auth.RequireToken)
				if !ok {
					unauthorized(c, "Identity required.")
					return
				}
				log.Info().Str("module", "adapters.http").Str("user", string(user.ID)).Msg("ws endpoint hit")
				d.Signal.HandleSignal(ctx, c, user)
			})
		}
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Strs("prefixes", prefixes).Msg("router setup")
	return r
}
