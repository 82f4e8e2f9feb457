package http

import (
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/auth"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

const (
	ctxIdentity = "identity"

	sessUserID   = "user_id"
	sessUsername = "username"
)

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	// Browsers cannot set headers on a websocket handshake.
	return c.Query("token")
}

// IdentityMiddleware resolves the caller from a bearer token or the session cookie.
// An invalid token is rejected outright; no identity at all is left to the handler.
func IdentityMiddleware(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := bearerToken(c); tok != "" && tokens != nil {
			u, err := tokens.Parse(tok)
			if err != nil {
				log.Info().Err(err).Str("module", "adapters.http").Msg("rejected token")
				unauthorized(c, "Invalid identity token.")
				return
			}
			c.Set(ctxIdentity, u)
			c.Next()
			return
		}
		sess := sessions.Default(c)
		if id, ok := sess.Get(sessUserID).(string); ok && id != "" {
			name, _ := sess.Get(sessUsername).(string)
			c.Set(ctxIdentity, domain.User{ID: domain.UserID(id), Username: name})
		}
		c.Next()
	}
}

func identityOf(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return domain.User{}, false
	}
	u, ok := v.(domain.User)
	return u, ok
}

// checkCaller fails when a known identity disagrees with the claimed user id,
// or when identities are mandatory and none was presented.
func checkCaller(c *gin.Context, claimed domain.UserID, required bool) bool {
	u, ok := identityOf(c)
	if !ok {
		if required {
			unauthorized(c, "Identity required.")
			return false
		}
		return true
	}
	if u.ID != claimed {
		unauthorized(c, "userId does not match your identity.")
		return false
	}
	return true
}

func wsIdentity(c *gin.Context, required bool) (domain.User, bool) {
	if u, ok := identityOf(c); ok {
		return u, true
	}
	if required {
		return domain.User{}, false
	}
	u := domain.User{ID: domain.UserID(c.Query("user_id")), Username: c.Query("username")}
	return u, u.ID.Valid() && domain.CheckUsername(u.Username) == nil
}
