package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

const internalMessage = "Internal error. The room may already have changed; refresh it before retrying."

func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	msg := domain.MessageOf(err)
	if kind == domain.KindInternal {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		msg = internalMessage
	}
	c.AbortWithStatusJSON(statusOf(kind), gin.H{"message": msg})
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msg})
}

// bindError turns a binding failure into a BadRequest with a readable message.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return domain.Errorf(domain.KindBadRequest, "%s is required.", fe.Field())
		case "roomcode":
			return domain.Errorf(domain.KindBadRequest, "%s must be %d letters A-Z.", fe.Field(), domain.RoomCodeLen)
		default:
			return domain.Errorf(domain.KindBadRequest, "%s is invalid.", fe.Field())
		}
	}
	return &domain.Error{Kind: domain.KindBadRequest, Msg: "Malformed request body.", Err: fmt.Errorf("bind: %w", err)}
}
