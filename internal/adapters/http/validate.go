package http

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

var registerOnce sync.Once

func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("roomcode", func(fl validator.FieldLevel) bool {
			return domain.RoomCode(fl.Field().String()).Valid()
		})
	})
}
