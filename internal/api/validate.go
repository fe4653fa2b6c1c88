package api

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/underpines/pines/internal/models"
)

var registerOnce sync.Once

// registerValidators adds the emoji tag to gin's validator engine. Timezones use the
// validator's built-in timezone tag. A failed registration panics at startup.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			panic("gin validator engine is not go-playground/validator")
		}
		if err := registerEmoji(v); err != nil {
			panic(fmt.Sprintf("register emoji validator: %v", err))
		}
	})
}

func registerEmoji(v *validator.Validate) error {
	return v.RegisterValidation("emoji", func(fl validator.FieldLevel) bool {
		return models.IsValidEmoji(fl.Field().String())
	})
}
