package handler

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var userOpHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Handlers groups the route handlers of the v1 API.
type Handlers struct {
	Health *HealthHandler
	UserOp *UserOpHandler
	// APISecret protects the submission endpoint when set.
	APISecret string
}

// RegisterValidators adds the custom binding validations used by request structs.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("userop_hash", func(fl validator.FieldLevel) bool {
			return userOpHashPattern.MatchString(fl.Field().String())
		})
	}
}

func RegisterRoutes(ctx context.Context, router *gin.Engine, handlers Handlers) {
	RegisterValidators()

	SetMiddlewares(ctx, router)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.Health.HealthCheck)

		userOps := v1.Group("/userops")
		userOps.POST("/hash", handlers.UserOp.Hash)
		userOps.POST("/encode", handlers.UserOp.Encode)
		userOps.POST("/build", handlers.UserOp.Build)
		userOps.GET("/:hash", handlers.UserOp.GetStatus)

		if handlers.APISecret != "" {
			userOps.POST("", SharedSecretMiddleware(handlers.APISecret), handlers.UserOp.Submit)
		} else {
			userOps.POST("", handlers.UserOp.Submit)
		}
	}
}
