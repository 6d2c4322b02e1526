package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/ethaccount/userop/src/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

func SetMiddlewares(ctx context.Context, ginRouter *gin.Engine) {
	ginRouter.Use(LoggerMiddleware(ctx))
}

// LoggerMiddleware puts a request-scoped logger into the request context and logs the
// outcome of every request.
func LoggerMiddleware(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		zlog := zerolog.Ctx(ctx).With().
			Str("request_id", requestID).
			Str("path", c.FullPath()).
			Str("method", c.Request.Method).
			Logger()
		c.Request = c.Request.WithContext(zlog.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		zlog.Debug().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

// SharedSecretMiddleware validates the X-API-Secret header
func SharedSecretMiddleware(apiSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get the secret from request header
		providedSecret := c.GetHeader("X-API-Secret")

		// Check if secret is provided
		if providedSecret == "" {
			err := domain.NewError(
				domain.ErrorCodeAuthNotAuthenticated,
				errors.New("missing API secret header"),
				domain.WithMsg("Missing API secret"),
			)
			respondWithError(c, err)
			return
		}

		// Validate the secret
		if subtle.ConstantTimeCompare([]byte(providedSecret), []byte(apiSecret)) != 1 {
			err := domain.NewError(
				domain.ErrorCodeAuthNotAuthenticated,
				errors.New("invalid API secret provided"),
				domain.WithMsg("Invalid API secret"),
			)
			respondWithError(c, err)
			return
		}

		c.Next()
	}
}
