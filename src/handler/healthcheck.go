package handler

import (
	"context"

	"github.com/gin-gonic/gin"
)

type QueueReporter interface {
	QueueLength(ctx context.Context) (int64, error)
}

type HealthHandler struct {
	queue QueueReporter
}

func NewHealthHandler(queue QueueReporter) *HealthHandler {
	return &HealthHandler{queue: queue}
}

type HealthResponse struct {
	Message     string `json:"message"`
	QueueLength *int64 `json:"queueLength,omitempty"`
}

// HealthCheck godoc
// @Summary Health check endpoint
// @Description Check if the service is running and report the submission queue length
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} StandardResponse{data=HealthResponse}
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response := HealthResponse{Message: "ok"}

	length, err := h.queue.QueueLength(c.Request.Context())
	if err == nil {
		response.QueueLength = &length
	}

	respondWithSuccess(c, response)
}
