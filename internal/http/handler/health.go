package handler

import (
	"context"
	"net/http"
	"time"

	"callbridge.app/bridge/internal/http/dto"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	transcripts Pinger
	now         func() time.Time
}

func NewHealthHandler(transcripts Pinger) *HealthHandler {
	return &HealthHandler{transcripts: transcripts, now: time.Now}
}

// Health always answers 200: the bridge keeps taking calls without the
// transcript store, it only loses cross-call conflict detection.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := dto.HealthResponse{Status: "healthy", Redis: "connected", Timestamp: h.now().UTC()}
	if err := h.transcripts.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Redis = "disconnected"
	}
	c.JSON(http.StatusOK, resp)
}
