package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"callbridge.app/bridge/internal/http/dto"
	"callbridge.app/bridge/internal/store"
	"github.com/gin-gonic/gin"
)

type SummaryHandler struct {
	summaries store.SummaryStore
	archive   store.SummaryArchive // nil when no database is configured
}

func NewSummaryHandler(summaries store.SummaryStore, archive store.SummaryArchive) *SummaryHandler {
	return &SummaryHandler{summaries: summaries, archive: archive}
}

// List returns today's summaries, i.e. everything since the last daily reset.
func (h *SummaryHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	summaries, err := h.summaries.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "listing summaries failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list summaries"})
		return
	}

	c.JSON(http.StatusOK, dto.ToSummaryListResponse(summaries))
}

// Get looks in today's store first, then in the archive.
func (h *SummaryHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	callID := c.Param("callId")

	s, err := h.summaries.Get(ctx, callID)
	if errors.Is(err, store.ErrNotFound) && h.archive != nil {
		s, err = h.archive.Get(ctx, callID)
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, dto.ToSummaryResponse(*s))
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "summary not found"})
	default:
		slog.ErrorContext(ctx, "loading summary failed", "error", err, "summary_call_id", callID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load summary"})
	}
}

