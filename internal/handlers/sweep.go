package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/epetcare/notifier/internal/sweep"
	appErrors "github.com/epetcare/notifier/pkg/errors"
	"github.com/epetcare/notifier/pkg/response"
)

// SweepHandler exposes the administrative catch-up sweep.
type SweepHandler struct {
	sweeper *sweep.Sweeper
}

// NewSweepHandler constructs a sweep handler.
func NewSweepHandler(sweeper *sweep.Sweeper) (*SweepHandler, error) {
	if sweeper == nil {
		return nil, appErrors.New("INVALID_DEPENDENCY", "sweeper must be provided", http.StatusInternalServerError)
	}
	return &SweepHandler{sweeper: sweeper}, nil
}

// Run executes one sweep pass. Dispatch failures do not fail the request;
// the stats show them and the rows stay pending for the next pass.
func (h *SweepHandler) Run(c *gin.Context) {
	stats, err := h.sweeper.Run(c.Request.Context())
	if err != nil && stats.Processed == 0 {
		response.Error(c, err)
		return
	}

	payload := gin.H{
		"processed": stats.Processed,
		"sent":      stats.Sent,
		"failed":    stats.Failed,
		"skipped":   stats.Skipped,
	}
	if err != nil {
		payload["errors"] = err.Error()
	}

	response.Success(c, http.StatusOK, payload)
}
