package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datopian/flowmanager/usecase"
)

type UpdateHandler struct {
	reducer *usecase.StatusReducer
	logger  *slog.Logger
}

func NewUpdateHandler(reducer *usecase.StatusReducer, logger *slog.Logger) *UpdateHandler {
	return &UpdateHandler{reducer: reducer, logger: logger.With("component", "update_handler")}
}

type updateRequest struct {
	PipelineID string         `json:"pipeline_id" binding:"required"`
	Event      string         `json:"event"`
	Success    bool           `json:"success"`
	Errors     []string       `json:"errors"`
	Log        []string       `json:"log"`
	Stats      map[string]any `json:"stats"`
}

// Update implements the POST /update endpoint of spec.md §6, the wire
// shape the Runner posts a pipeline-status callback through.
func (h *UpdateHandler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.reducer.Update(c.Request.Context(), usecase.PipelineEvent{
		PipelineID: req.PipelineID,
		State:      wireState(req.Event, req.Success),
		Errors:     req.Errors,
		Stats:      req.Stats,
		Logs:       req.Log,
	})
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "update failed", "pipeline_id", req.PipelineID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": nullableString(string(result.Status)),
		"id":     nullableString(result.FlowID),
		"errors": nonNilStrings(result.Errors),
	})
}

// wireState maps the HTTP body's {event, success} pair onto the
// QUEUED/INPROGRESS/SUCCESS/FAILED vocabulary the reducer expects
// (spec.md §4.D).
func wireState(event string, success bool) string {
	switch {
	case event == "queue":
		return "QUEUED"
	case event != "finish":
		return "INPROGRESS"
	case success:
		return "SUCCESS"
	default:
		return "FAILED"
	}
}
