package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/usecase"
)

type InfoHandler struct {
	info   *usecase.InfoReader
	logger *slog.Logger
}

func NewInfoHandler(info *usecase.InfoReader, logger *slog.Logger) *InfoHandler {
	return &InfoHandler{info: info, logger: logger.With("component", "info_handler")}
}

// Info implements GET /:owner/:dataset/:revision (spec.md §4.F / §6).
func (h *InfoHandler) Info(c *gin.Context) {
	owner := c.Param("owner")
	dataset := c.Param("dataset")

	selector, ok := domain.ParseRevisionSelector(c.Param("revision"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid revision selector"})
		return
	}

	result, err := h.info.Info(c.Request.Context(), owner, dataset, selector)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"id":            result.ID,
			"spec_contents": result.SpecContents,
			"modified":      result.Modified,
			"state":         result.State,
			"error_log":     nonNilStrings(result.ErrorLog),
			"logs":          nonNilStrings(result.Logs),
			"stats":         result.Stats,
			"pipelines":     result.Pipelines,
			"certified":     result.Certified,
		})
	case errors.Is(err, domain.ErrDatasetNotFound), errors.Is(err, domain.ErrRevisionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.ErrorContext(c.Request.Context(), "info failed", "owner", owner, "dataset", dataset, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
