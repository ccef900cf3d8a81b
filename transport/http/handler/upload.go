package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/usecase"
)

type UploadHandler struct {
	submission *usecase.SubmissionService
	logger     *slog.Logger
}

func NewUploadHandler(submission *usecase.SubmissionService, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{submission: submission, logger: logger.With("component", "upload_handler")}
}

// Upload implements the POST /upload endpoint of spec.md §6: the token
// arrives either as the "auth-token" header or the "jwt" query parameter.
func (h *UploadHandler) Upload(c *gin.Context) {
	token := c.GetHeader("auth-token")
	if token == "" {
		token = c.Query("jwt")
	}

	var contents domain.Spec
	if err := c.ShouldBindJSON(&contents); err != nil {
		contents = nil
	}

	result, err := h.submission.Upload(c.Request.Context(), token, contents)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "upload failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    result.Success,
		"dataset_id": nullableString(result.DatasetID),
		"flow_id":    nullableString(result.FlowID),
		"errors":     nonNilStrings(result.Errors),
	})
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNilStrings(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}
