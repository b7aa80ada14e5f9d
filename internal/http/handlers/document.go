package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/curriculum-backend/internal/curriculum/render"
	"github.com/yungbote/curriculum-backend/internal/http/response"
	"github.com/yungbote/curriculum-backend/internal/platform/apierr"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

// DocumentSource opens rendered documents by bare file name.
type DocumentSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

type DocumentHandler struct {
	log  *logger.Logger
	docs DocumentSource
}

func NewDocumentHandler(log *logger.Logger, docs DocumentSource) *DocumentHandler {
	return &DocumentHandler{
		log:  log.With("handler", "DocumentHandler"),
		docs: docs,
	}
}

func (h *DocumentHandler) Download(c *gin.Context) {
	name := c.Param("filename")
	if !render.ValidName(name) {
		response.RespondAPIError(c, documentError(render.ErrInvalidName))
		return
	}
	rc, err := h.docs.Open(c.Request.Context(), name)
	if err != nil {
		apiErr := documentError(err)
		if apiErr.Status >= http.StatusInternalServerError {
			h.log.Error("open document failed", "error", err, "file", name)
		}
		response.RespondAPIError(c, apiErr)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.log.Warn("document download interrupted", "error", err, "file", name)
	}
}

func documentError(err error) *apierr.Error {
	switch {
	case errors.Is(err, render.ErrInvalidName):
		return apierr.BadRequest("invalid_filename", err)
	case errors.Is(err, render.ErrNotFound):
		return apierr.NotFound("document_not_found", err)
	}
	return apierr.New(http.StatusInternalServerError, "document_unavailable", errors.New("document unavailable"))
}
