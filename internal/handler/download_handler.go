package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-committee-api/pkg/response"
)

type documentOpener interface {
	OpenDownload(ctx context.Context, token string) (io.ReadSeekCloser, string, error)
}

// DownloadHandler streams documents addressed by signed tokens.
type DownloadHandler struct {
	documents documentOpener
}

// NewDownloadHandler constructs the handler.
func NewDownloadHandler(documents documentOpener) *DownloadHandler {
	return &DownloadHandler{documents: documents}
}

// Download godoc
// @Summary Download a signed document
// @Tags Downloads
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /downloads/{token} [get]
func (h *DownloadHandler) Download(c *gin.Context) {
	file, filename, err := h.documents.OpenDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "private, no-store")
	http.ServeContent(c.Writer, c.Request, filename, time.Time{}, file)
}
