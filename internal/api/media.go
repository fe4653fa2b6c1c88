package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/identity"
	"github.com/underpines/pines/internal/media"
)

func (r *Router) uploadImage(c *gin.Context) {
	if r.svc.Media == nil {
		respondError(c, apperr.Dependency("upload image", errMediaDisabled))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, apperr.Validation("file_required", "multipart field \"file\" is required"))
		return
	}
	if header.Size > media.MaxUploadBytes {
		respondError(c, apperr.Validation("file_too_large", "images are limited to 10 MB"))
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(c, apperr.Validation("invalid_image", "could not read upload"))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, media.MaxUploadBytes+1))
	if err != nil {
		respondError(c, apperr.Validation("invalid_image", "could not read upload"))
		return
	}

	m, err := r.svc.Media.UploadImage(c.Request.Context(), identity.CallerID(c), header.Filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}
