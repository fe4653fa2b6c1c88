package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type previewQuery struct {
	URL string `form:"url" binding:"required,max=2048"`
}

func (r *Router) linkPreview(c *gin.Context) {
	var q previewQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, bindError(err))
		return
	}
	preview, err := r.svc.Previews.Fetch(c.Request.Context(), q.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}
