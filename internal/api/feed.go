package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/underpines/pines/internal/identity"
)

type feedQuery struct {
	Scope string `form:"scope"`
}

func (r *Router) getFeed(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}
	var q feedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, bindError(err))
		return
	}
	result, err := r.svc.Feed.Compose(c.Request.Context(), identity.CallerID(c), q.Scope, p.Cursor, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
