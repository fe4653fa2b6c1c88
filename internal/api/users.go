package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/underpines/pines/internal/identity"
)

func (r *Router) follow(c *gin.Context) {
	state, err := r.svc.Graph.Follow(c.Request.Context(), identity.CallerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (r *Router) unfollow(c *gin.Context) {
	if err := r.svc.Graph.Unfollow(c.Request.Context(), identity.CallerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// accept approves the follow request that user :id sent to the caller
func (r *Router) accept(c *gin.Context) {
	if err := r.svc.Graph.Accept(c.Request.Context(), identity.CallerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) block(c *gin.Context) {
	if err := r.svc.Graph.Block(c.Request.Context(), identity.CallerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) unblock(c *gin.Context) {
	if err := r.svc.Graph.Unblock(c.Request.Context(), identity.CallerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
