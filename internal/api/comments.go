package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/underpines/pines/internal/identity"
)

type createCommentRequest struct {
	Body     string `json:"body"`
	ParentID string `json:"parentId" binding:"omitempty,max=36"`
}

type editCommentRequest struct {
	Body string `json:"body"`
}

func (r *Router) listComments(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := r.svc.Comments.ListTopLevel(c.Request.Context(), c.Param("id"), identity.CallerID(c), p.Cursor, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) createComment(c *gin.Context) {
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	comment, err := r.svc.Comments.Create(c.Request.Context(), c.Param("id"), identity.CallerID(c), req.Body, req.ParentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (r *Router) listReplies(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := r.svc.Comments.ListReplies(c.Request.Context(), c.Param("id"), identity.CallerID(c), p.After, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) editComment(c *gin.Context) {
	var req editCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	comment, err := r.svc.Comments.Edit(c.Request.Context(), c.Param("id"), identity.CallerID(c), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (r *Router) deleteComment(c *gin.Context) {
	if err := r.svc.Comments.Delete(c.Request.Context(), c.Param("id"), identity.CallerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) likeComment(c *gin.Context) {
	result, err := r.svc.Comments.ToggleLike(c.Request.Context(), c.Param("id"), identity.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) reactComment(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	state, err := r.svc.Comments.SetReaction(c.Request.Context(), c.Param("id"), identity.CallerID(c), req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (r *Router) unreactComment(c *gin.Context) {
	state, err := r.svc.Comments.ClearReaction(c.Request.Context(), c.Param("id"), identity.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}
