package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/underpines/pines/internal/identity"
	"github.com/underpines/pines/internal/models"
)

type markReadRequest struct {
	IDs []string `json:"ids" binding:"max=200,dive,required,max=36"`
	All bool     `json:"all"`
}

type deviceRequest struct {
	Token    string `json:"token" binding:"max=512"`
	Platform string `json:"platform"`
}

type preferencesRequest struct {
	Likes      bool   `json:"likes"`
	Comments   bool   `json:"comments"`
	Follows    bool   `json:"follows"`
	QuietStart *int   `json:"quietStart" binding:"omitempty,min=0,max=1439"`
	QuietEnd   *int   `json:"quietEnd" binding:"omitempty,min=0,max=1439"`
	Timezone   string `json:"timezone" binding:"omitempty,timezone"`
}

func (r *Router) listNotifications(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := r.svc.Notify.List(c.Request.Context(), identity.CallerID(c), p.Cursor, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) unreadCount(c *gin.Context) {
	n, err := r.svc.Notify.UnreadCount(c.Request.Context(), identity.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (r *Router) markRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	var err error
	if req.All {
		err = r.svc.Notify.MarkAllRead(c.Request.Context(), identity.CallerID(c))
	} else {
		err = r.svc.Notify.MarkRead(c.Request.Context(), identity.CallerID(c), req.IDs)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) deleteNotification(c *gin.Context) {
	if err := r.svc.Notify.Delete(c.Request.Context(), identity.CallerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) registerDevice(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	if err := r.svc.Push.RegisterDevice(c.Request.Context(), identity.CallerID(c), req.Token, req.Platform); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) unregisterDevice(c *gin.Context) {
	if err := r.svc.Push.UnregisterDevice(c.Request.Context(), identity.CallerID(c), c.Param("token")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) getPreferences(c *gin.Context) {
	pref, err := r.svc.Push.GetPreferences(c.Request.Context(), identity.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}

func (r *Router) setPreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	pref := &models.NotificationPreference{
		UserID:     identity.CallerID(c),
		Likes:      req.Likes,
		Comments:   req.Comments,
		Follows:    req.Follows,
		QuietStart: req.QuietStart,
		QuietEnd:   req.QuietEnd,
		Timezone:   req.Timezone,
	}
	if err := r.svc.Push.SetPreferences(c.Request.Context(), pref); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}
