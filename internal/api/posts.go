package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/underpines/pines/internal/identity"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/posts"
)

type mediaRequest struct {
	Type       string `json:"type"`
	URL        string `json:"url"`
	MediumURL  string `json:"mediumUrl"`
	SmallURL   string `json:"smallUrl"`
	PosterURL  string `json:"posterUrl"`
	Width      int    `json:"width" binding:"min=0"`
	Height     int    `json:"height" binding:"min=0"`
	Bytes      int64  `json:"bytes" binding:"min=0"`
	DurationMS *int   `json:"durationMs" binding:"omitempty,min=0"`
	AltText    string `json:"altText" binding:"max=1000"`
}

// createPostRequest leaves body, visibility and media checks to the post service so the
// error codes stay the same for every caller.
type createPostRequest struct {
	Body       string         `json:"body"`
	Visibility string         `json:"visibility"`
	GroupID    *string        `json:"groupId" binding:"omitempty,max=36"`
	Imported   bool           `json:"imported"`
	Media      []mediaRequest `json:"media" binding:"dive"`
}

type reactionRequest struct {
	Emoji string `json:"emoji" binding:"required,emoji"`
}

func (m mediaRequest) model() models.Media {
	return models.Media{
		Type:       m.Type,
		URL:        m.URL,
		MediumURL:  m.MediumURL,
		SmallURL:   m.SmallURL,
		PosterURL:  m.PosterURL,
		Width:      m.Width,
		Height:     m.Height,
		Bytes:      m.Bytes,
		DurationMS: m.DurationMS,
		AltText:    m.AltText,
	}
}

func (r *Router) createPost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	media := make([]models.Media, len(req.Media))
	for i, m := range req.Media {
		media[i] = m.model()
	}

	post, err := r.svc.Posts.CreatePost(c.Request.Context(), posts.NewPost{
		AuthorID:   identity.CallerID(c),
		Body:       req.Body,
		Media:      media,
		Visibility: req.Visibility,
		GroupID:    req.GroupID,
		Imported:   req.Imported,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (r *Router) getPost(c *gin.Context) {
	post, err := r.svc.Posts.GetPost(c.Request.Context(), c.Param("id"), identity.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (r *Router) listUserPosts(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := r.svc.Posts.ListByAuthor(c.Request.Context(), c.Param("id"), identity.CallerID(c), p.Cursor, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) deletePost(c *gin.Context) {
	if err := r.svc.Posts.SoftDeletePost(c.Request.Context(), c.Param("id"), identity.CallerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) likePost(c *gin.Context) {
	result, err := r.svc.Posts.ToggleLike(c.Request.Context(), c.Param("id"), identity.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) sharePost(c *gin.Context) {
	n, err := r.svc.Posts.IncrementShareCount(c.Request.Context(), c.Param("id"), identity.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shareCount": n})
}

func (r *Router) reactPost(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	state, err := r.svc.Posts.SetReaction(c.Request.Context(), c.Param("id"), identity.CallerID(c), req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (r *Router) unreactPost(c *gin.Context) {
	state, err := r.svc.Posts.ClearReaction(c.Request.Context(), c.Param("id"), identity.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}
