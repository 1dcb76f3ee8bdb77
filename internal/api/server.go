// Package api serves the rendered feed and its actions over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pders01/synfeed/internal/app"
	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/feed"
	"github.com/pders01/synfeed/internal/interaction"
)

type Server struct {
	app *app.App
}

func NewServer(a *app.App) *Server {
	return &Server{app: a}
}

func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.GET("/healthz", s.handleHealthz)

	api := engine.Group("/api")
	api.GET("/feed", s.handleFeed)
	api.POST("/feed/refresh", s.handleRefresh)
	api.GET("/stories", s.handleStories)
	api.POST("/posts", s.handleCompose)
	api.POST("/posts/:id/like", s.handleLike)
	api.POST("/posts/:id/favorite", s.handleFavorite)
	api.GET("/search", s.handleSearch)
	return engine
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		debuglog.WithFields(map[string]any{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}).Debugf("api: request")
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type feedResponse struct {
	Items        []gin.H `json:"items"`
	Shimmer      bool    `json:"shimmer"`
	Placeholders int     `json:"placeholders,omitempty"`
	Refreshing   bool    `json:"refreshing"`
	Error        string  `json:"error,omitempty"`
}

// handleFeed returns the current feed, loading it while it is empty.
func (s *Server) handleFeed(c *gin.Context) {
	ctx := c.Request.Context()
	state := s.app.Loader.State()
	if len(state.Posts) == 0 {
		if err := s.app.Refresh(ctx); err != nil {
			abort(c, err)
			return
		}
		state = s.app.Loader.State()
	}
	c.JSON(http.StatusOK, s.render(c, state))
}

func (s *Server) handleRefresh(c *gin.Context) {
	if err := s.app.Refresh(c.Request.Context()); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, s.render(c, s.app.Loader.State()))
}

func (s *Server) handleStories(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.app.Loader.LoadStories(ctx); err != nil {
		abort(c, err)
		return
	}
	strip := s.app.Presenter.StoryStrip(ctx, s.app.Loader.State().Stories)
	c.JSON(http.StatusOK, strip)
}

type composeRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleCompose(c *gin.Context) {
	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	post, err := s.app.Composer.Publish(c.Request.Context(), req.Text)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (s *Server) handleLike(c *gin.Context) {
	t, err := s.app.ToggleLike(c.Request.Context(), c.Param("id"))
	s.respondToggle(c, t, err)
}

func (s *Server) handleFavorite(c *gin.Context) {
	t, err := s.app.ToggleFavorite(c.Request.Context(), c.Param("id"))
	s.respondToggle(c, t, err)
}

func (s *Server) respondToggle(c *gin.Context, t interaction.Toggle, err error) {
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleSearch(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q required"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	viewer, _ := s.app.Viewer.CurrentUserID()
	if len(s.app.Loader.State().Posts) == 0 {
		if err := s.app.Loader.Load(c.Request.Context()); err != nil {
			abort(c, err)
			return
		}
	}
	results, err := s.app.Index.Search(q, viewer, limit)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) render(c *gin.Context, state feed.State) feedResponse {
	resp := feedResponse{Shimmer: state.Shimmer, Refreshing: state.Refreshing}
	if state.Shimmer {
		resp.Placeholders = s.app.Config.Feed.ShimmerItems
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	for _, it := range s.app.Presenter.Items(c.Request.Context(), state) {
		resp.Items = append(resp.Items, renderItem(it))
	}
	return resp
}

func renderItem(it feed.Item) gin.H {
	switch v := it.(type) {
	case feed.StoryStripItem:
		return gin.H{"kind": "stories", "stories": v.Stories}
	case feed.ComposerItem:
		return gin.H{"kind": "composer", "viewer": v.Viewer, "has_viewer": v.HasViewer}
	case feed.PostItem:
		return gin.H{"kind": "post", "post": v}
	default:
		return gin.H{"kind": "unknown"}
	}
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, feed.ErrNoViewer):
		return http.StatusUnauthorized
	case errors.Is(err, feed.ErrEmptyPost), errors.Is(err, feed.ErrPostTooLong):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrUnknownPost):
		return http.StatusNotFound
	case errors.Is(err, feed.ErrTransientFetch), errors.Is(err, interaction.ErrToggleWrite):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		debuglog.Warnf("api: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
