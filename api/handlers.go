package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"codeduel-server/auth"
	"codeduel-server/config"
	"codeduel-server/judge"
	"codeduel-server/problems"
	"codeduel-server/storage"
)

const bearerPrefix = "Bearer "

// Handler holds dependencies for the HTTP API.
type Handler struct {
	Config  *config.Config
	Store   storage.ReadStore
	Live    *storage.LiveStore
	Catalog *problems.Catalog
	Judge   judge.Judge
}

// NewHandler creates an API handler with the given dependencies.
func NewHandler(cfg *config.Config, store storage.ReadStore, live *storage.LiveStore, catalog *problems.Catalog, j judge.Judge) *Handler {
	return &Handler{
		Config:  cfg,
		Store:   store,
		Live:    live,
		Catalog: catalog,
		Judge:   j,
	}
}

// Routes registers all HTTP endpoints on the router.
func (h *Handler) Routes(r *gin.Engine) {
	r.Use(cors())

	r.GET("/health", h.Health)
	r.GET("/question", h.Question)
	r.POST("/resubmit", h.Resubmit)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/history", h.History)
		apiGroup.GET("/leaderboard", h.Leaderboard)
		apiGroup.GET("/match/:id", h.Match)
		apiGroup.GET("/match/:id/live", h.MatchLive)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// extractUserID validates the Authorization header and returns the user ID,
// or empty string on failure. The literal "dev" token maps to the fixed
// developer identity, same as the websocket entry point.
func (h *Handler) extractUserID(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "dev" {
		return "DEVELOPER"
	}
	identity, err := auth.ValidateToken(h.Config.AuthBaseURL, token)
	if err != nil {
		return ""
	}
	return identity.ID
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Question returns one problem by slug.
func (h *Handler) Question(c *gin.Context) {
	slug := c.Query("slug")
	if slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing slug"})
		return
	}
	p, ok := h.Catalog.BySlug(slug)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown question"})
		return
	}
	c.JSON(http.StatusOK, p)
}

type resubmitRequest struct {
	Slug     string `json:"slug" binding:"required"`
	Solution string `json:"solution" binding:"required"`
}

// Resubmit judges a solution outside any match. The result is not recorded;
// it exists so a player can retry a problem after a duel ended.
func (h *Handler) Resubmit(c *gin.Context) {
	if h.extractUserID(c) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}

	var req resubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slug and solution are required"})
		return
	}
	p, ok := h.Catalog.BySlug(req.Slug)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown question"})
		return
	}

	result, err := h.Judge.Score(c.Request.Context(), req.Solution, p.Body)
	if err != nil {
		slog.Warn("resubmit judge call failed", "tag", "api", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "judge unavailable"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// History returns the duel history for the authenticated user.
func (h *Handler) History(c *gin.Context) {
	userID := h.extractUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}

	list, err := h.Store.ListHistory(c.Request.Context(), userID)
	if err != nil {
		slog.Error("loading history", "tag", "api", "user", userID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// Leaderboard returns the global rating ranking.
func (h *Handler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := h.Store.ListLeaderboard(c.Request.Context(), limit, offset)
	if err != nil {
		slog.Error("loading leaderboard", "tag", "api", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Match returns a persisted match record by id.
func (h *Handler) Match(c *gin.Context) {
	m, err := h.Store.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		slog.Error("loading match", "tag", "api", "match", c.Param("id"), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load match"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// MatchLive returns the in-flight snapshot of a running match from the
// cache. Completed or unknown matches return 404.
func (h *Handler) MatchLive(c *gin.Context) {
	m, err := h.Live.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		slog.Error("loading live match", "tag", "api", "match", c.Param("id"), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load match"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live match"})
		return
	}
	c.JSON(http.StatusOK, m)
}
