package httpServer

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidlink/internal/auth"
	"vidlink/pkg/models"
)

// StatsProvider exposes a link stats snapshot. Both the sender and the
// receiver satisfy it.
type StatsProvider interface {
	Stats() models.LinkStats
}

// Server wraps the status HTTP server with its dependencies.
type Server struct {
	router      *gin.Engine
	identity    string
	stats       StatsProvider
	authManager *auth.Manager
}

// New creates the status server. authManager may be nil to disable the
// token endpoint.
func New(identity string, stats StatsProvider, authManager *auth.Manager) *Server {
	s := &Server{
		identity:    identity,
		stats:       stats,
		authManager: authManager,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	router := gin.Default()

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/v1/stats", s.handleStats)
		api.POST("/v1/token", s.handleToken)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router = router
}

// Run starts the HTTP server (blocking).
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler returns the underlying handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"time":    time.Now().Unix(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	if s.stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no link running"})
		return
	}

	snap := s.stats.Stats()
	resp := models.StatsResponse{
		Identity:          s.identity,
		FramesSent:        snap.FramesSent,
		FramesReceived:    snap.FramesReceived,
		BytesSent:         snap.BytesSent,
		BytesReceived:     snap.BytesReceived,
		SegmentsSent:      snap.SegmentsSent,
		SegmentsReceived:  snap.SegmentsReceived,
		FramesDiscarded:   snap.FramesDiscarded,
		TruncatedSegments: snap.TruncatedSegments,
	}
	if !snap.LastFrameTime.IsZero() {
		resp.LastFrameTime = snap.LastFrameTime.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleToken(c *gin.Context) {
	if s.authManager == nil || !s.authManager.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "token minting not configured"})
		return
	}

	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, expiresAt, err := s.authManager.MintJoinToken(
		req.Room, req.Identity, time.Duration(req.ExpiresIn)*time.Second)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint token"})
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{
		Token:     token,
		Room:      req.Room,
		Identity:  req.Identity,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}
