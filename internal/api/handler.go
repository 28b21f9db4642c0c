package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/threadbot/threadbot/internal/biz/repo"
	"github.com/threadbot/threadbot/internal/biz/usecase"
)

// Status reports the state of background components for the health check
type Status interface {
	Scanning() bool
}

// Deps holds what the admin API reads and drives
type Deps struct {
	Store    *usecase.UpdateSerializer
	Records  repo.RecordRepo
	Registry *usecase.Registry
	Stats    repo.StatsRepo // optional
	Session  *usecase.Session
	Ticker   Status // optional
}

// Server provides the admin HTTP API
type Server struct {
	Deps
	adminKey string
	logger   *zap.Logger

	server *http.Server
	addr   string
}

// GrammarView is one registered command
type GrammarView struct {
	ID           string   `json:"id"`
	Category     string   `json:"category"`
	Name         string   `json:"name"`
	Syntax       string   `json:"syntax"`
	Examples     []string `json:"examples,omitempty"`
	Sudo         bool     `json:"sudo,omitempty"`
	TakesUser    bool     `json:"takes_user,omitempty"`
	Experimental bool     `json:"experimental,omitempty"`
}

// UsageView is one recorded command use
type UsageView struct {
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	UsedAt         time.Time `json:"used_at"`
}

// NewServer creates a new API server
func NewServer(deps Deps, addr, adminKey string, logger *zap.Logger) *Server {
	return &Server{
		Deps:     deps,
		adminKey: adminKey,
		logger:   logger.Named("api"),
		addr:     addr,
	}
}

// Router builds the gin engine
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)

	admin := router.Group("/api")
	admin.Use(s.requireAdminKey())
	{
		admin.GET("/conversations", s.handleConversations)
		admin.GET("/conversations/:id", s.handleConversation)
		admin.GET("/grammars", s.handleGrammars)
		admin.GET("/stats", s.handleStats)
		admin.GET("/stats/:grammar", s.handleStats)
		admin.POST("/flush", s.handleFlush)
	}
	return router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requireAdminKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin API not configured"})
			return
		}

		key := c.GetHeader("X-Admin-API-Key")
		if key == "" {
			if auth := c.GetHeader("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
				key = auth[7:]
			}
		}
		if key != s.adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":         "ok",
		"pending_writes": s.Store.PendingCount(),
	}
	if s.Session != nil {
		body["session_connected"] = s.Session.Connected()
		body["session_generation"] = s.Session.Generation()
	}
	if s.Ticker != nil {
		body["scanning"] = s.Ticker.Scanning()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleConversations(c *gin.Context) {
	ids, err := s.Records.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": ids, "count": len(ids)})
}

// handleConversation returns the record as the bot currently sees it,
// including writes not yet flushed
func (s *Server) handleConversation(c *gin.Context) {
	rec, err := s.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGrammars(c *gin.Context) {
	var views []GrammarView
	for _, cat := range s.Registry.Categories() {
		for _, g := range cat.Grammars {
			views = append(views, GrammarView{
				ID:           g.ID,
				Category:     cat.ID,
				Name:         g.PrettyName,
				Syntax:       g.Syntax,
				Examples:     g.Examples,
				Sudo:         g.Sudo,
				TakesUser:    g.UserInput.Accepts,
				Experimental: g.Experimental,
			})
		}
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleStats(c *gin.Context) {
	if s.Stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "usage statistics not enabled"})
		return
	}
	ctx := c.Request.Context()

	id := c.Param("grammar")
	if id == "" {
		id = repo.GlobalUsageKey
	} else if _, ok := s.Registry.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown grammar"})
		return
	}

	count, err := s.Stats.Count(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	body := gin.H{"grammar": id, "count": count}

	if id != repo.GlobalUsageKey {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		recent, err := s.Stats.Recent(ctx, id, limit)
		if err != nil {
			s.writeError(c, err)
			return
		}
		views := make([]UsageView, 0, len(recent))
		for _, r := range recent {
			views = append(views, UsageView{ConversationID: r.ConversationID, SenderID: r.SenderID, UsedAt: r.UsedAt})
		}
		body["recent"] = views
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleFlush(c *gin.Context) {
	pending := s.Store.PendingCount()
	if err := s.Store.Flush(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flushed": pending})
}

func (s *Server) writeError(c *gin.Context, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
