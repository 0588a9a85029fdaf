// Package httpapi exposes threads, turns and runs over HTTP. Turns stream as
// newline-delimited JSON events.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/petasbytes/recagent/internal/logging"
	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/provider"
	"github.com/petasbytes/recagent/internal/runner"
	"github.com/petasbytes/recagent/internal/runs"
	"github.com/petasbytes/recagent/memory"
)

// Options configure a Server.
type Options struct {
	// JWTSecret enables bearer auth on /v1 when set.
	JWTSecret string
	// Credentials are keyed by provider name.
	Credentials map[string]provider.Credentials
	// AssistantID is used when a turn names none.
	AssistantID string
	Logger      *zap.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	store memory.Store
	runs  *runs.Controller
	chain *runner.Chain
	opts  Options
	log   *zap.Logger
}

func New(store memory.Store, ctl *runs.Controller, chain *runner.Chain, opts Options) *Server {
	return &Server{store: store, runs: ctl, chain: chain, opts: opts, log: logging.OrNop(opts.Logger)}
}

// Handler returns the gin engine with every route mounted.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/v1")
	if s.opts.JWTSecret != "" {
		v1.Use(jwtAuth(s.opts.JWTSecret))
	}
	v1.POST("/threads", s.createThread)
	v1.GET("/threads/:thread_id/messages", s.listMessages)
	v1.POST("/threads/:thread_id/turns", s.turn)
	v1.GET("/runs/:run_id", s.getRun)
	v1.GET("/runs/:run_id/actions", s.listActions)
	v1.POST("/runs/:run_id/cancel", s.cancelRun)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInputValidation):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, runs.ErrInvalidTransition), errors.Is(err, memory.ErrStatusConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

type createThreadRequest struct {
	ParticipantIDs []string       `json:"participant_ids"`
	MetaData       map[string]any `json:"meta_data"`
}

func (s *Server) createThread(c *gin.Context) {
	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if uid := c.GetString(userIDKey); uid != "" && len(req.ParticipantIDs) == 0 {
		req.ParticipantIDs = []string{uid}
	}
	th := model.NewThread(req.ParticipantIDs, req.MetaData)
	if err := s.store.CreateThread(c.Request.Context(), th); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, th)
}

func (s *Server) listMessages(c *gin.Context) {
	msgs, err := s.store.ListMessages(c.Request.Context(), c.Param("thread_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type turnRequest struct {
	AssistantID string `json:"assistant_id"`
	UserID      string `json:"user_id"`
	Content     string `json:"content" binding:"required"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
}

// turn runs one turn and streams its events. Errors raised before the first
// event get a regular JSON error response.
func (s *Server) turn(c *gin.Context) {
	var body turnRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := c.GetString(userIDKey)
	if userID == "" {
		userID = body.UserID
	}
	assistantID := body.AssistantID
	if assistantID == "" {
		assistantID = s.opts.AssistantID
	}

	started := false
	enc := json.NewEncoder(c.Writer)
	write := func(v any) {
		if !started {
			c.Header("Content-Type", "application/x-ndjson")
			c.Header("Cache-Control", "no-cache")
			c.Status(http.StatusOK)
			started = true
		}
		if err := enc.Encode(v); err != nil {
			s.log.Debug("stream write failed", zap.Error(err))
			return
		}
		c.Writer.Flush()
	}

	providerName := body.Provider
	if providerName == "" {
		providerName = s.chain.Settings().Provider
	}
	_, err := s.chain.Turn(c.Request.Context(), runner.TurnRequest{
		UserID:      userID,
		ThreadID:    c.Param("thread_id"),
		AssistantID: assistantID,
		Content:     body.Content,
		Credentials: s.opts.Credentials[providerName],
		Provider:    body.Provider,
		Model:       body.Model,
		Sink:        func(e runner.Event) { write(e) },
	})
	if err == nil {
		return
	}
	if !started {
		s.fail(c, err)
		return
	}
	s.log.Error("turn failed", zap.Error(err))
	write(gin.H{"type": "error", "content": err.Error()})
}

func (s *Server) getRun(c *gin.Context) {
	r, err := s.runs.Get(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) listActions(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("run_id")
	if _, err := s.runs.Get(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	actions, err := s.store.ListActions(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if actions == nil {
		actions = []model.Action{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (s *Server) cancelRun(c *gin.Context) {
	r, err := s.runs.RequestCancel(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
