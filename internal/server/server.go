// Package server exposes the transcription pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scribehq/scribe/internal/config"
	"github.com/scribehq/scribe/internal/job"
	"github.com/scribehq/scribe/internal/provider"
	"github.com/scribehq/scribe/internal/version"
)

// maxUploadBytes bounds a single media upload.
const maxUploadBytes = 2 << 30

// Response is the standard API response structure
type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

// Server is the HTTP server for scribe
type Server struct {
	cfg    *config.Config
	jobs   *job.Registry
	log    *logrus.Entry
	server *http.Server
	engine *gin.Engine
}

// NewServer creates a new HTTP server around an already-started job registry.
func NewServer(cfg *config.Config, jobs *job.Registry, log *logrus.Entry) *Server {
	s := &Server{
		cfg:  cfg,
		jobs: jobs,
		log:  log,
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.loggingMiddleware())
	if cfg.Server.APIKey != "" {
		s.engine.Use(s.authMiddleware())
	}

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/models", s.handleModels)
	api.POST("/transcriptions", s.handleCreate)
	api.GET("/transcriptions/:id", s.handleGet)
	api.GET("/transcriptions/:id/events", s.handleEvents)
	api.POST("/transcriptions/:id/cancel", s.handleCancel)

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	if err := os.MkdirAll(s.cfg.Server.UploadDir, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  0, // uploads can be large and slow
		WriteTimeout: 0, // event streams stay open for the job's lifetime
		IdleTimeout:  120 * time.Second,
	}

	s.log.WithField("port", s.cfg.Server.Port).Info("starting scribe server")
	if s.cfg.Server.APIKey != "" {
		s.log.Info("API key authentication enabled")
	}

	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Middleware

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Health endpoint doesn't require auth
		if c.Request.URL.Path == "/api/health" {
			c.Next()
			return
		}

		if c.GetHeader("X-API-Key") != s.cfg.Server.APIKey {
			c.JSON(http.StatusUnauthorized, Response{
				Code:    401,
				Data:    nil,
				Message: "invalid or missing API key",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Info("request")
	}
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"status":  "ok",
			"version": version.Version,
		},
		Message: "everything is good",
	})
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"batch":  provider.Models(provider.KindBatch),
			"inline": provider.Models(provider.KindInline),
		},
		Message: "models retrieved",
	})
}

func (s *Server) handleCreate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Data:    nil,
			Message: "invalid request: a media file is required",
		})
		return
	}

	opts := job.Options{
		Model:     c.PostForm("model"),
		Diarize:   c.PostForm("diarize") == "true",
		Summarize: c.PostForm("summarize") == "true",
	}
	if opts.Model == "" {
		opts.Model = s.cfg.Providers.Batch.DefaultModel
	}
	if v := c.PostForm("segment_budget_mb"); v != "" {
		mb, err := strconv.Atoi(v)
		if err != nil || mb <= 0 {
			c.JSON(http.StatusBadRequest, Response{
				Code:    400,
				Data:    nil,
				Message: "segment_budget_mb must be a positive integer",
			})
			return
		}
		opts.SegmentBudgetMB = mb
	}

	if _, ok := provider.KindForModel(opts.Model); !ok {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Data:    nil,
			Message: fmt.Sprintf("unknown model %q", opts.Model),
		})
		return
	}

	if err := os.MkdirAll(s.cfg.Server.UploadDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Data:    nil,
			Message: fmt.Sprintf("failed to prepare upload directory: %v", err),
		})
		return
	}

	dst := filepath.Join(s.cfg.Server.UploadDir, uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Data:    nil,
			Message: fmt.Sprintf("failed to store upload: %v", err),
		})
		return
	}

	j, err := s.jobs.Add(dst, file.Filename, opts)
	if err != nil {
		os.Remove(dst)
		c.JSON(http.StatusServiceUnavailable, Response{
			Code:    503,
			Data:    nil,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"id":    j.ID,
			"state": j.State,
		},
		Message: "transcription started",
	})
}

func (s *Server) handleGet(c *gin.Context) {
	j := s.jobs.Get(c.Param("id"))
	if j == nil {
		c.JSON(http.StatusNotFound, Response{
			Code:    404,
			Data:    nil,
			Message: "job not found",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    200,
		Data:    j,
		Message: string(j.State),
	})
}

// handleEvents streams the job's progress channel as server-sent events
// until a terminal event or client disconnect.
func (s *Server) handleEvents(c *gin.Context) {
	id := c.Param("id")
	ch, ok := s.jobs.Subscribe(id)
	if !ok {
		c.JSON(http.StatusNotFound, Response{
			Code:    404,
			Data:    nil,
			Message: "job not found",
		})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, open := <-ch:
			if !open {
				return false
			}
			c.SSEvent(string(evt.Type), evt)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if s.jobs.Get(id) == nil {
		c.JSON(http.StatusNotFound, Response{
			Code:    404,
			Data:    nil,
			Message: "job not found",
		})
		return
	}

	// Acknowledged regardless of whether the job was still active;
	// cancelling a terminal job is a no-op.
	active := s.jobs.Cancel(id)
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Data:    gin.H{"id": id, "was_active": active},
		Message: "cancellation requested",
	})
}
