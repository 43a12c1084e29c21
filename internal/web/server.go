// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package web serves the pipeline's HTTP API, live websocket stream and
// Prometheus metrics.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/classifier"
	"github.com/relabs-tech/inertial_activity/internal/pipeline"
)

// Controller is the part of *pipeline.Orchestrator the API drives.
type Controller interface {
	Latest() (pipeline.Report, bool)
	Windows() map[channel.Channel][]float64
	WindowLength() int
	State() pipeline.State
	Active() (string, classifier.Accelerator, bool)
	Load(ctx context.Context, model string, accelerator classifier.Accelerator) error
	Run(ctx context.Context)
	Stop()
	Reset()
}

// History serves past reports.
type History interface {
	Recent(ctx context.Context, limit int) ([]pipeline.Report, error)
}

// Options configure a Server. History and Gatherer are optional.
type Options struct {
	// BaseContext parents the pipeline loops started through POST /api/run.
	BaseContext context.Context
	Hub         *Hub
	History     History
	Gatherer    prometheus.Gatherer
	LoadTimeout time.Duration
	Log         *zap.SugaredLogger
}

// Server is the HTTP front of one orchestrator.
type Server struct {
	ctl    Controller
	opts   Options
	log    *zap.SugaredLogger
	engine *gin.Engine
}

// NewServer builds the routes.
func NewServer(ctl Controller, opts Options) *Server {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Log)
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 10 * time.Second
	}

	s := &Server{ctl: ctl, opts: opts, log: opts.Log}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := router.Group("/api")
	{
		api.GET("/predictions", s.getPredictions)
		api.GET("/windows", s.getWindows)
		api.GET("/state", s.getState)
		api.GET("/history", s.getHistory)
		api.POST("/classifier", s.postClassifier)
		api.POST("/run", s.postRun)
		api.POST("/stop", s.postStop)
		api.POST("/reset", s.postReset)
	}
	router.GET("/ws/predictions", s.streamPredictions)
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	s.engine = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub returns the websocket hub, to be subscribed to the pipeline.
func (s *Server) Hub() *Hub { return s.opts.Hub }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("web: server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) getPredictions(c *gin.Context) {
	r, ok := s.ctl.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data yet"})
		return
	}
	c.JSON(http.StatusOK, r)
}

type windowView struct {
	Description string    `json:"description"`
	Full        bool      `json:"full"`
	Values      []float64 `json:"values"`
}

func (s *Server) getWindows(c *gin.Context) {
	length := s.ctl.WindowLength()
	channels := map[string]windowView{}
	for ch, values := range s.ctl.Windows() {
		channels[ch.String()] = windowView{
			Description: ch.Description(),
			Full:        len(values) == length,
			Values:      values,
		}
	}
	c.JSON(http.StatusOK, gin.H{"length": length, "channels": channels})
}

func (s *Server) getState(c *gin.Context) {
	resp := gin.H{
		"state":        s.ctl.State(),
		"accelerators": classifier.Accelerators,
		"classes":      classifier.Classes,
	}
	if model, acc, ok := s.ctl.Active(); ok {
		resp["model"] = model
		resp["accelerator"] = acc
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getHistory(c *gin.Context) {
	if s.opts.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
		return
	}
	reports, err := s.opts.History.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.Warnw("web: history query failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if reports == nil {
		reports = []pipeline.Report{}
	}
	c.JSON(http.StatusOK, reports)
}

type loadRequest struct {
	Model       string `json:"model" binding:"required"`
	Accelerator string `json:"accelerator" binding:"required"`
}

func (s *Server) postClassifier(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acc, err := classifier.ParseAccelerator(req.Accelerator)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.LoadTimeout)
	defer cancel()
	if err := s.ctl.Load(ctx, req.Model, acc); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, classifier.ErrAcceleratorUnavailable):
			status = http.StatusConflict
		case errors.Is(err, classifier.ErrModelNotFound):
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": req.Model, "accelerator": acc})
}

func (s *Server) postRun(c *gin.Context) {
	s.ctl.Run(s.opts.BaseContext)
	c.JSON(http.StatusOK, gin.H{"state": s.ctl.State()})
}

func (s *Server) postStop(c *gin.Context) {
	s.ctl.Stop()
	c.JSON(http.StatusOK, gin.H{"state": s.ctl.State()})
}

func (s *Server) postReset(c *gin.Context) {
	s.ctl.Reset()
	c.JSON(http.StatusOK, gin.H{"state": s.ctl.State()})
}

func (s *Server) streamPredictions(c *gin.Context) {
	var initial *pipeline.Report
	if r, ok := s.ctl.Latest(); ok {
		initial = &r
	}
	s.opts.Hub.Serve(c.Writer, c.Request, initial)
}
