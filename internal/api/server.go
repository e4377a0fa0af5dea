// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the query router over HTTP using gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/nyx/internal/api/handlers/management"
	"github.com/traylinx/nyx/internal/budget"
	"github.com/traylinx/nyx/internal/config"
	"github.com/traylinx/nyx/internal/logging"
	"github.com/traylinx/nyx/internal/router"
	"github.com/traylinx/nyx/internal/skills"
	"github.com/traylinx/nyx/internal/util"
)

// Querier routes a single query.
type Querier interface {
	Route(ctx context.Context, query, userID string) *router.Result
	Stats() router.Stats
}

// SkillLister reports the registered skills.
type SkillLister interface {
	List() []skills.Descriptor
	UsageStats() map[string]skills.Usage
}

// BudgetReporter reports search spend.
type BudgetReporter interface {
	Status() budget.Status
	RecentTransactions(n int) []budget.Transaction
}

// Deps are the collaborators served by the API. StateBox and BudgetFile
// are optional and only feed the state-box status endpoint.
type Deps struct {
	Router     Querier
	Skills     SkillLister
	Budget     BudgetReporter
	StateBox   *util.StateBox
	BudgetFile string
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	cfg     *config.Config
	deps    Deps
	engine  *gin.Engine
	server  *http.Server
	started time.Time
	now     func() time.Time
}

// New builds the engine and registers every route.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Router == nil || deps.Skills == nil || deps.Budget == nil {
		return nil, errors.New("api: router, skills and budget are required")
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		engine:  gin.New(),
		started: time.Now(),
		now:     time.Now,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		// Tier calls are bounded by the router timeout; leave headroom to write.
		WriteTimeout: cfg.Router.Timeout*2 + 5*time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	e := s.engine
	e.Use(logging.RequestIDMiddleware(), logging.AccessLogMiddleware())
	e.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.FromContext(c.Request.Context()).Errorf("panic serving %s: %v", c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))

	e.GET("/health", s.health)

	limiter := newClientLimiter(s.cfg.API.RateLimit, s.cfg.API.RateWindow)
	apiGroup := e.Group("/api", limiter.middleware(), bodyLimit(s.cfg.API.MaxBodyBytes))
	apiGroup.POST("/query", s.query)
	apiGroup.GET("/skills", s.listSkills)
	apiGroup.GET("/budget", s.budgetStatus)
	apiGroup.GET("/state-box/status", StateBoxStatusHandler(s.deps.StateBox, s.deps.BudgetFile))

	mgmt := management.NewHandler(s.deps.Skills, s.deps.Budget, s.deps.Router)
	mgmtGroup := e.Group("/v0/management", limiter.middleware())
	mgmtGroup.GET("/skills", mgmt.GetSkills)
	mgmtGroup.GET("/budget/transactions", mgmt.GetTransactions)
	mgmtGroup.GET("/stats", mgmt.GetRoutingStatistics)

	e.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens and serves until Stop is called. It returns nil after a
// graceful shutdown.
func (s *Server) Start() error {
	log.Infof("nyx API listening on http://%s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: serve: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	log.Info("nyx API stopped")
	return nil
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
