// Package server exposes backup listing and restore over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"PgBackuper/internal/auth"
	"PgBackuper/internal/config"
	"PgBackuper/internal/metrics"
)

type Server struct {
	cfg      config.ServerConfig
	auth     *auth.Manager
	lister   Lister
	restores Dispatcher
	gatherer prometheus.Gatherer
	log      zerolog.Logger
	router   *gin.Engine
	http     *http.Server
}

type Deps struct {
	Auth     *auth.Manager
	Lister   Lister
	Restores Dispatcher
	// Gatherer serves /metrics when cfg.Metrics is set.
	Gatherer prometheus.Gatherer
}

// New builds the router. The backup and restore API is mounted only when
// Auth, Lister and Restores are all set.
func New(cfg config.ServerConfig, deps Deps, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:      cfg,
		auth:     deps.Auth,
		lister:   deps.Lister,
		restores: deps.Restores,
		gatherer: deps.Gatherer,
		log:      log.With().Str("component", "server").Logger(),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              net.JoinHostPort("0.0.0.0", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(recovery(s.log), requestLogger(s.log))
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(corsConfig(s.cfg.AllowedOrigins)))
	}

	r.GET("/health", s.health)
	if s.cfg.Metrics && s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(s.gatherer)))
	}

	if s.auth != nil && s.lister != nil && s.restores != nil {
		api := r.Group("/api")
		api.POST("/auth/login", rateLimit(newIPLimiter(s.cfg.LoginRatePerMinute)), s.login)

		protected := api.Group("", requireAuth(s.auth))
		protected.GET("/backups", s.listBackups)
		protected.POST("/restore", s.startRestore)
		protected.GET("/restore/status", s.restoreStatus)
	}

	if s.cfg.PublicDir != "" {
		r.NoRoute(s.static(s.cfg.PublicDir))
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Api-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}

// static serves files from dir and falls back to index.html so client-side
// routes resolve. API paths never fall back.
func (s *Server) static(dir string) gin.HandlerFunc {
	index := filepath.Join(dir, "index.html")
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		rel := filepath.FromSlash(filepath.Clean("/" + c.Request.URL.Path))
		p := filepath.Join(dir, rel)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			c.File(p)
			return
		}
		if _, err := os.Stat(index); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.File(index)
	}
}

// ListenAndServe blocks until the server stops. A Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
