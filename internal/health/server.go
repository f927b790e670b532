// Package health exposes liveness and readiness endpoints for
// deployment probes.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/config"
)

// Pinger reports whether the backing storage answers.
type Pinger interface {
	Ping() error
}

type Server struct {
	cfg   config.HealthConfig
	store Pinger
	srv   *http.Server
	log   zerolog.Logger
}

func NewServer(cfg config.HealthConfig, store Pinger, logger zerolog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
		log:   logger.With().Str("component", "health").Logger(),
	}
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := s.store.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	return r
}

// Start begins serving in the background. A nil return only means the
// listener goroutine was launched; bind errors surface in the log.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		s.log.Info().Msg("health server disabled")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Str("addr", addr).Msg("health server failed")
		}
	}()
	s.log.Info().Str("addr", addr).Msg("health server started")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
