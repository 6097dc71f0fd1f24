// Package server exposes the forecasting service over HTTP with gin.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

// Version is reported by /health.
const Version = "1.0.0"

// Config holds the HTTP settings.
type Config struct {
	// AllowOrigins lists the CORS origins. Empty allows all.
	AllowOrigins []string
}

// Pinger reports whether the prediction database is reachable.
type Pinger func(ctx context.Context) error

// Server serves the forecast and prediction endpoints.
type Server struct {
	svc         *forecast.Service
	predictions forecast.PredictionStore
	ping        Pinger
	now         func() time.Time
	logger      log.Logger
	engine      *gin.Engine
}

// New builds the router. ping may be nil, in which case the database is
// reported as connected.
func New(cfg Config, svc *forecast.Service, store forecast.PredictionStore, ping Pinger, logger log.Logger) *Server {
	if logger == nil {
		logger = log.GetLoggerWithName("server")
	}
	s := &Server{
		svc:         svc,
		predictions: store,
		ping:        ping,
		now:         time.Now,
		logger:      logger,
		engine:      gin.New(),
	}

	s.engine.Use(gin.Recovery(), requestLogger(logger), corsMiddleware(cfg.AllowOrigins))
	s.routes()
	return s
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return cors.New(c)
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.health)
	r.POST("/predict-forecast", s.predictForecast)

	p := r.Group("/predictions")
	{
		p.POST("", s.createPrediction)
		p.GET("", s.listPredictions)
		p.GET("/recent", s.recentPredictions)
		p.GET("/:id", s.getPrediction)
		p.PUT("/:id", s.updatePrediction)
		p.DELETE("/:id", s.deletePrediction)
		p.POST("/:id/actual", s.recordActual)
	}

	r.GET("/stats/accuracy", s.accuracyStats)
	r.GET("/model/info", s.modelInfo)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	return nil
}
