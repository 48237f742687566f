// internal/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sua-org/cam-scout/internal/analysislock"
	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/core"
	"github.com/sua-org/cam-scout/internal/supervisor"
)

// Prober classifica um host avulso (classifier.Classifier em produção).
type Prober interface {
	Probe(ctx context.Context, host string) (core.CameraDescriptor, error)
}

// Server é a API HTTP do cam-scout.
type Server struct {
	sup     *supervisor.Supervisor
	prober  Prober
	metrics http.Handler
	version string

	engine     *gin.Engine
	httpServer *http.Server
	startTime  time.Time
	log        *slog.Logger
}

// New monta o engine gin com middlewares e rotas. metrics pode ser nil.
func New(cfg *config.Config, sup *supervisor.Supervisor, prober Prober, metrics http.Handler, version string) *Server {
	s := &Server{
		sup:       sup,
		prober:    prober,
		metrics:   metrics,
		version:   version,
		startTime: time.Now(),
		log:       slog.With("component", "api"),
	}
	s.engine = s.routes()
	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(CorrelationID(), RequestLogger(), Recovery())

	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	cams := r.Group("/api/cameras")
	cams.POST("/discover", s.handleDiscover)
	cams.GET("/discover/status", s.handleDiscoverStatus)
	cams.GET("/discover/results", s.handleDiscoverResults)
	cams.POST("/probe", s.handleProbe)
	cams.POST("/capture", s.handleCapture)

	r.POST("/api/lessons/:id/analyze", analysislock.Middleware(s.sup.Locks(), "id"), s.handleAnalyze)

	analysis := r.Group("/api/analysis")
	analysis.GET("/stats", s.handleLockStats)
	analysis.DELETE("/locks", s.handleForceCleanup)
	analysis.DELETE("/locks/:id", s.handleForceCleanup)

	return r
}

// Run sobe o servidor e faz shutdown gracioso quando ctx termina.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
