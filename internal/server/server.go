// Package server wires configuration, storage and the HTTP API into a
// running anomalyd process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/Roshandass172/bot1/internal/anomaly"
	"github.com/Roshandass172/bot1/internal/api/middleware"
	"github.com/Roshandass172/bot1/internal/api/rest"
	"github.com/Roshandass172/bot1/internal/config"
	"github.com/Roshandass172/bot1/internal/outlier"
	"github.com/Roshandass172/bot1/internal/report"
	"github.com/Roshandass172/bot1/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Server represents the anomalyd HTTP service.
type Server struct {
	config  *config.Config
	logger  *zap.Logger
	store   *storage.Store
	handler *rest.Handler
	router  http.Handler

	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewServer validates cfg and builds every component.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	store, err := storage.New(cfg.Storage.UploadDir, cfg.Storage.ReportDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	pipeline, err := NewPipeline(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		store:   store,
		handler: rest.NewHandler(store, pipeline, logger),
	}
	s.router = s.buildRouter()
	return s, nil
}

// NewPipeline builds the detector and renderer described by cfg.
func NewPipeline(cfg *config.Config) (*rest.Pipeline, error) {
	detector, err := anomaly.NewDetector(outlier.Config{
		NumTrees:      cfg.Detection.NumTrees,
		SampleSize:    cfg.Detection.SampleSize,
		Contamination: cfg.Detection.Contamination,
		Seed:          cfg.Detection.Seed,
	}, anomaly.NewClassifier(cfg.Detection.HighRiskStates))
	if err != nil {
		return nil, err
	}
	return &rest.Pipeline{
		Detector: detector,
		Renderer: report.NewRenderer(report.Options{
			IDColumn:     cfg.Detection.IDColumn,
			RepeatHeader: cfg.Report.RepeatHeader,
			Compress:     cfg.Report.Compress,
		}),
	}, nil
}

func (s *Server) buildRouter() http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.StructuredLog(s.logger), middleware.Recover(s.logger), middleware.SecureHeaders)

	limiter := middleware.NewRateLimiter(s.config.Server.UploadRatePerMinute, s.config.Server.TrustProxyHeaders)
	s.handler.RegisterRoutes(router, limiter, s.config.Server.MaxUploadMB<<20)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.ResponseRequestIDHeader},
		ExposedHeaders: []string{middleware.ResponseRequestIDHeader, "Content-Disposition"},
	})
	return c.Handler(router)
}

// Handler returns the complete HTTP handler, middleware included.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr(), err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.config.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("anomalyd started",
		zap.String("addr", ln.Addr().String()),
		zap.String("upload_dir", s.store.UploadDir()),
		zap.String("report_dir", s.store.ReportDir()),
		zap.Float64("contamination", s.config.Detection.Contamination),
	)
	return nil
}

// Addr is the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server, waiting up to ten seconds for in-flight
// requests.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.wg.Wait()

	s.logger.Info("anomalyd stopped")
	return err
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ApplyConfig swaps in the detection and report settings of cfg. Listener,
// storage and middleware settings need a restart and are left untouched.
func (s *Server) ApplyConfig(cfg *config.Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	pipeline, err := NewPipeline(cfg)
	if err != nil {
		return err
	}
	s.handler.SetPipeline(pipeline)
	s.logger.Info("configuration reloaded",
		zap.Float64("contamination", cfg.Detection.Contamination),
		zap.Int("num_trees", cfg.Detection.NumTrees),
		zap.Strings("high_risk_states", cfg.Detection.HighRiskStates),
	)
	return nil
}

// WatchConfig applies every configuration mgr reports until ctx is done.
func (s *Server) WatchConfig(ctx context.Context, mgr config.ConfigManager) {
	updates := mgr.Watch(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg := <-updates:
				if err := s.ApplyConfig(&cfg); err != nil {
					s.logger.Warn("ignoring configuration change", zap.Error(err))
				}
			}
		}
	}()
}
