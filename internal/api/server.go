// Package api exposes the diagnosis service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/domain"
	"github.com/sb-diagnostic-server/internal/middleware"
	"github.com/sb-diagnostic-server/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Options groups the server collaborators.
type Options struct {
	Config  *domain.Config
	Service *service.DiagnosisService
	History *service.HistoryEngine
	Logger  *logrus.Logger
	// InferenceState reports the model circuit state for /health.
	InferenceState func() string
}

// Server represents the HTTP server
type Server struct {
	cfg            *domain.Config
	router         *gin.Engine
	server         *http.Server
	service        *service.DiagnosisService
	history        *service.HistoryEngine
	logger         *logrus.Logger
	upgrader       websocket.Upgrader
	inferenceState func() string
}

// NewServer creates a new HTTP server instance
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Service == nil {
		return nil, fmt.Errorf("config and diagnosis service are required")
	}
	if opts.History == nil {
		engine, err := service.NewHistoryEngine(opts.Config.History.Locale)
		if err != nil {
			return nil, err
		}
		opts.History = engine
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	if opts.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(opts.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(opts.Config.Server.AllowedOrigins))

	s := &Server{
		cfg:            opts.Config,
		router:         router,
		service:        opts.Service,
		history:        opts.History,
		logger:         opts.Logger,
		inferenceState: opts.InferenceState,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() error {
	api := s.router.Group(s.cfg.Server.BasePath)
	api.Use(middleware.RequestTimeout(s.cfg.Server.RequestTimeout))

	diagnose := []gin.HandlerFunc{s.handleDiagnose}
	if rl := s.cfg.RateLimit; rl.Enabled {
		limiter, err := middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst)
		if err != nil {
			return fmt.Errorf("creating rate limiter: %w", err)
		}
		diagnose = append([]gin.HandlerFunc{limiter.Middleware()}, diagnose...)
	}
	api.POST("/diagnose", diagnose...)

	api.GET("/patients", s.handleListPatients)
	api.GET("/patients/:id", s.handleGetPatient)
	api.GET("/patients/:id/history", s.handlePatientHistory)
	api.DELETE("/patients/:index", s.handleDeleteAt)

	api.GET("/records/:id", s.handleGetRecord)
	api.DELETE("/records/:id", s.handleDeleteRecord)

	api.GET("/history", s.handleHistory)
	api.GET("/stats", s.handleStats)
	api.GET("/health", s.handleHealth)
	api.GET("/export", s.handleExport)
	api.POST("/import", s.handleImport)

	// The live view outlives any request timeout.
	s.router.GET(joinPath(s.cfg.Server.BasePath, "/history/ws"), s.handleHistoryWS)

	return nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

func joinPath(base, path string) string {
	if base == "" || base == "/" {
		return path
	}
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}
