// Package http exposes the attendance tracker over a JSON REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/attendance-tracker/internal/application/command"
	"github.com/alem-hub/attendance-tracker/internal/application/query"
	"github.com/alem-hub/attendance-tracker/internal/interface/http/handlers"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	// ReadTimeout - maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout - maximum duration for writing the response.
	WriteTimeout time.Duration

	// IdleTimeout - maximum duration for idle connections.
	IdleTimeout time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// MaxBodyBytes - maximum size of request bodies.
	MaxBodyBytes int64

	// EnableCORS - enable CORS headers.
	EnableCORS bool

	// AllowedOrigins - allowed origins for CORS.
	AllowedOrigins []string

	// EnableMetrics - serve Prometheus metrics on /metrics.
	EnableMetrics bool

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int

	// EnableRawWrites - expose PUT /subjects/:id/attendance/:date, which
	// writes a record without reconciling counters.
	EnableRawWrites bool

	// TrustedProxies - proxies whose X-Forwarded-For is believed.
	TrustedProxies []string

	// Version is reported by /health.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       1 << 20,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		EnableMetrics:      true,
		RateLimitPerMinute: 600,
		EnableRawWrites:    true,
		Version:            "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains everything the HTTP handlers call into.
type Dependencies struct {
	// Command side
	Engine   *command.Engine
	Subjects *command.SubjectHandler

	// Query side
	GetSubject *query.GetSubjectHandler
	Records    *query.ListRecordsHandler
	Schedule   *query.ListScheduleHandler
	Analytics  *query.BuildAnalyticsHandler

	Logger *logger.Logger

	// HealthChecker backs /health and /ready. Nil reports healthy.
	HealthChecker handlers.HealthChecker

	// MetricsHandler serves /metrics when metrics are enabled.
	MetricsHandler http.Handler
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *gin.Engine
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Engine == nil || deps.Subjects == nil || deps.GetSubject == nil ||
		deps.Records == nil || deps.Schedule == nil || deps.Analytics == nil {
		return nil, errors.New("http: command and query handlers are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewStaticHealthChecker()
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: gin.New(),
		logger: deps.Logger.With(logger.Component("http")),
	}
	if err := s.router.SetTrustedProxies(config.TrustedProxies); err != nil {
		return nil, fmt.Errorf("http: trusted proxies: %w", err)
	}

	s.installMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s, nil
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// installMiddleware applies the chain. Recovery is first so it also
// covers the other middleware.
func (s *Server) installMiddleware() {
	s.router.Use(
		handlers.Recovery(s.logger),
		handlers.RequestID(s.logger),
		handlers.AccessLog(s.logger),
		handlers.SecurityHeaders(),
	)
	if s.config.EnableCORS {
		s.router.Use(handlers.CORS(s.config.AllowedOrigins))
	}
	if s.config.RateLimitPerMinute > 0 {
		s.router.Use(handlers.RateLimit(s.config.RateLimitPerMinute, time.Minute))
	}
	if s.config.MaxBodyBytes > 0 {
		s.router.Use(handlers.BodyLimit(s.config.MaxBodyBytes))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/ready", s.handleReady)
	s.router.GET("/live", s.handleLive)

	if s.config.EnableMetrics && s.deps.MetricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.MetricsHandler))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	v1 := s.router.Group("/api/v1")

	subjects := v1.Group("/subjects")
	subjects.POST("", s.handleCreateSubject)
	subjects.GET("", s.handleListSubjects)
	subjects.GET("/:id", s.handleGetSubject)
	subjects.PATCH("/:id", s.handleUpdateSubject)
	subjects.DELETE("/:id", s.handleDeleteSubject)

	subjects.GET("/:id/schedule", s.handleGetSchedule)
	subjects.PUT("/:id/schedule", s.handleSetSchedule)

	subjects.POST("/:id/attendance", s.handleMarkStatus)
	if s.config.EnableRawWrites {
		subjects.PUT("/:id/attendance/:date", s.handleSetStatus)
	}
	subjects.GET("/:id/records", s.handleListSubjectRecords)
	subjects.GET("/:id/analytics", s.handleAnalytics)

	v1.GET("/records", s.handleListRecords)

	history := v1.Group("/history")
	history.GET("", s.handleGetHistory)
	history.DELETE("", s.handleClearHistory)
	history.POST("/undo", s.handleUndo)
	history.POST("/redo", s.handleRedo)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine. The channel yields a
// startup or serve error, and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
