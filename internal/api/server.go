package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/keyrhythm-core/internal/audit"
	"github.com/nerrad567/keyrhythm-core/internal/auth"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/config"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/database"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/logging"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/nats"
	"github.com/nerrad567/keyrhythm-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
//
// Service and Logger are required. Everything else is optional and only
// reported on when present.
type Deps struct {
	Config    config.APIConfig
	Capture   config.CaptureConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Service   *auth.Service
	AuditRepo audit.Repository
	Telemetry *telemetry.Dispatcher
	DB        *database.DB
	MQTT      *mqtt.Client
	NATS      *nats.Publisher
	InfluxDB  *influxdb.Client
	Version   string
}

// Server is the HTTP API server.
//
// It is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	capCfg    config.CaptureConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	service   *auth.Service
	auditRepo audit.Repository
	telemetry *telemetry.Dispatcher
	db        *database.DB
	mqtt      *mqtt.Client
	nats      *nats.Publisher
	influx    *influxdb.Client
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	logger := deps.Logger.With("component", "api")
	return &Server{
		cfg:       deps.Config,
		capCfg:    deps.Capture,
		secCfg:    deps.Security,
		logger:    logger,
		service:   deps.Service,
		auditRepo: deps.AuditRepo,
		telemetry: deps.Telemetry,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		nats:      deps.NATS,
		influx:    deps.InfluxDB,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(logger),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// Open capture sockets are closed first, then in-flight requests get up to
// 10 seconds to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
