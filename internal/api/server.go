package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-automation/internal/audit"
	"github.com/nerrad567/gray-logic-automation/internal/automation"
	"github.com/nerrad567/gray-logic-automation/internal/device"
	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-automation/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-automation/internal/sensor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionChecker reports whether an outbound connection is up.
type ConnectionChecker interface {
	IsConnected() bool
}

// DBStatter exposes connection pool statistics.
type DBStatter interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Devices *device.Registry
	Sensors *sensor.Registry
	Engine  *automation.Engine
	Manager *automation.Manager

	// Optional persistence. When nil, inventory changes live in memory only.
	DeviceRepo device.Repository
	SensorRepo sensor.Repository
	History    device.HistoryRepository

	// Audit, if set, records configuration changes made through the API.
	Audit audit.Repository

	// Optional status sources for /metrics.
	MQTT ConnectionChecker
	DB   DBStatter

	// Hub, if set, is used instead of creating one. The engine needs the
	// hub before the server exists, so main usually injects it.
	Hub     *Hub
	Version string
}

// Server is the HTTP API server for the automation service.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	devices    *device.Registry
	sensors    *sensor.Registry
	engine     *automation.Engine
	manager    *automation.Manager
	deviceRepo device.Repository
	sensorRepo sensor.Repository
	history    device.HistoryRepository
	auditRepo  audit.Repository
	auditCh    chan *audit.AuditLog
	mqtt       ConnectionChecker
	db         DBStatter
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns an error if a required dependency is missing.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil || deps.Sensors == nil {
		return nil, fmt.Errorf("device and sensor registries are required")
	}
	if deps.Engine == nil || deps.Manager == nil {
		return nil, fmt.Errorf("automation engine and manager are required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		devices:    deps.Devices,
		sensors:    deps.Sensors,
		engine:     deps.Engine,
		manager:    deps.Manager,
		deviceRepo: deps.DeviceRepo,
		sensorRepo: deps.SensorRepo,
		history:    deps.History,
		auditRepo:  deps.Audit,
		mqtt:       deps.MQTT,
		db:         deps.DB,
		version:    deps.Version,
		startTime:  time.Now(),
		hub:        deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, builds the router and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running and responsive.
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
