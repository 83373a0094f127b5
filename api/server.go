package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apimiddleware "github.com/arcwallet/indexer-go/api/middleware"
	"github.com/arcwallet/indexer-go/fetch"
	"github.com/arcwallet/indexer-go/storage"
)

// shutdownTimeout bounds graceful shutdown; past it the listener is torn
// down hard.
const shutdownTimeout = 5 * time.Second

// healthCheckTimeout bounds the RPC and store probes of one request.
const healthCheckTimeout = 3 * time.Second

// ChainPinger is the single RPC read a health request makes.
type ChainPinger interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// StorePinger is the single store read a health request makes.
type StorePinger interface {
	GetCheckpoint(ctx context.Context) (storage.Checkpoint, error)
}

// HealthSource exposes the pipeline state snapshot.
type HealthSource interface {
	Health() fetch.Snapshot
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int

	// MaxBlocksBehind is the indexing lag tolerated before the indexer
	// reports unhealthy (unless it is still syncing).
	MaxBlocksBehind uint64

	ConfirmationDepth uint64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *Config) address() string {
	host := c.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// Server serves the read-only health and metrics endpoints.
type Server struct {
	cfg     Config
	logger  *zap.Logger
	chain   ChainPinger
	store   StorePinger
	source  HealthSource
	metrics http.Handler
	server  *http.Server
	router  *chi.Mux
}

// NewServer builds the probe server.
func NewServer(cfg Config, chain ChainPinger, store StorePinger, source HealthSource, metricsHandler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		chain:   chain,
		store:   store,
		source:  source,
		metrics: metricsHandler,
		router:  chi.NewRouter(),
	}

	s.router.Use(apimiddleware.Recovery(logger))
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(apimiddleware.Logger(logger))

	s.router.Get("/live", s.handleLive)
	s.router.Get("/ready", s.handleReady)
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.server = &http.Server{
		Addr:         cfg.address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Start runs the listener until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("health server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, hard-stopping after the timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the /health document.
type HealthResponse struct {
	Status           string                 `json:"status"`
	Checks           map[string]checkResult `json:"checks"`
	CurrentBlock     uint64                 `json:"currentBlock"`
	LastIndexedBlock uint64                 `json:"lastIndexedBlock"`
	BlocksBehind     uint64                 `json:"blocksBehind"`
	IsSyncing        bool                   `json:"isSyncing"`
	TrackedWallets   uint64                 `json:"trackedWallets"`
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	report := s.check(r.Context())
	status := http.StatusOK
	if !report.ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"ready": report.ready})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.check(r.Context())

	status := http.StatusOK
	if report.response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report.response)
}

type healthReport struct {
	ready    bool
	response HealthResponse
}

// check issues one RPC read and one store read, and derives both the
// ready verdict and the health document from them.
func (s *Server) check(ctx context.Context) healthReport {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	checks := make(map[string]checkResult, 3)
	snapshot := s.source.Health()

	currentBlock, rpcErr := s.chain.BlockNumber(ctx)
	if rpcErr != nil {
		checks["rpc"] = checkResult{Status: "fail", Error: rpcErr.Error()}
		currentBlock = snapshot.CurrentBlock
	} else {
		checks["rpc"] = checkResult{Status: "pass"}
	}

	cp, storeErr := s.store.GetCheckpoint(ctx)
	lastIndexed := snapshot.LastIndexedBlock
	if storeErr != nil {
		checks["store"] = checkResult{Status: "fail", Error: storeErr.Error()}
	} else {
		checks["store"] = checkResult{Status: "pass"}
		lastIndexed = cp.LastIndexedBlock
	}

	var blocksBehind uint64
	if currentBlock > lastIndexed+s.cfg.ConfirmationDepth {
		blocksBehind = currentBlock - lastIndexed - s.cfg.ConfirmationDepth
	}

	indexerOK := snapshot.IsRunning
	if blocksBehind > s.cfg.MaxBlocksBehind && !snapshot.IsSyncing {
		indexerOK = false
	}
	if indexerOK {
		checks["indexer"] = checkResult{Status: "pass"}
	} else {
		checks["indexer"] = checkResult{Status: "fail"}
	}

	overall := "healthy"
	if rpcErr != nil || storeErr != nil || !indexerOK {
		overall = "unhealthy"
	}

	return healthReport{
		ready: rpcErr == nil && storeErr == nil && snapshot.IsRunning,
		response: HealthResponse{
			Status:           overall,
			Checks:           checks,
			CurrentBlock:     currentBlock,
			LastIndexedBlock: lastIndexed,
			BlocksBehind:     blocksBehind,
			IsSyncing:        snapshot.IsSyncing,
			TrackedWallets:   snapshot.TrackedWallets,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
