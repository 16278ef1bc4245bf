package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/techscaniq/diligence/internal/api/middleware"
	"github.com/techscaniq/diligence/internal/infrastructure/config"
	"github.com/techscaniq/diligence/internal/infrastructure/logging"
	"github.com/techscaniq/diligence/internal/infrastructure/monitoring"
	"github.com/techscaniq/diligence/internal/infrastructure/resilience"
	"github.com/techscaniq/diligence/internal/infrastructure/tracing"
	"github.com/techscaniq/diligence/internal/pipeline"
	"github.com/techscaniq/diligence/internal/providers/ai"
	"github.com/techscaniq/diligence/internal/providers/evidence"
	"github.com/techscaniq/diligence/internal/providers/store"
	"github.com/techscaniq/diligence/internal/ws"
)

// Server wraps the HTTP server and the pipeline it fronts
type Server struct {
	router   *gin.Engine
	http     *http.Server
	driver   *pipeline.Driver
	handlers *Handlers
	pgStore  *store.Store
	log      *logging.Logger
}

// NewServer wires the pipeline driver, its collaborators, and the HTTP
// surface from configuration.
func NewServer(cfg *config.Config, log *logging.Logger) (*Server, error) {
	metrics := monitoring.NewMetrics()

	breakerOpts := resilience.DefaultOptions()
	breakerOpts.OnStateChange = func(name string, from, to resilience.State) {
		log.Warn("breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		metrics.RecordBreakerTransition(name, from.String(), to.String())
	}
	breakers := resilience.NewRegistry(breakerOpts)

	var invoker ai.Invoker = ai.NewClient(ai.Config{
		Provider: cfg.AI.Provider,
		BaseURL:  cfg.AI.BaseURL,
		APIKey:   cfg.AI.APIKey,
		Timeout:  cfg.AI.Timeout,
	}, log.Logger)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		invoker = ai.NewCachedInvoker(invoker, rdb, cfg.AI.CacheTTL, log.Logger)
		log.Info("model response cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	collector := evidence.NewWebCollector(log.Logger)

	var (
		reports   pipeline.ReportStore
		citations pipeline.CitationStore
		pgStore   *store.Store
	)
	if cfg.Postgres.Enabled {
		pg, err := store.New(context.Background(), cfg.Postgres.DSN, log.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pgStore = pg
		reports, citations = pg, pg
	} else {
		mem := store.NewMemory()
		reports, citations = mem, mem
		log.Warn("postgres disabled, using in-memory store")
	}

	policies := pipeline.DefaultPolicies()
	if cfg.Pipeline.PolicyPath != "" {
		loaded, err := pipeline.LoadPolicies(cfg.Pipeline.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("load pipeline policies: %w", err)
		}
		policies = loaded
		log.Info("pipeline policies loaded", zap.String("path", cfg.Pipeline.PolicyPath))
	}

	hub := ws.NewHub(log.Logger, metrics)
	driver := pipeline.NewDriver(pipeline.Deps{
		Invoker:   invoker,
		Collector: collector,
		Reports:   reports,
		Citations: citations,
		Breakers:  breakers,
		Log:       log.Logger,
	}, pipeline.Options{
		Models:   cfg.AI.Models,
		MaxPages: cfg.Evidence.MaxPages,
		Policies: policies,
		Listener: hub.Broadcast,
		Metrics:  metrics,
	})

	handlers := NewHandlers(driver, breakers, metrics, log.Logger, cfg.Pipeline.RunTimeout)
	wsHandler := ws.NewHandler(hub, log.Logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(monitoring.Middleware(metrics))
	router.Use(tracing.HTTPMiddleware(tracing.New("diligence", log.Logger)))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.GET("/", handlers.Root)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/health", handlers.Health)
	v1.POST("/scans", handlers.StartScan)
	v1.GET("/scans/:id", handlers.GetScan)
	v1.GET("/scans/:id/health", handlers.GetScanHealth)
	v1.GET("/scans/:id/report", handlers.GetScanReport)
	v1.GET("/scans/:id/events", wsHandler.HandleConnection)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	return &Server{
		router:   router,
		http:     &http.Server{Addr: addr, Handler: router},
		driver:   driver,
		handlers: handlers,
		pgStore:  pgStore,
		log:      log,
	}, nil
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	s.log.Info("server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases resources
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if s.pgStore != nil {
		s.pgStore.Close()
	}
	return err
}

// shutdownTimeout bounds graceful drain on SIGTERM
const ShutdownTimeout = 15 * time.Second
