package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	api "github.com/openharmony/aafwk-standard-sub013/internal/api/http"
	"github.com/openharmony/aafwk-standard-sub013/internal/api/middleware"
	"github.com/openharmony/aafwk-standard-sub013/internal/api/ws"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/account"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/appsched"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/bundle"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/config"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/ipc"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/resilience"
)

const shutdownTimeout = 5 * time.Second

// Server owns the ability manager, its collaborators and the admin API
type Server struct {
	router  *gin.Engine
	http    *http.Server
	svc     *ams.Service
	apps    *appsched.Client
	dialer  *ipc.Dialer
	hub     *ws.Hub
	catalog *bundle.Catalog
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewLogger builds the process logger from the logging section
func NewLogger(cfg config.LogConfig) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	if cfg.Development {
		lc = logging.DevelopmentConfig()
	}
	if cfg.Level != "" {
		lc.Level = cfg.Level
	}
	return logging.New(lc)
}

// NewServer wires every component and brings the ability manager up. It
// blocks until the collaborators answer or ctx is done.
func NewServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger = logging.OrNop(logger)
	logger.Info("Initializing ability manager",
		zap.String("port", cfg.Server.Port),
		zap.String("appspawn", cfg.Collaborators.AppSpawnAddr),
		zap.String("bundles", cfg.Collaborators.BundleManifestDir),
		zap.Bool("new_mission", cfg.AMS.UseNewMission),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	catalog := bundle.NewCatalog(cfg.Collaborators.BundleManifestDir, logger)
	if err := catalog.Load(ctx); err != nil {
		return nil, err
	}

	apps, err := appsched.New(appsched.Options{
		BaseURL:  cfg.Collaborators.AppSpawnAddr,
		Timeout:  cfg.Collaborators.IPCTimeout,
		RetryMax: 2,
		Breaker:  resilience.Settings{Threshold: 5, Cooldown: 10 * time.Second},
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, err
	}
	dialer := ipc.NewDialer(ipc.Options{
		Timeout:    cfg.Collaborators.IPCTimeout,
		RetryCount: 1,
		Logger:     logger,
		Metrics:    metrics,
	})
	hub := ws.NewHub(logger, metrics)

	amsCfg, err := ams.ConfigFrom(cfg)
	if err != nil {
		apps.Close()
		dialer.Close()
		return nil, err
	}
	amsCfg.AppScheduler = apps
	amsCfg.Bundles = catalog
	amsCfg.Accounts = account.NewRegistry(cfg.Collaborators.OSAccounts...)
	amsCfg.Broadcaster = hub
	amsCfg.Logger = logger
	amsCfg.Metrics = metrics

	svc, err := ams.New(amsCfg)
	if err != nil {
		apps.Close()
		dialer.Close()
		return nil, err
	}
	hub.SetSwitchContinuer(svc.Users().ContinueUserSwitch)
	svc.Users().RegisterUserSwitchObserver(hub)

	if err := svc.Init(ctx); err != nil {
		svc.Stop()
		apps.Close()
		dialer.Close()
		return nil, fmt.Errorf("init ability manager: %w", err)
	}
	if err := svc.RegisterMissionListener(ams.SystemCaller, hub); err != nil {
		logger.Warn("Mission events will not be streamed", zap.Error(err))
	}
	logger.Info("Ability manager ready", zap.Int("user", svc.GetCurrentUserID()))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := api.NewHandlers(api.Options{
		Service:  svc,
		Dialer:   dialer,
		Catalog:  catalog,
		Gatherer: reg,
		Metrics:  metrics,
		Logger:   logger,
	})
	handlers.Register(router)
	router.GET("/v1/stream", hub.ServeWS)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	return &Server{
		router:  router,
		http:    &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second},
		svc:     svc,
		apps:    apps,
		dialer:  dialer,
		hub:     hub,
		catalog: catalog,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler { return s.router }

// Service returns the ability manager
func (s *Server) Service() *ams.Service { return s.svc }

// Run serves HTTP until Close is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops accepting requests, then shuts the manager and its
// collaborators down
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
	}

	s.hub.Close()
	s.svc.Stop()
	if ferr := s.apps.Flush(ctx); ferr != nil {
		s.logger.Warn("Pending app scheduler requests dropped", zap.Error(ferr))
	}
	s.apps.Close()
	s.dialer.Close()
	s.logger.Info("Closed collaborator connections")

	_ = s.logger.Sync()
	return err
}
