package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	apihttp "github.com/PTSolns/ptsolns-ide/backend/internal/api/http"
	"github.com/PTSolns/ptsolns-ide/backend/internal/api/middleware"
	"github.com/PTSolns/ptsolns-ide/backend/internal/api/ws"
	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/catalog"
	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/discovery"
	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/installer"
	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/notify"
	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/provision"
	"github.com/PTSolns/ptsolns-ide/backend/internal/grpc/cli"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/config"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/logging"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/monitoring"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/storage"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/tracing"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

// Version is reported in the user agent of outgoing fetches
const Version = "0.1.0"

// Server wraps the HTTP server and dependencies
type Server struct {
	router      *gin.Engine
	http        *http.Server
	client      *cli.Client
	watcher     *cli.BoardWatcher
	interlock   *discovery.Interlock
	broadcaster *notify.Broadcaster
	provisioner *provision.Provisioner
	tracer      *tracing.Tracer
	logger      *logging.Logger
	config      *config.Config
	metrics     *monitoring.Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing package daemon",
		zap.String("port", cfg.Server.Port),
		zap.String("cli_addr", cfg.Backend.Address),
		zap.String("state_path", cfg.Storage.StatePath),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New(logger)
	broadcaster := notify.NewBroadcaster(logger, metrics)

	client, err := cli.New(cfg.Backend.Address,
		cli.WithLogger(logger),
		cli.WithMetrics(metrics),
		cli.WithDialOptions(
			grpc.WithChainUnaryInterceptor(tracing.UnaryClientInterceptor(tracer)),
			grpc.WithChainStreamInterceptor(tracing.StreamClientInterceptor(tracer)),
		),
	)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create cli client: %w", err)
	}

	var ctrl discovery.Controller
	var watcher *cli.BoardWatcher
	if cfg.Backend.DiscoveryEnabled {
		watcher = cli.NewBoardWatcher(client, broadcaster, logger)
		ctrl = watcher
	}
	interlock := discovery.NewInterlock(ctrl, logger, metrics)

	libraries := catalog.New(types.KindLibrary, client,
		catalog.WithCuratedTag(cfg.Provision.CuratedTag),
		catalog.WithLogger(logger))
	platforms := catalog.New(types.KindPlatform, client,
		catalog.WithCuratedTag(cfg.Provision.CuratedTag),
		catalog.WithLogger(logger))

	orchestrator := installer.New(installer.Config{
		Backend: client,
		Catalogs: map[types.Kind]installer.Catalog{
			types.KindLibrary:  libraries,
			types.KindPlatform: platforms,
		},
		Interlock: interlock,
		Events:    broadcaster,
		Logger:    logger,
		Metrics:   metrics,
	})

	var provisioner *provision.Provisioner
	if cfg.Provision.Enabled {
		provisioner, err = newProvisioner(cfg, provision.Deps{
			Platforms: platforms,
			Libraries: libraries,
			Installer: orchestrator,
			Flags:     storage.NewFlagStore(cfg.Storage.StatePath),
			Fetcher:   provision.NewHTTPFetcher("ptsolns-ide/" + Version),
			Settings:  client,
			Ready:     client,
			Warner:    broadcaster,
			Logger:    logger,
			Metrics:   metrics,
		})
		if err != nil {
			client.Close()
			tracer.Close()
			return nil, err
		}
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	corsCfg := middleware.DefaultCORSConfig()
	router.Use(middleware.CORS(corsCfg))
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

	var reporter apihttp.Reporter
	if provisioner != nil {
		reporter = provisioner
	}
	handlers := apihttp.NewHandlers(map[types.Kind]apihttp.Catalog{
		types.KindLibrary:  libraries,
		types.KindPlatform: platforms,
	}, orchestrator, reporter, apihttp.Status{
		BackendReady: client.Ready,
		Discovery:    func() string { return string(interlock.State()) },
		Listeners:    broadcaster.Listeners,
	})
	handlers.Register(router)

	wsHandler := ws.NewHandler(broadcaster, notify.DefaultBuffer, nil, logger)
	router.GET("/events", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	ctx, cancel := context.WithCancel(context.Background())
	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		client:      client,
		watcher:     watcher,
		interlock:   interlock,
		broadcaster: broadcaster,
		provisioner: provisioner,
		tracer:      tracer,
		logger:      logger,
		config:      cfg,
		metrics:     metrics,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}, nil
}

func newProvisioner(cfg *config.Config, deps provision.Deps) (*provision.Provisioner, error) {
	pc := provision.Config{
		Platforms:       cfg.Provision.Platforms,
		VendorPlatforms: cfg.Provision.VendorPlatforms,
		Library:         cfg.Provision.Library,
		ManifestURL:     cfg.Provision.ManifestURL,
		Pattern:         cfg.Provision.Pattern,
		IndexURL:        cfg.Provision.IndexURL,
		Attempts:        cfg.Provision.Attempts,
		Delay:           cfg.Provision.Delay,
	}
	if cfg.Provision.Profile != "" {
		profile, err := provision.LoadProfile(cfg.Provision.Profile)
		if err != nil {
			return nil, fmt.Errorf("failed to load provisioning profile: %w", err)
		}
		profile.Apply(&pc)
	}
	p, err := provision.New(pc, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create provisioner: %w", err)
	}
	return p, nil
}

// Router exposes the HTTP handler, e.g. for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Run connects to the CLI daemon in the background and serves HTTP until
// Close is called.
func (s *Server) Run() error {
	if s.started.CompareAndSwap(false, true) {
		go s.startBackend(s.ctx)
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startBackend initializes the daemon session, starts board discovery and
// runs first-start provisioning.
func (s *Server) startBackend(ctx context.Context) {
	defer close(s.done)

	if !s.config.Backend.Enabled {
		s.logger.Warn("CLI daemon disabled; catalog and install requests will fail")
		return
	}

	if err := s.client.Init(ctx); err != nil {
		s.logger.Error("Failed to initialize CLI daemon session", zap.Error(err))
		s.broadcaster.Warn("Could not connect to the package backend: " + err.Error())
		return
	}
	s.broadcaster.NotifyIndexUpdated()
	s.interlock.Start()

	if s.provisioner == nil {
		return
	}
	if _, err := s.provisioner.Run(ctx); err != nil {
		s.logger.Warn("Provisioning did not run", zap.Error(err))
	}
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
	}

	s.cancel()
	if s.started.Load() {
		select {
		case <-s.done:
		case <-ctx.Done():
			s.logger.Warn("Backend startup did not finish before shutdown")
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(ctx); err != nil {
			s.logger.Warn("Failed to stop board watcher", zap.Error(err))
		}
	}
	if err := s.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close cli client: %w", err))
	} else {
		s.logger.Info("Closed CLI daemon connection")
	}

	s.tracer.Close()
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
