// Package main provides the gateway server implementation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/agentflow/api/handlers"
	"github.com/BaSui01/agentflow/config"
	"github.com/BaSui01/agentflow/internal/kv"
	"github.com/BaSui01/agentflow/internal/metrics"
	"github.com/BaSui01/agentflow/internal/server"
	"github.com/BaSui01/agentflow/internal/telemetry"
	"github.com/BaSui01/agentflow/llm"
	"github.com/BaSui01/agentflow/llm/idempotency"
	"github.com/BaSui01/agentflow/llm/providers"
	"github.com/BaSui01/agentflow/llm/providers/openai"
	"github.com/BaSui01/agentflow/llm/providers/openaicompat"
	"github.com/BaSui01/agentflow/llm/providers/vllm"
	"github.com/BaSui01/agentflow/queue"
	"github.com/BaSui01/agentflow/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server is the gateway's composition root: it wires the shared KV store,
// rate limiter, optional queue and worker pool, provider adapter, and HTTP
// handlers, then hosts them behind two independent listeners (API + metrics).
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	otel       *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler    *handlers.HealthHandler
	metricsCollector *metrics.Collector

	rdb     *redis.Client
	limiter *ratelimit.Limiter
	q       *queue.Queue
	prov    llm.Provider
	idem    idempotency.Manager

	workerCancel    context.CancelFunc
	ipLimiterCancel context.CancelFunc
	queueGroup      *errgroup.Group
}

// NewServer creates a new, not-yet-started Server instance.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start wires every component and brings both listeners up. It returns once
// both are accepting connections; shutdown is driven separately via
// WaitForShutdown/Shutdown.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("gateway", s.logger)

	if err := s.initKV(); err != nil {
		return fmt.Errorf("failed to init kv store: %w", err)
	}

	s.limiter = ratelimit.New(kv.New(s.rdb), ratelimit.DefaultConfig(
		s.cfg.RateLimit.RequestsPerMinute,
		s.cfg.RateLimit.TokensPerMinute,
		s.cfg.RateLimit.BurstSize,
	), s.logger)

	s.idem = idempotency.NewRedisManager(s.rdb, "gateway:idem:", s.logger)

	provider, err := newProvider(s.cfg.Provider, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init provider: %w", err)
	}
	s.prov = provider

	if s.cfg.Queue.Enabled {
		s.initQueue()
	}

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("provider", provider.Name()),
		zap.Bool("queue_enabled", s.cfg.Queue.Enabled),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initKV dials the shared Redis-compatible store backing both the rate
// limiter and the optional queue.
func (s *Server) initKV() error {
	opts := &redis.Options{
		Addr:         s.cfg.KV.Addr,
		Password:     s.cfg.KV.Password,
		DB:           s.cfg.KV.DB,
		PoolSize:     s.cfg.KV.PoolSize,
		MinIdleConns: s.cfg.KV.MinIdleConns,
	}
	if s.cfg.KV.MaxConnections > 0 {
		opts.PoolSize = s.cfg.KV.MaxConnections
	}
	s.rdb = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping kv store at %s: %w", s.cfg.KV.Addr, err)
	}
	return nil
}

// newProvider builds the single configured llm.Provider, wrapped in a
// retrying decorator bounded by MaxRetries. "custom" uses the shared
// OpenAI-wire-compatible plumbing directly, the way vllm's adapter does,
// since it names no dedicated price table or model list of its own.
func newProvider(cfg config.ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	var inner llm.Provider
	switch cfg.Kind {
	case "", "openai":
		inner = openai.New(openai.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			Timeout:      timeout,
		}, logger)
	case "vllm":
		inner = vllm.New(vllm.Config{
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			APIKey:       cfg.APIKey,
			Timeout:      timeout,
		}, logger)
	case "custom":
		inner = openaicompat.New(openaicompat.Config{
			ProviderName: "custom",
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			Timeout:      timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported provider kind: %s (supported: openai, vllm, custom)", cfg.Kind)
	}

	retryCfg := providers.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.MaxRetries
	}
	return providers.NewRetryableProvider(inner, retryCfg, logger), nil
}

// initQueue builds the request queue, starts its worker pool and cleanup
// daemon, and wires completion/depth metrics. All of it shares one
// cancellable context stopped from Shutdown.
func (s *Server) initQueue() {
	s.q = queue.New(kv.New(s.rdb), queue.Config{
		Name:            s.cfg.Queue.Name,
		MaxSize:         s.cfg.Queue.MaxSize,
		DefaultTimeout:  s.cfg.Queue.RequestTimeout,
		ResultRetention: s.cfg.Queue.ResultRetention,
	}, s.logger)

	s.q.SetCompletionHook(func(failed bool) {
		s.metricsCollector.RecordQueueCompleted(s.cfg.Queue.Name, failed)
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.workerCancel = cancel

	eg, _ := errgroup.WithContext(ctx)
	s.queueGroup = eg

	workers := s.cfg.Queue.Workers
	if workers <= 0 {
		workers = 1
	}
	waitSeconds := int(s.cfg.Queue.DequeueWait.Seconds())
	if waitSeconds <= 0 {
		waitSeconds = 10
	}

	for i := 0; i < workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		eg.Go(func() error {
			s.q.RunWorker(ctx, workerID, s.prov, waitSeconds)
			return nil
		})
	}

	checkInterval := s.cfg.Queue.CheckInterval
	if checkInterval <= 0 {
		checkInterval = 60 * time.Second
	}
	eg.Go(func() error {
		s.q.RunCleanupDaemon(ctx, checkInterval)
		return nil
	})

	eg.Go(func() error {
		s.runQueueDepthSampler(ctx)
		return nil
	})
}

// runQueueDepthSampler periodically samples queue stats into the
// Prometheus gauges RunWorker/RunCleanupDaemon have no direct seam for.
func (s *Server) runQueueDepthSampler(ctx context.Context) {
	interval := s.cfg.Queue.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.q.Stats(ctx)
			if err != nil {
				s.logger.Warn("failed to sample queue stats", zap.Error(err))
				continue
			}
			s.metricsCollector.RecordQueueDepth(s.cfg.Queue.Name, stats.PendingLen, stats.ProcessingLen)
		}
	}
}

// initHandlers wires the chat and health handlers once the provider,
// limiter, and (optional) queue are ready.
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewProviderHealthCheck(s.prov))

	s.logger.Info("handlers initialized")
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer builds the mux and middleware chain, then brings the API
// listener up via internal/server.Manager.
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	chatHandler := handlers.NewChatHandler(s.prov, s.limiter, s.q, s.idem, s.logger)
	mux.HandleFunc("/v1/chat/completions", chatHandler.HandleCompletion)

	ipCtx, ipCancel := context.WithCancel(context.Background())
	s.ipLimiterCancel = ipCancel

	// Per-IP cap is a defense-in-depth multiple of the distributed
	// per-client budget, not a second source of truth for it.
	ipRPS := float64(s.cfg.RateLimit.RequestsPerMinute) / 60
	if ipRPS <= 0 {
		ipRPS = 10
	}
	ipBurst := s.cfg.RateLimit.BurstSize
	if ipBurst <= 0 {
		ipBurst = 20
	}

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		IPRateLimiter(ipCtx, ipRPS, ipBurst, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown blocks on the HTTP manager's signal handling, then runs
// the full teardown sequence.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown tears down both listeners, stops the queue's worker pool and
// cleanup daemon, closes the KV connection, and flushes telemetry.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown...")

	ctx := context.Background()

	if s.ipLimiterCancel != nil {
		s.ipLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.workerCancel != nil {
		s.workerCancel()
	}
	if s.queueGroup != nil {
		if err := s.queueGroup.Wait(); err != nil {
			s.logger.Error("queue goroutine exited with error", zap.Error(err))
		}
	}

	if s.prov != nil {
		if err := s.prov.Close(); err != nil {
			s.logger.Error("provider close error", zap.Error(err))
		}
	}

	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error("kv store close error", zap.Error(err))
		}
	}

	if s.otel != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.otel.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
