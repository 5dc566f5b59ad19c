package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/api/handlers"
	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/graph/checkpoint/factory"
	"github.com/BaSui01/agentgraph/internal/demo"
	"github.com/BaSui01/agentgraph/internal/metrics"
	"github.com/BaSui01/agentgraph/internal/server"
	"github.com/BaSui01/agentgraph/internal/telemetry"
)

// skipAuthPaths 不需要认证的路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 托管演示图的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	backend   *factory.Backend

	registry     *prometheus.Registry
	collector    *metrics.Collector
	graphMetrics *telemetry.GraphMetrics

	healthHandler *handlers.HealthHandler
	graphHandler  *handlers.GraphHandler
	handler       http.Handler

	httpManager    *server.Manager
	metricsManager *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器并注册演示图，不监听端口
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers, backend *factory.Backend) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
		backend:   backend,
		registry:  prometheus.NewRegistry(),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollectorWithRegistry("agentgraph", s.registry, logger)

	graphMetrics, err := telemetry.NewGraphMetrics(providers.Meter(telemetry.InstrumentationName))
	if err != nil {
		return nil, fmt.Errorf("init graph metrics: %w", err)
	}
	s.graphMetrics = graphMetrics

	if err := s.initHandlers(); err != nil {
		return nil, fmt.Errorf("init handlers: %w", err)
	}
	s.handler = s.buildHandler()
	return s, nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) compileOptions() []graph.CompileOption {
	opts := []graph.CompileOption{
		graph.WithLogger(s.logger),
		graph.WithObserver(graph.MultiObserver(s.collector, s.graphMetrics)),
		graph.WithTracer(s.telemetry.Tracer("agentgraph")),
		graph.WithRecursionLimit(s.cfg.Graph.RecursionLimit),
	}
	if s.backend != nil {
		opts = append(opts, graph.WithCheckpointer(s.backend.Store))
	}
	return opts
}

func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.backend != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("checkpoint_"+s.backend.Kind, s.backend.Ping))
	}

	s.graphHandler = handlers.NewGraphHandler(s.logger, handlers.WithInvokeTimeout(s.cfg.Graph.InvokeTimeout))
	runtimes, err := demo.Runtimes(s.cfg.Graph.DefaultCacheTTL, s.compileOptions()...)
	if err != nil {
		return err
	}
	for _, rt := range runtimes {
		if err := s.graphHandler.Register(rt); err != nil {
			return err
		}
	}
	return nil
}

// buildHandler 组装路由与中间件链
func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()
	s.healthHandler.Routes(mux, Version, BuildTime, GitCommit)
	s.graphHandler.Routes(mux)

	sc := s.cfg.Server
	var limiter, apiKeys, jwtAuth Middleware
	if sc.RateLimitRPS > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.rateLimiterCancel = cancel
		limiter = RateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger)
	}
	if len(sc.APIKeys) > 0 {
		apiKeys = APIKeyAuth(sc.APIKeys, skipAuthPaths, true, s.logger)
	}
	if sc.JWT.Secret != "" {
		jwtAuth = JWTAuth(sc.JWT, skipAuthPaths, s.logger)
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(sc.CORSAllowedOrigins),
		limiter,
		apiKeys,
		jwtAuth,
	)
}

// Handler 返回完整的 API handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// =============================================================================
// 🚀 启动与关闭
// =============================================================================

// Start 启动 API 与 Metrics 服务器（非阻塞）。MetricsPort 为 0 时不启动 Metrics 服务器。
func (s *Server) Start() error {
	s.httpManager = server.NewManager(s.handler, server.FromConfig("api", s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	if s.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
		metricsCfg := server.FromConfig("metrics", s.cfg.Server, s.cfg.Server.MetricsPort)
		metricsCfg.TLSCertFile, metricsCfg.TLSKeyFile = "", ""
		s.metricsManager = server.NewManager(mux, metricsCfg, s.logger)
		if err := s.metricsManager.Start(); err != nil {
			_ = s.httpManager.Shutdown(context.Background())
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	s.logger.Info("all servers started",
		zap.String("http_addr", s.httpManager.ListenAddr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("checkpoint_backend", s.backendKind()),
	)
	return nil
}

func (s *Server) backendKind() string {
	if s.backend == nil {
		return "none"
	}
	return s.backend.Kind
}

// Wait 阻塞直到 ctx 结束或 API 服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	if s.httpManager == nil {
		return errors.New("server not started")
	}
	return s.httpManager.Wait(ctx)
}

// Shutdown 优雅关闭所有服务，按启动的逆序释放资源
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("starting graceful shutdown")

	var errs []error
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("checkpoint backend: %w", err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("graceful shutdown finished with errors", zap.Error(err))
		return err
	}
	s.logger.Info("graceful shutdown completed")
	return nil
}
