package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	handlers "RubiSOS/internal/handler"
	"RubiSOS/internal/relay"
	"RubiSOS/pkg/config"
	"RubiSOS/pkg/logger"
	"RubiSOS/pkg/metrics"
	"RubiSOS/pkg/middleware"
	"RubiSOS/pkg/scheduler"
	"RubiSOS/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rubisos:", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. 配置与日志
	if err := config.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := config.GlobalConfig
	if err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	gin.SetMode(cfg.Mode)

	wsCfg := websocket.LoadConfigFromEnv()
	if err := websocket.ValidateConfig(wsCfg); err != nil {
		return fmt.Errorf("websocket config: %w", err)
	}

	// 2. 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// 3. 中继核心
	registry := relay.NewRegistry()
	alerts := relay.NewAlertStore(cfg.AlertRetention)
	resolver, err := buildResolver(cfg.Proximity, registry)
	if err != nil {
		return err
	}
	rl := relay.New(registry, alerts, resolver, relay.Options{StrictErrors: cfg.StrictErrors, Metrics: m})

	// 4. 传输与路由
	hub := websocket.NewHub(wsCfg)
	hub.SetObserver(m)

	limiter, err := middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: cfg.RateLimit, AddHeaders: true}, nil)
	if err != nil {
		return fmt.Errorf("rate limit %q: %w", cfg.RateLimit, err)
	}
	limiter.WithObserver(middleware.NewPrometheusObserver(reg))

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.AccessLog())
	handlers.NewHandlers(rl, hub, reg, cfg.Proximity.RadiusKm).Register(engine, cfg.MetricsPath, limiter.Middleware())

	// 5. 定时任务
	cron := scheduler.NewCron(time.UTC)
	if _, err := cron.AddWithCtx(cfg.StatsSchedule, statsJob(rl, hub)); err != nil {
		return fmt.Errorf("stats schedule %q: %w", cfg.StatsSchedule, err)
	}
	sched := scheduler.New()
	sched.Every(sweepInterval(cfg.AlertRetention), scheduler.FuncJob(func(context.Context) {
		alerts.Sweep()
		rl.RefreshGauges()
	}))
	cron.Start()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("rubiSOS relay listening",
			zap.String("addr", cfg.Addr),
			zap.String("proximity", cfg.Proximity.Mode),
			zap.Duration("alert_retention", cfg.AlertRetention),
			zap.Any("websocket", websocket.GetConfigSummary(wsCfg)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cron.Stop()
	sched.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	// 升级后的连接不受 Shutdown 管理，由 Hub 关闭
	hub.Close()
	return nil
}

// buildResolver 根据配置选择接收者策略
func buildResolver(cfg config.ProximityConfig, registry *relay.Registry) (relay.Resolver, error) {
	switch cfg.Mode {
	case config.ProximityPair:
		if len(cfg.Pair) != 2 {
			return nil, fmt.Errorf("pair proximity needs two identities, got %v", cfg.Pair)
		}
		return relay.PairResolver{A: cfg.Pair[0], B: cfg.Pair[1]}, nil
	case config.ProximityRadius:
		return relay.RadiusResolver{
			Source:        registry,
			RadiusKm:      cfg.RadiusKm,
			MaxRecipients: cfg.MaxRecipients,
		}, nil
	}
	return nil, fmt.Errorf("unknown proximity mode %q", cfg.Mode)
}

// sweepInterval 过期清理间隔，未开启保留期时为 0（不调度）
func sweepInterval(retention time.Duration) time.Duration {
	if retention <= 0 {
		return 0
	}
	if d := retention / 2; d > time.Second {
		return d
	}
	return time.Second
}

func statsJob(rl *relay.Relay, hub *websocket.Hub) func(context.Context) {
	return func(context.Context) {
		rl.RefreshGauges()
		stats := rl.Stats()
		logger.Info("relay stats",
			zap.Int64("connections", hub.GetConnectionCount()),
			zap.Int("registered_clients", stats.RegisteredClients),
			zap.Int("alerts_active", stats.Alerts.Active),
			zap.Int("alerts_cancelled", stats.Alerts.Cancelled))
	}
}
