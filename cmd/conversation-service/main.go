package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neurocopilot/cmd/conversation-service/internal/conf"
	"neurocopilot/pkg/observability"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
)

var (
	version    = "dev"
	configFile = flag.String("config", "./configs/conversation-service.yaml", "配置文件路径（nacos 模式下为连接配置）")
)

const shutdownTimeout = 30 * time.Second

func main() {
	flag.Parse()

	bootstrap, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init bootstrap logger: %v", err)
	}

	config, manager, err := conf.Load(*configFile, bootstrap)
	if err != nil {
		bootstrap.Fatal("Failed to load config", zap.Error(err))
	}
	defer manager.Close()

	level, logger, err := initLogger(config.Log)
	if err != nil {
		bootstrap.Fatal("Failed to init logger", zap.Error(err))
	}
	defer logger.Sync()

	// 日志级别支持热更新
	manager.OnChange(func() {
		var lc conf.LogConfig
		if err := manager.UnmarshalKey("log", &lc); err != nil || lc.Level == "" {
			return
		}
		if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
			logger.Warn("invalid log level in reloaded config", zap.String("level", lc.Level))
			return
		}
		logger.Info("log level updated", zap.String("level", lc.Level))
	})

	logger.Info("Starting Conversation Service",
		zap.String("config_mode", string(manager.Mode())),
		zap.String("addr", config.Server.Addr),
	)

	config.Tracing.ServiceVersion = version
	shutdownTracing, err := observability.InitTracing(context.Background(), config.Tracing)
	if err != nil {
		logger.Fatal("Failed to init tracing", zap.Error(err))
	}

	app, cleanup, err := initApp(config, logger)
	if err != nil {
		logger.Fatal("Failed to initialize app", zap.Error(err))
	}
	defer cleanup()

	mux := http.NewServeMux()
	mux.Handle(config.Metrics.Path, promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              config.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := app.HTTP.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Metrics server starting", zap.String("addr", config.Metrics.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Metrics server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.HTTP.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("Tracing shutdown failed", zap.Error(err))
	}

	logger.Info("Servers exited")
}

// initLogger 初始化日志，返回可热更新的级别
func initLogger(cfg conf.LogConfig) (zap.AtomicLevel, *zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	zapConfig.InitialFields = map[string]interface{}{
		"service": conf.ServiceName,
		"version": version,
	}

	logger, err := zapConfig.Build()
	return level, logger, err
}
