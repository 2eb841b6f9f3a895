package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/common/logger"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/config"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	lg, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "telemetry-ingest")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("Starting telemetry-ingest service",
		zap.String("ingest_source", cfg.Telemetry.IngestSource),
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("http_addr", cfg.HTTP.Addr),
	)

	deps, err := service.Connect(cfg, lg)
	if err != nil {
		lg.Fatal("Failed to connect dependencies", zap.Error(err))
	}

	svc, err := service.NewTelemetryService(cfg, deps, lg)
	if err != nil {
		deps.Close()
		lg.Fatal("Failed to create telemetry service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		lg.Fatal("Failed to start telemetry service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	lg.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := svc.Stop(shutdownCtx); err != nil {
		lg.Error("Error during shutdown", zap.Error(err))
	}

	lg.Info("Service stopped")
}
