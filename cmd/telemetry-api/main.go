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

// telemetry-api 只提供 HTTP 上报与查询，不启动 MQTT / Stream 消费者
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Telemetry.IngestSource = config.IngestSourceHTTP
	if cfg.MQTT.ClientID == "telemetry-ingest" {
		cfg.MQTT.ClientID = "telemetry-api"
	}

	lg, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "telemetry-api")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

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

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = svc.Stop(shutdownCtx)
}
