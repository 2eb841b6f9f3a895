package main

import (
	"context"
	"log"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/common/database"
	"github.com/OOO-MoMo/Monitoring-System-sub000/common/logger"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/config"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/migrations"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.NewLogger(cfg.Log.Level, "console", "telemetry-migrate")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		lg.Fatal("Cannot connect to database", zap.String("db", cfg.Database.Database), zap.Error(err))
	}
	defer database.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := migrations.Apply(ctx, db, lg); err != nil {
		lg.Fatal("Migration failed", zap.Error(err))
	}
}
