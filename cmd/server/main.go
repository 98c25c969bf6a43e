// Package main запускает сервис синхронизации заданий досок.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dlass/internal/app"
	"dlass/internal/config"
	"dlass/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Инициализация логгера
	zlog := logger.New(logger.Options{Level: cfg.LogLevel, Path: cfg.LogPath})
	defer func() { _ = zlog.Sync() }()

	// Контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to create application", zap.Error(err))
	}

	if err := application.Run(ctx); err != nil {
		zlog.Error("Application stopped with error", zap.Error(err))
		os.Exit(1)
	}

	zlog.Info("Application stopped successfully")
}
