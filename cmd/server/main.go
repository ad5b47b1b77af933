package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/linemk/order-portal/internal/app"
	"github.com/linemk/order-portal/internal/chat"
	"github.com/linemk/order-portal/internal/config"
	"github.com/linemk/order-portal/internal/lib/logger"
	"github.com/linemk/order-portal/internal/lib/metrics"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env, cfg.Log.Level)
	log.Info("starting app", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// объект приложения с конфигом и подключениями к БД и redis
	application, err := app.NewApp(ctx, log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	m := metrics.New()

	var broker chat.Broker
	if application.Redis != nil {
		broker = chat.NewRedisBroker(log, application.Redis, cfg.Redis.Channel)
	}
	hub := chat.NewHub(log, broker, m, cfg.Chat.SendBuffer)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	services := app.NewServices(log, application.DB, app.ServiceConfig{
		JWTSecret:        cfg.JWT.Secret,
		TokenTTL:         time.Duration(cfg.JWT.TokenTTL) * time.Minute,
		ChatHistoryLimit: cfg.Chat.HistoryLimit,
	}, hub, m)

	if err := services.Auth.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.Error("failed to ensure admin", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to ensure admin"))
	}

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      app.NewRouter(log, cfg.JWT.Secret, services, hub, m),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	log.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	stopHub()
	log.Info("server gracefully stopped")
}
