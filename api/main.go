package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/news-relay/internal/config"
	"github.com/DeafMist/news-relay/internal/logger"
	"github.com/DeafMist/news-relay/internal/query"
	"github.com/DeafMist/news-relay/internal/redisstore"
	"github.com/DeafMist/news-relay/internal/startup"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := startup.Connect(ctx, log, "redis", startup.DefaultBackoff, func(ctx context.Context) (*redisstore.Store, error) {
		return redisstore.New(ctx, cfg.RedisURL)
	})
	if err != nil {
		log.Error("init redis", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	srv := &server{log: log, cfg: cfg, news: query.New(store, log), store: store}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
