package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"snapforecast/internal/app"
	"snapforecast/internal/config"
	"snapforecast/internal/logging"
	transporthttp "snapforecast/internal/transport/http"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logging.NewLogger("info").WithError(err).Fatal("load config")
	}
	logger := logging.NewLoggerWithService("snapforecast-api", cfg.LogLevel)

	if os.Getenv("GIN_MODE") != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		logger.WithError(err).Fatal("init app")
	}
	defer a.Close()

	server := transporthttp.NewServer(transporthttp.DepsFromApp(a), logger, a.Metrics)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 11 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("snapforecast API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("listen")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
}
