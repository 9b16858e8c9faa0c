package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/yarelay/internal/adapter/driven/gateway/ws"
	handler "github.com/Wyydra/yarelay/internal/adapter/driving/http"
	"github.com/Wyydra/yarelay/internal/config"
	"github.com/Wyydra/yarelay/internal/core/service"
	"github.com/Wyydra/yarelay/internal/logging"
	"github.com/Wyydra/yarelay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func serve(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.close()

	var (
		rec            *metrics.Recorder
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec = metrics.New(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	hub := ws.NewHub(rec)

	presenceService := service.NewPresenceService(st.users, hub)
	chatService := service.NewChatService(st.users, st.messages, hub)
	callService := service.NewCallService(st.users, hub)
	userService := service.NewUserService(st.users, st.messages)

	h := handler.NewHandler(presenceService, chatService, callService, userService, rec, handler.Options{
		StaticDir:      cfg.StaticDir,
		SendBuffer:     cfg.WS.SendBuffer,
		MaxFrameBytes:  cfg.WS.MaxFrameBytes,
		AllowedOrigins: cfg.WS.AllowedOrigins,
		MetricsHandler: metricsHandler,
		Ready:          st.ping,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddress,
		Handler: h.NewRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddress).Str("store", cfg.Store.Driver).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		log.Error().Err(err).Msg("Failed to start server")
		return err
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	hub.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}
