package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hangulling/dorandoran-chat/internal/config"
	"github.com/Hangulling/dorandoran-chat/internal/dispatcher"
	"github.com/Hangulling/dorandoran-chat/internal/handler"
	"github.com/Hangulling/dorandoran-chat/internal/jwt"
	"github.com/Hangulling/dorandoran-chat/internal/log"
	"github.com/Hangulling/dorandoran-chat/internal/middleware"
	"github.com/Hangulling/dorandoran-chat/internal/pubsub"
	"github.com/Hangulling/dorandoran-chat/internal/registry"
	"github.com/Hangulling/dorandoran-chat/internal/service"
	"github.com/Hangulling/dorandoran-chat/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	log.Init(cfg.Log)
	logger := log.L()

	logger.Info().Msg("starting chat delivery service")

	// Initialize message store
	st, err := store.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize message store")
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	// Initialize pub/sub bus
	bus, err := pubsub.NewBus(cfg.Bus)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubsub bus")
	}
	defer bus.Close()
	logger.Info().Str("driver", cfg.Bus.Driver).Msg("connected to pubsub bus")

	// Initialize connection registry and chat service
	reg := registry.New()
	publisher := pubsub.NewPublisher(bus)
	chatSvc := service.NewChatService(st, publisher, nil, service.Options{
		PublishOnSaveFailure: cfg.Delivery.PublishOnSaveFailure,
	})

	// Start dispatcher (bus -> registry fan-out)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp := dispatcher.New(bus, reg)
	go disp.Run(ctx)

	// Initialize handlers
	jwtManager := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	mux := http.NewServeMux()
	handler.NewWSHandler(reg, chatSvc, cfg.WebSocket).RegisterRoutes(mux)
	handler.NewSSEHandler(reg, chatSvc, cfg.Delivery.SSEKeepAlive).RegisterRoutes(mux)
	handler.NewHistoryHandler(chatSvc).RegisterRoutes(mux)

	root := http.NewServeMux()
	root.Handle("/", middleware.RequireAuth(jwtManager)(mux))
	root.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     log.HTTPMiddleware(logger)(root),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: WebSocket and SSE connections are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("address", server.Addr).Msg("chat delivery service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat delivery service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop the dispatcher and wait for its loop to drain
	cancel()
	select {
	case <-disp.Done():
	case <-shutdownCtx.Done():
	}

	logger.Info().Msg("chat delivery service stopped")
}
