package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/reactshop/community-chat/backend/internal/auth"
	"github.com/reactshop/community-chat/backend/internal/config"
	"github.com/reactshop/community-chat/backend/internal/handler"
	chatHandler "github.com/reactshop/community-chat/backend/internal/handler/chat"
	"github.com/reactshop/community-chat/backend/internal/service/chat"
	"github.com/reactshop/community-chat/backend/internal/service/moderation"
	"github.com/reactshop/community-chat/backend/internal/storage"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "community chat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return exitConfig, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logs.GetLoggerFromString(cfg.Log.Level)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Warn("no .env file loaded, continuing with system environment variables only", "err", envErr)
	}

	store, err := storage.Open(ctx, cfg.Store, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open message store: %w", err)
	}
	defer func() {
		logger.Info("closing message store")
		if err := store.Close(); err != nil {
			logger.Error("failed to close message store", "err", err)
		}
	}()

	hubOpts := chat.Options{
		SendBuffer:    cfg.Chat.SendBuffer,
		StoreTimeout:  cfg.Chat.StoreTimeout,
		MaxTextLength: cfg.Chat.MaxTextLength,
	}

	censorChar, err := cfg.Moderation.CensorRune()
	if err != nil {
		return exitConfig, err
	}
	moderator, err := moderation.NewModerator(cfg.Moderation.Words(), censorChar)
	switch {
	case err == nil:
		hubOpts.Censor = moderator
		logger.Info("moderation enabled", "words", len(cfg.Moderation.Words()))
	case errors.Is(err, moderation.ErrNoWords):
		logger.Info("moderation disabled, no censored words configured")
	default:
		return exitConfig, fmt.Errorf("failed to build moderator: %w", err)
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	if verifier == nil {
		if cfg.Auth.Required {
			return exitConfig, errors.New("AUTH_REQUIRED is set but AUTH_JWT_SECRET is empty")
		}
		logger.Info("token verification disabled, trusting payload identity")
	}

	hub := chat.NewHub(store, logger, hubOpts)
	handlerOpts := chatHandler.Options{
		WriteTimeout:       cfg.Chat.WriteTimeout,
		PongWait:           cfg.Chat.PongWait,
		MaxFrameBytes:      cfg.Chat.MaxFrameBytes,
		MaxFramesPerSecond: cfg.Chat.MaxFramesPerSecond,
		ErrorFrames:        cfg.Chat.ErrorFrames,
		AuthRequired:       cfg.Auth.Required,
	}
	router := handler.NewRouter(hub, chatHandler.New(hub, verifier, logger, handlerOpts))

	if err := startServer(ctx, cfg.Server, router, logger); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("community chat listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
