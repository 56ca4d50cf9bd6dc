package main

import (
	"blog_auth/internal/auth"
	"blog_auth/internal/config"
	"blog_auth/internal/handler"
	"blog_auth/internal/service"
	"blog_auth/internal/storage"
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	//PARSE ARGS
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the yaml config")

	flag.Parse()
	if configPath == "" {
		log.Fatal("failed get config path from flags")
	}

	cfg := config.MustLoadConfig(configPath)

	//INIT LOGGER
	lgr := setupLogger(cfg.Env)
	lgr.Info("starting blog auth service", slog.String("env", cfg.Env))

	if cfg.Env != envLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//INIT DB
	st, err := setupStorage(ctx, cfg, lgr)
	if err != nil {
		lgr.Error("failed to init storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	//INIT SERVICE
	tokens, err := auth.NewTokenCodec(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret)
	if err != nil {
		lgr.Error("failed to init token codec", slog.Any("error", err))
		os.Exit(1)
	}

	srvc := service.NewService(st, st, auth.NewHasher(cfg.Auth.BcryptCost), tokens, service.Config{
		AccessTTL:         cfg.Auth.AccessTTL,
		RefreshTTL:        cfg.Auth.RefreshTTL,
		RotationThreshold: cfg.Auth.RotationThreshold,
	}, lgr)

	if cfg.Auth.SweepInterval > 0 {
		go srvc.RunSweeper(ctx, cfg.Auth.SweepInterval)
	}

	//INIT SERVER
	hndlr := handler.NewHandler(srvc, lgr, handler.CookieConfig{
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		Secure:     !cfg.Cookies.Insecure,
		SameSite:   cfg.Cookies.SameSiteMode(),
		Domain:     cfg.Cookies.Domain,
	}, cfg.HTTPServer.RequestTimeout)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      hndlr.InitRoutes(),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		lgr.Info("http server listening", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Error("http server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	lgr.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("http server shutdown failed", slog.Any("error", err))
	}
	lgr.Info("http server stopped")
}

func setupStorage(ctx context.Context, cfg *config.Config, lgr *slog.Logger) (storage.Storage, error) {
	if cfg.DB.Driver == config.DriverMemory {
		lgr.Warn("using in-memory storage, data is lost on restart")

		return storage.NewMemoryStorage(), nil
	}

	if cfg.DB.AutoMigrate {
		if err := storage.Migrate(cfg.DB.DbURL); err != nil {
			return nil, err
		}
		lgr.Info("database migrations applied")
	}

	return storage.NewPostgresStorage(ctx, cfg.DB.DbURL)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
