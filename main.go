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

	"github.com/gin-gonic/gin"

	"github.com/AndrewCorlett/errolian-club-sub000/config"
	"github.com/AndrewCorlett/errolian-club-sub000/database"
	"github.com/AndrewCorlett/errolian-club-sub000/handlers"
	"github.com/AndrewCorlett/errolian-club-sub000/logging"
	"github.com/AndrewCorlett/errolian-club-sub000/metrics"
	"github.com/AndrewCorlett/errolian-club-sub000/services"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
	"github.com/AndrewCorlett/errolian-club-sub000/utils"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	var opts []store.Option
	if !cfg.UseTransactions {
		opts = append(opts, store.WithoutTransactions())
	}
	st := store.New(db, opts...)

	// Connect to Redis (optional, settlements are not de-duplicated without it)
	var guard services.DuplicateGuard
	if client := database.ConnectRedis(ctx, cfg.RedisURL); client != nil {
		defer client.Close()
		guard = services.NewRedisDuplicateGuard(client)
	}

	m := metrics.New()
	notifier := services.NewNotificationService(ctx, cfg)
	activity := services.NewActivityService(st)

	h := &handlers.Handler{
		Store:       st,
		Users:       services.NewUserService(st, cfg.DefaultCurrency),
		Events:      services.NewEventService(st, activity, notifier),
		Expenses:    services.NewExpenseService(st, activity, notifier, m, cfg.DefaultCurrency),
		Balances:    services.NewBalanceService(st, m, cfg.DefaultCurrency),
		Settlements: services.NewSettlementService(st, activity, notifier, m, guard, cfg.SettlementDedupWindow, cfg.DefaultCurrency),
		Activity:    activity,
		Tokens:      utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL, cfg.AppName),
		Metrics:     m,
		AppName:     cfg.AppName,
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "app", cfg.AppName, "addr", srv.Addr, "health", cfg.AppURL+"/health")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
