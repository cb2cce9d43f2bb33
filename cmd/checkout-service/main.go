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

	"github.com/redis/go-redis/v9"

	"github.com/mercatto/checkout-service/internal/cache"
	"github.com/mercatto/checkout-service/internal/config"
	checkouthttp "github.com/mercatto/checkout-service/internal/http"
	"github.com/mercatto/checkout-service/internal/payment"
	"github.com/mercatto/checkout-service/internal/publisher"
	"github.com/mercatto/checkout-service/internal/repository"
	"github.com/mercatto/checkout-service/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	slog.Info("checkout-service starting")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	repo, err := repository.NewRepository(&cfg.DB)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(&cfg.DB); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations completed")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	couponCache := cache.NewRedisCache(redisClient)

	paymentClient := payment.NewHTTPClient(cfg.PaymentGatewayURL, cfg.RequestTimeout)

	orderService := service.NewOrderService(repo, repo, repo, repo, paymentClient, cfg.PlatformFeeBps)
	couponService := service.NewCouponService(repo, repo, couponCache)

	poller := publisher.NewOutboxPoller(repo, cfg.PendingOrderTTL, cfg.KafkaBrokers...)
	defer poller.Close()

	pollerCtx, stopPoller := context.WithCancel(context.Background())
	defer stopPoller()
	go poller.Run(pollerCtx)

	router := checkouthttp.NewRouter(
		checkouthttp.NewOrderHandler(orderService, cfg.RequestTimeout),
		checkouthttp.NewCouponHandler(couponService, cfg.RequestTimeout),
		cfg.RequestTimeout,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	stopPoller()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server exited")
}
