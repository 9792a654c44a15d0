package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/meiduo/internal/cart"
	"github.com/fjod/meiduo/internal/checkout"
	"github.com/fjod/meiduo/internal/config"
	mallgrpc "github.com/fjod/meiduo/internal/grpc"
	mallhttp "github.com/fjod/meiduo/internal/http"
	"github.com/fjod/meiduo/internal/inventory"
	"github.com/fjod/meiduo/internal/poller"
	"github.com/fjod/meiduo/internal/publisher"
	"github.com/fjod/meiduo/internal/repository"
	"github.com/fjod/meiduo/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	zerolog.DefaultContextLogger = &log

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("mall stopped with error")
	}
	log.Info().Msg("mall stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database setup
	repo, err := repository.NewRepository(&repository.Credentials{
		Dialect:    repository.Dialect(cfg.DBDriver),
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		User:       cfg.DBUser,
		Password:   cfg.DBPassword,
		DBName:     cfg.DBName,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("database migrations completed")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("redis ping succeeded")

	cartStore := cart.NewRedisStore(redisClient)
	carts := cart.NewService(cartStore, cart.NewCookieCodec([]byte(cfg.CartCookieSecret), cfg.CartCookieMaxAge))

	ledger := inventory.NewLedger(
		inventory.WithMaxAttempts(cfg.LedgerMaxAttempts),
		inventory.WithLogger(log.With().Str("component", "stock-ledger").Logger()),
	)
	checkoutService := checkout.NewService(repo, cartStore, ledger,
		checkout.WithFreight(cfg.Freight),
		checkout.WithLocation(cfg.OrderTimeZone),
		checkout.WithLogger(log.With().Str("component", "checkout").Logger()),
	)

	router := mallhttp.NewRouter(
		mallhttp.RouterConfig{Logger: log, RequestTimeout: cfg.RequestTimeout, MaxBodyBytes: 1 << 20},
		mallhttp.NewCartHandler(carts, repo, cfg.CartCookieMaxAge),
		mallhttp.NewCheckoutHandler(checkoutService),
		mallhttp.NewOrdersHandler(repo),
	)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	healthServer := mallgrpc.NewHealthServer(map[string]mallgrpc.PingFunc{
		"database": repo.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}, log.With().Str("component", "health").Logger())
	grpcServer := healthServer.NewServer()
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen on grpc port: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.GRPCPort).Msg("grpc server listening")
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		healthServer.Run(gctx)
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		outbox := publisher.NewOutboxPoller(repo, log, cfg.KafkaBrokers...)
		defer outbox.Close()
		reconciler := poller.NewCartReconciler(cartStore, repo, log, cfg.KafkaBrokers...)
		defer reconciler.Close()

		g.Go(func() error {
			outbox.Run(gctx)
			return nil
		})
		g.Go(func() error {
			reconciler.Run(gctx)
			return nil
		})
		log.Info().Strs("brokers", cfg.KafkaBrokers).Msg("outbox publisher and cart reconciler started")
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set, cart reconciliation relies on inline cleanup only")
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		err := httpServer.Shutdown(shutdownCtx)

		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			// health Watch streams never end on their own
			grpcServer.Stop()
		}
		return err
	})

	return g.Wait()
}
