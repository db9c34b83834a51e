package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/cache"
	"github.com/fjod/go_cart/commerce-service/internal/catalog"
	"github.com/fjod/go_cart/commerce-service/internal/config"
	commercegrpc "github.com/fjod/go_cart/commerce-service/internal/grpc"
	commercehttp "github.com/fjod/go_cart/commerce-service/internal/http"
	"github.com/fjod/go_cart/commerce-service/internal/logger"
	"github.com/fjod/go_cart/commerce-service/internal/metrics"
	"github.com/fjod/go_cart/commerce-service/internal/poller"
	"github.com/fjod/go_cart/commerce-service/internal/repository"
	"github.com/fjod/go_cart/commerce-service/internal/service"
	"github.com/fjod/go_cart/commerce-service/internal/tracing"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const serviceName = "commerce-service"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type indexer interface {
	CreateIndexes(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(logger.Config{Level: cfg.LogLevel, Env: cfg.Env})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	if err := run(cfg, l); err != nil {
		l.Fatal("commerce service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: serviceName,
		Version:     version,
		Env:         cfg.Env,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			l.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	grpc_prometheus.EnableHandlingTimeHistogram()
	reg.MustRegister(grpc_prometheus.DefaultServerMetrics)
	m := metrics.New(reg)

	var mongoDB *mongo.Database
	if cfg.UsesMongo() {
		mongoDB, err = repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.DBName)
		if err != nil {
			return err
		}
		defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()
		l.Info("connected to MongoDB", zap.String("db", cfg.Mongo.DBName))
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "redis connection failed")
		}
		l.Info("redis ping succeeded", zap.String("addr", cfg.Redis.Addr))
	}

	cartRepo, err := newCartRepository(ctx, cfg, mongoDB)
	if err != nil {
		return err
	}
	loyaltyRepo, closeLoyalty, err := newLoyaltyRepository(ctx, cfg, mongoDB, l)
	if err != nil {
		return err
	}
	defer closeLoyalty()

	products, liveProducts := newCatalog(cfg, mongoDB, redisClient, l)

	var cartCache cache.CartCache = cache.NopCache{}
	if redisClient != nil {
		cartCache = cache.NewRedisCache(redisClient, 0)
	}

	opts := []service.Option{
		service.WithMetrics(m),
		service.WithMaxAttempts(cfg.MutationRetries),
	}
	cartService := service.NewCartService(cartRepo, cartCache, products, l,
		append(opts, service.WithStockReader(liveProducts))...)
	loyaltyService := service.NewLoyaltyService(loyaltyRepo, l, opts...)

	grpcServer := commercegrpc.NewServer(
		commercegrpc.NewCartServiceServer(cartService),
		commercegrpc.NewLoyaltyServiceServer(loyaltyService),
		l,
	)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPC.Port))
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	httpServer := &http.Server{
		Addr: ":" + cfg.HTTP.Port,
		Handler: commercehttp.NewRouter(commercehttp.RouterConfig{
			Cart:           cartService,
			Loyalty:        loyaltyService,
			Logger:         l,
			Metrics:        m,
			Gatherer:       reg,
			RequestTimeout: cfg.HTTP.RequestTimeout,
			JWTSecret:      cfg.Auth.JWTSecret,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		l.Info("gRPC server listening", zap.String("port", cfg.GRPC.Port))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- errors.Wrap(err, "grpc serve")
		}
	}()
	go func() {
		l.Info("HTTP server listening", zap.String("port", cfg.HTTP.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "http serve")
		}
	}()

	pollerDone := make(chan struct{})
	if len(cfg.Kafka.Brokers) > 0 {
		rate, err := poller.ParseRate(cfg.Loyalty.PointsPerUnit)
		if err != nil {
			return err
		}
		p := poller.NewPoller(loyaltyService, poller.Config{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.OrderTopic,
			GroupID:       cfg.Kafka.GroupID,
			PointsPerUnit: rate,
		}, l, m)
		defer p.Close()
		go func() {
			defer close(pollerDone)
			l.Info("order poller started", zap.String("topic", cfg.Kafka.OrderTopic))
			p.Run(ctx)
		}()
	} else {
		close(pollerDone)
		l.Info("KAFKA_BROKERS not set, order poller disabled")
	}

	var runErr error
	select {
	case <-ctx.Done():
		l.Info("shutting down commerce service")
	case runErr = <-errCh:
		l.Error("server failed, shutting down", zap.Error(runErr))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Warn("HTTP shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	<-pollerDone

	l.Info("commerce service stopped")
	return runErr
}

func newCartRepository(ctx context.Context, cfg *config.Config, db *mongo.Database) (repository.CartRepository, error) {
	if cfg.Stores.Cart == config.StoreMemory {
		return repository.NewMemoryCartRepository(), nil
	}
	repo := repository.NewMongoRepository(db)
	if err := repo.(indexer).CreateIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func newLoyaltyRepository(
	ctx context.Context,
	cfg *config.Config,
	db *mongo.Database,
	l *zap.Logger,
) (repository.LoyaltyRepository, func(), error) {
	switch cfg.Stores.Loyalty {
	case config.StoreMemory:
		return repository.NewMemoryLoyaltyRepository(), func() {}, nil
	case config.StorePostgres:
		pool, err := repository.ConnectPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewPostgresLoyaltyRepository(pool)
		if err := repo.RunMigrations(cfg.Postgres.MigrationsPath); err != nil {
			pool.Close()
			return nil, nil, err
		}
		l.Info("loyalty ledger on postgres, migrations applied")
		return repo, pool.Close, nil
	default:
		repo := repository.NewMongoLoyaltyRepository(db)
		if err := repo.(indexer).CreateIndexes(ctx); err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	}
}

// newCatalog returns the reader used for cart enrichment and the live reader
// used for stock checks. Both go through the circuit breaker; only enrichment
// reads through the Redis cache.
func newCatalog(cfg *config.Config, db *mongo.Database, redisClient *redis.Client, l *zap.Logger) (catalog.Catalog, catalog.Catalog) {
	if cfg.Catalog.Store == config.StoreMemory {
		l.Warn("CATALOG_STORE=memory, using an empty in-memory catalog")
		products := catalog.NewMemoryCatalog()
		return products, products
	}

	live := catalog.NewBreakerCatalog(catalog.NewMongoCatalog(db), catalog.BreakerSettings{
		MaxFailures: cfg.Catalog.BreakerMaxFailures,
		OpenTimeout: cfg.Catalog.BreakerOpenTimeout,
	}, l)
	if redisClient == nil {
		return live, live
	}
	return catalog.NewCachedCatalog(live, redisClient, cfg.Catalog.CacheTTL, l), live
}
