package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TemirB/dianping-seckill/internal/application/handler"
	"github.com/TemirB/dianping-seckill/internal/application/service"
	"github.com/TemirB/dianping-seckill/internal/cache"
	"github.com/TemirB/dianping-seckill/internal/config"
	"github.com/TemirB/dianping-seckill/internal/database"
	"github.com/TemirB/dianping-seckill/internal/httpapi"
	"github.com/TemirB/dianping-seckill/internal/idgen"
	"github.com/TemirB/dianping-seckill/internal/infrastructure/postgres"
	"github.com/TemirB/dianping-seckill/internal/infrastructure/redis"
	"github.com/TemirB/dianping-seckill/internal/kafka"
	"github.com/TemirB/dianping-seckill/internal/lock"
	"github.com/TemirB/dianping-seckill/internal/observability"
	"github.com/TemirB/dianping-seckill/internal/pkg/breaker"
	"github.com/TemirB/dianping-seckill/internal/pkg/pool"
	"github.com/TemirB/dianping-seckill/internal/seckill"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Application stopped with error", zap.Error(err))
	}
	logger.Info("Application stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics := observability.NewInmem(1000)

	pg, err := postgres.Connect(ctx, cfg.DSN(), logger)
	if err != nil {
		return err
	}
	defer pg.Close()
	repo := database.New(pg, cfg.Tables)

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	locker := lock.New(rdb)
	ids := idgen.New(rdb)

	rebuilds := pool.New(cfg.Cache.RebuildWorkers, cfg.Cache.RebuildQueue, logger.Named("rebuild"))
	defer func() {
		rebuilds.Close()
		rebuilds.Wait()
	}()

	store := cache.New(rdb, locker, rebuilds, cache.Options{
		NullTTL:   cfg.Cache.NullTTL,
		LockLease: cfg.Cache.LockLease,
		Retry:     cfg.Retry,
	}, logger.Named("cache"), metrics)

	hot, err := cache.NewHotSet[int64](cfg.Cache.HotCap)
	if err != nil {
		return err
	}
	shops := service.NewService(store, repo, service.NewStorageBreaker(cfg.Breaker, logger.Named("breaker")), hot, cfg.Cache, logger.Named("shop"), metrics)

	deps := seckill.Deps{
		Redis:    rdb,
		IDs:      ids,
		Locker:   locker,
		Orders:   repo,
		Vouchers: repo,
	}
	if cfg.KafkaEnabled() {
		if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic, 3, 1, logger); err != nil {
			logger.Warn("Orders topic not ready, events may be lost", zap.Error(err))
		}
		pub := kafka.NewOrderPublisher(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic), logger.Named("orders-pub"))
		defer func() { _ = pub.Close() }()
		deps.Publisher = pub
	}
	orders := seckill.New(deps, cfg.Seckill, logger.Named("seckill"), metrics)

	if n, err := orders.WarmStock(ctx); err != nil {
		logger.Error("Error while warming seckill stock", zap.Error(err))
	} else {
		logger.Info("Seckill vouchers ready", zap.Int("seeded", n))
	}
	if cfg.Cache.Mode == config.ModeLogical {
		if _, err := shops.Warm(ctx, cfg.Cache.HotCap); err != nil {
			logger.Error("Error while warming shop cache", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return orders.Run(gctx)
	})

	if cfg.Cache.Mode == config.ModeLogical && cfg.Cache.RewarmInterval > 0 {
		g.Go(func() error {
			t := time.NewTicker(cfg.Cache.RewarmInterval)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					shops.RewarmHot(gctx)
				}
			}
		})
	}

	if cfg.KafkaEnabled() {
		if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, 3, 1, logger); err != nil {
			logger.Warn("Shop change topic not ready", zap.Error(err))
		}
		reader := kafka.NewReader(cfg.Kafka)
		defer func() { _ = reader.Close() }()

		h := handler.NewHandler(shops, breaker.New(cfg.Breaker), cfg.Retry, logger.Named("invalidate"))
		consumer := kafka.NewConsumer(h, reader, cfg.Kafka.Workers, logger.Named("kafka"), metrics)
		g.Go(func() error {
			consumer.Start(gctx)
			return nil
		})
	}

	srv := httpapi.New(shops, orders, logger.Named("http"), metrics)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		return srv.ListenAndServe(gctx, cfg.HTTPAddr)
	})

	err = g.Wait()
	t := metrics.Totals()
	logger.Info("Shutdown totals",
		zap.Int("cache_hits", t.CacheHits),
		zap.Int("cache_miss", t.CacheMiss),
		zap.Int("cache_stale", t.CacheStale),
		zap.Int("rebuilds", t.Rebuilds),
		zap.Int("materialized", t.Materialized),
		zap.Int("materialize_failed", t.MaterializeFailed),
		zap.Any("admissions", t.Admissions),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
