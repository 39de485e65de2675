package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/dianping-seckill/internal/cache"
	"github.com/TemirB/dianping-seckill/internal/config"
	"github.com/TemirB/dianping-seckill/internal/domain"
	"github.com/TemirB/dianping-seckill/internal/observability"
)

//go:generate mockgen -source=service.go -destination=service_mock_test.go -package=service

const (
	ShopKeyPrefix     = "cache:shop:"
	ShopTypeKeyPrefix = "cache:shop-type:"

	shopTypeListID = "list"
)

var ErrInvalidShop = errors.New("shop id is required")

type Storage interface {
	GetShopByID(ctx context.Context, id int64) (*domain.Shop, error)
	UpdateShop(ctx context.Context, shop *domain.Shop) error
	HotShopIDs(ctx context.Context, limit int) ([]int64, error)
	ListShopTypes(ctx context.Context) ([]domain.ShopType, error)
}

// Breaker is satisfied by *gobreaker.CircuitBreaker.
type Breaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
}

type Service struct {
	cache   *cache.Store
	storage Storage
	breaker Breaker
	hot     *cache.HotSet[int64]
	cfg     config.Cache
	logger  *zap.Logger
	metrics observability.Metrics
}

func NewService(
	store *cache.Store,
	storage Storage,
	brk Breaker,
	hot *cache.HotSet[int64],
	cfg config.Cache,
	logger *zap.Logger,
	metrics observability.Metrics,
) *Service {
	return &Service{
		cache:   store,
		storage: storage,
		breaker: brk,
		hot:     hot,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// loadShop is the cache loader. Which errors count against the breaker is
// decided by the breaker's own settings.
func (s *Service) loadShop(ctx context.Context, id int64) (*domain.Shop, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.storage.GetShopByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	shop, _ := v.(*domain.Shop)
	return shop, nil
}

func (s *Service) loadShopTypes(ctx context.Context, _ string) (*[]domain.ShopType, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.storage.ListShopTypes(ctx)
	})
	if err != nil {
		return nil, err
	}
	types, _ := v.([]domain.ShopType)
	if types == nil {
		types = []domain.ShopType{}
	}
	return &types, nil
}

func (s *Service) QueryByID(ctx context.Context, id int64) (*domain.Shop, error) {
	shop, _, err := s.QueryByIDWithStats(ctx, id)
	return shop, err
}

func (s *Service) QueryByIDWithStats(ctx context.Context, id int64) (*domain.Shop, LookupStats, error) {
	st := LookupStats{Mode: s.cfg.Mode}
	start := time.Now()

	var (
		shop *domain.Shop
		err  error
	)
	switch s.cfg.Mode {
	case config.ModePassThrough:
		shop, err = cache.ReadThrough(ctx, s.cache, ShopKeyPrefix, id, s.loadShop, s.cfg.ShopTTL)
	case config.ModeMutex:
		shop, err = cache.ReadWithMutex(ctx, s.cache, ShopKeyPrefix, id, s.loadShop, s.cfg.ShopTTL)
	default:
		shop, err = cache.ReadLogicalExpire(ctx, s.cache, ShopKeyPrefix, id, s.loadShop, s.cfg.LogicalTTL)
		if err == nil {
			s.hot.Touch(id)
		}
	}
	st.Ms = convertToMs(start)
	s.metrics.ObserveLookup(st.Mode, st.Ms, err == nil)

	if err != nil {
		if !isNotFound(err) {
			s.logger.Error("Error while querying shop",
				zap.Int64("shop_id", id),
				zap.String("mode", st.Mode),
				zap.Error(err),
			)
		}
		return nil, st, err
	}

	s.logger.Debug("Shop fetched",
		zap.Int64("shop_id", id),
		zap.String("mode", st.Mode),
		zap.Float64("lookup_ms", st.Ms),
	)
	return shop, st, nil
}

// Update writes the shop to the relational store first and only then
// touches the cache.
func (s *Service) Update(ctx context.Context, shop *domain.Shop) error {
	if shop == nil || shop.ID == 0 {
		return ErrInvalidShop
	}

	t0 := time.Now()
	if err := s.storage.UpdateShop(ctx, shop); err != nil {
		s.logger.Error("Error while updating shop in db",
			zap.Int64("shop_id", shop.ID),
			zap.Error(err),
		)
		return err
	}
	s.logger.Info("Shop updated",
		zap.Int64("shop_id", shop.ID),
		zap.Float64("db_write_ms", convertToMs(t0)),
	)
	return s.Invalidate(ctx, shop.ID)
}

// Invalidate drops the cached shop. Logical entries carry no TTL and a
// dropped one would read as missing, so in logical mode the entry is
// rewritten from the relational store instead.
func (s *Service) Invalidate(ctx context.Context, id int64) error {
	key := cache.Key(ShopKeyPrefix, id)
	if s.cfg.Mode != config.ModeLogical {
		return s.cache.Delete(ctx, key)
	}

	err := s.Prewarm(ctx, id)
	if isNotFound(err) {
		s.hot.Forget(id)
		return s.cache.Delete(ctx, key)
	}
	return err
}

// Prewarm loads one shop into the logical-expiration layout.
func (s *Service) Prewarm(ctx context.Context, id int64) error {
	shop, err := s.loadShop(ctx, id)
	if err != nil {
		return err
	}
	if err := cache.Prewarm(ctx, s.cache, ShopKeyPrefix, id, shop, s.cfg.LogicalTTL); err != nil {
		return err
	}
	s.hot.Touch(id)
	return nil
}

// Warm pre-warms the limit best-selling shops. Individual failures are
// logged and skipped.
func (s *Service) Warm(ctx context.Context, limit int) (WarmStats, error) {
	ids, err := s.storage.HotShopIDs(ctx, limit)
	if err != nil {
		return WarmStats{}, err
	}
	st := s.prewarmAll(ctx, ids)
	s.logger.Info("Shop cache warmed",
		zap.Int("requested", len(ids)),
		zap.Int("warmed", st.Warmed),
		zap.Int("failed", st.Failed),
		zap.Float64("warm_ms", st.Ms),
	)
	return st, nil
}

// RewarmHot refreshes the shops read most recently, ahead of their logical
// expiry.
func (s *Service) RewarmHot(ctx context.Context) WarmStats {
	st := s.prewarmAll(ctx, s.hot.IDs())
	s.logger.Debug("Hot shops rewarmed",
		zap.Int("warmed", st.Warmed),
		zap.Int("failed", st.Failed),
	)
	return st
}

func (s *Service) prewarmAll(ctx context.Context, ids []int64) WarmStats {
	var st WarmStats
	start := time.Now()
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := s.Prewarm(ctx, id); err != nil {
			st.Failed++
			if isNotFound(err) {
				s.hot.Forget(id)
				continue
			}
			s.logger.Warn("Error while prewarming shop",
				zap.Int64("shop_id", id),
				zap.Error(err),
			)
			continue
		}
		st.Warmed++
	}
	st.Ms = convertToMs(start)
	return st
}

func (s *Service) ListTypes(ctx context.Context) ([]domain.ShopType, error) {
	types, err := cache.ReadThrough(ctx, s.cache, ShopTypeKeyPrefix, shopTypeListID, s.loadShopTypes, s.cfg.TypeTTL)
	if err != nil {
		s.logger.Error("Error while listing shop types", zap.Error(err))
		return nil, err
	}
	return *types, nil
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
