// Package seckill admits flash-sale orders against Redis and writes them to
// the relational store asynchronously.
//
// Admission is one atomic script over the voucher's stock counter and its
// hash of users who already hold an order, each mapped to that order's id. Admitted orders go through a
// bounded in-process queue to a single consumer that materializes them in a
// transaction, so the caller gets an order id before the order is durable.
package seckill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TemirB/dianping-seckill/internal/config"
	"github.com/TemirB/dianping-seckill/internal/domain"
	"github.com/TemirB/dianping-seckill/internal/lock"
	"github.com/TemirB/dianping-seckill/internal/observability"
)

const (
	stockKeyPrefix = "seckill:stock:"
	orderKeyPrefix = "seckill:order:"
	userLockPrefix = "lock:order:"

	orderIDPrefix = "order"
)

// Admission script results.
const (
	admitted       = 0
	outOfStock     = 1
	alreadyOrdered = 2
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateOrder    = errors.New("user already ordered this voucher")
	ErrQueueFull         = errors.New("order queue is full")
	ErrClosed            = errors.New("order pipeline is closed")
	ErrInvalidVoucher    = errors.New("invalid seckill voucher")

	errAlreadyMaterialized = errors.New("order already materialized for user")
	errSoldOut             = errors.New("relational stock exhausted")
)

// admitScript: KEYS stock, orders; ARGV userId, orderId.
var admitScript = redis.NewScript(`
local stock = tonumber(redis.call('get', KEYS[1]))
if stock == nil or stock <= 0 then
	return 1
end
if redis.call('hexists', KEYS[2], ARGV[1]) == 1 then
	return 2
end
redis.call('incrby', KEYS[1], -1)
redis.call('hset', KEYS[2], ARGV[1], ARGV[2])
return 0
`)

// rollbackScript undoes an admission that could not be queued. Only the
// marker written for this order id is removed.
var rollbackScript = redis.NewScript(`
if redis.call('hget', KEYS[2], ARGV[1]) == ARGV[2] then
	redis.call('hdel', KEYS[2], ARGV[1])
	redis.call('incrby', KEYS[1], 1)
end
return 0
`)

type IDGenerator interface {
	NextID(ctx context.Context, prefix string) (int64, error)
}

// Publisher announces materialized orders. It is optional.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, order domain.VoucherOrder) error
}

// VoucherStore is the relational side of seckill vouchers.
type VoucherStore interface {
	domain.SeckillRepository
	SaveSeckillVoucher(ctx context.Context, v domain.SeckillVoucher) error
}

type Deps struct {
	Redis     redis.Cmdable
	IDs       IDGenerator
	Locker    *lock.Locker
	Orders    domain.OrderRepository
	Vouchers  VoucherStore
	Publisher Publisher
}

type Pipeline struct {
	rdb       redis.Cmdable
	ids       IDGenerator
	locker    *lock.Locker
	orders    domain.OrderRepository
	vouchers  VoucherStore
	publisher Publisher

	cfg     config.Seckill
	logger  *zap.Logger
	metrics observability.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan domain.OrderTask

	now func() time.Time
}

func New(d Deps, cfg config.Seckill, logger *zap.Logger, metrics observability.Metrics) *Pipeline {
	if cfg.QueueCap < 1 {
		cfg.QueueCap = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	return &Pipeline{
		rdb:       d.Redis,
		ids:       d.IDs,
		locker:    d.Locker,
		orders:    d.Orders,
		vouchers:  d.Vouchers,
		publisher: d.Publisher,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		queue:     make(chan domain.OrderTask, cfg.QueueCap),
		now:       time.Now,
	}
}

func StockKey(voucherID int64) string { return stockKeyPrefix + strconv.FormatInt(voucherID, 10) }

func OrderKey(voucherID int64) string { return orderKeyPrefix + strconv.FormatInt(voucherID, 10) }

func userLockKey(userID int64) string { return userLockPrefix + strconv.FormatInt(userID, 10) }

// Submit admits one order for userID. On success the order id is returned
// and the order is queued for materialization.
func (p *Pipeline) Submit(ctx context.Context, voucherID, userID int64) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0, ErrClosed
	}

	orderID, err := p.ids.NextID(ctx, orderIDPrefix)
	if err != nil {
		return 0, err
	}

	keys := []string{StockKey(voucherID), OrderKey(voucherID)}
	res, err := admitScript.Run(ctx, p.rdb, keys, userID, orderID).Int()
	if err != nil {
		return 0, fmt.Errorf("admit voucher %d: %w", voucherID, err)
	}
	switch res {
	case admitted:
	case outOfStock:
		p.metrics.ObserveAdmission("out_of_stock")
		return 0, ErrInsufficientStock
	case alreadyOrdered:
		p.metrics.ObserveAdmission("duplicate")
		return 0, ErrDuplicateOrder
	default:
		return 0, fmt.Errorf("admit voucher %d: unexpected result %d", voucherID, res)
	}

	task := domain.OrderTask{OrderID: orderID, UserID: userID, VoucherID: voucherID}
	select {
	case p.queue <- task:
		p.metrics.ObserveAdmission("admitted")
		return orderID, nil
	default:
	}

	p.metrics.ObserveAdmission("queue_full")
	if err := rollbackScript.Run(context.WithoutCancel(ctx), p.rdb, keys, userID, orderID).Err(); err != nil {
		p.logger.Error("Error while rolling back admission",
			zap.Int64("voucher_id", voucherID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
	return 0, ErrQueueFull
}

// Pending is the number of admitted orders not yet materialized.
func (p *Pipeline) Pending() int { return len(p.queue) }

// Close stops admissions. Orders already queued stay queued for Run.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Run is the only consumer of the queue and processes tasks in admission
// order. When ctx is done it closes the pipeline and drains the queue for
// at most DrainTimeout.
func (p *Pipeline) Run(ctx context.Context) error {
	base := context.WithoutCancel(ctx)
	for {
		select {
		case task := <-p.queue:
			p.materialize(base, task)
		case <-ctx.Done():
			p.Close()
			p.drain(base)
			return nil
		}
	}
}

func (p *Pipeline) drain(ctx context.Context) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DrainTimeout)
	defer cancel()

	for {
		select {
		case <-dctx.Done():
			if n := len(p.queue); n > 0 {
				p.logger.Error("Drain timed out, admitted orders left unwritten", zap.Int("pending", n))
			}
			return
		default:
		}

		select {
		case task := <-p.queue:
			p.materialize(dctx, task)
		default:
			p.logger.Info("Order queue drained")
			return
		}
	}
}

func (p *Pipeline) materialize(ctx context.Context, task domain.OrderTask) {
	start := time.Now()
	order := domain.VoucherOrder{
		ID:        task.OrderID,
		UserID:    task.UserID,
		VoucherID: task.VoucherID,
		CreatedAt: p.now(),
	}

	err := lock.TryWithLock(ctx, p.locker, userLockKey(task.UserID), p.cfg.LockLease, func(ctx context.Context) error {
		return p.orders.InTx(ctx, func(tx domain.OrderTx) error {
			n, err := tx.CountOrders(ctx, task.UserID, task.VoucherID)
			if err != nil {
				return err
			}
			if n > 0 {
				return errAlreadyMaterialized
			}
			ok, err := tx.DecrementStockIfPositive(ctx, task.VoucherID)
			if err != nil {
				return err
			}
			if !ok {
				return errSoldOut
			}
			inserted, err := tx.InsertOrderIfAbsent(ctx, order)
			if err != nil {
				return err
			}
			if !inserted {
				return errAlreadyMaterialized
			}
			return nil
		})
	})

	dur := float64(time.Since(start).Microseconds()) / 1000.0
	p.metrics.ObserveMaterialize(dur, err == nil)

	fields := []zap.Field{
		zap.Int64("order_id", task.OrderID),
		zap.Int64("user_id", task.UserID),
		zap.Int64("voucher_id", task.VoucherID),
	}
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		p.logger.Warn("Order lock busy, dropping task", fields...)
		return
	case err != nil:
		p.logger.Error("Admitted order could not be materialized", append(fields, zap.Error(err))...)
		return
	}

	p.logger.Info("Order materialized", append(fields, zap.Float64("db_write_ms", dur))...)

	if p.publisher != nil {
		if err := p.publisher.PublishOrderCreated(ctx, order); err != nil {
			p.logger.Warn("Error while publishing order event", append(fields, zap.Error(err))...)
		}
	}
}

// LoadStock publishes a voucher's sellable stock to Redis, replacing any
// counter already there.
func (p *Pipeline) LoadStock(ctx context.Context, voucherID int64, stock int) error {
	return p.rdb.Set(ctx, StockKey(voucherID), stock, 0).Err()
}

// PublishVoucher saves a seckill voucher and opens it for admission. For a
// republished voucher the counter is overwritten; users who already hold an
// order stay marked.
func (p *Pipeline) PublishVoucher(ctx context.Context, v domain.SeckillVoucher) error {
	if v.VoucherID <= 0 || v.Stock < 0 || !v.EndTime.After(v.BeginTime) {
		return ErrInvalidVoucher
	}
	if err := p.vouchers.SaveSeckillVoucher(ctx, v); err != nil {
		return fmt.Errorf("save voucher %d: %w", v.VoucherID, err)
	}
	if err := p.LoadStock(ctx, v.VoucherID, v.Stock); err != nil {
		return fmt.Errorf("load stock for voucher %d: %w", v.VoucherID, err)
	}
	p.logger.Info("Seckill voucher published",
		zap.Int64("voucher_id", v.VoucherID),
		zap.Int("stock", v.Stock),
		zap.Time("end_time", v.EndTime),
	)
	return nil
}

// WarmStock seeds counters for running and upcoming seckill vouchers. A
// counter that already exists is left alone since it is ahead of the
// relational stock while orders are in flight.
func (p *Pipeline) WarmStock(ctx context.Context) (int, error) {
	vouchers, err := p.vouchers.ActiveSeckillVouchers(ctx, p.now())
	if err != nil {
		return 0, err
	}
	seeded := 0
	for _, v := range vouchers {
		ok, err := p.rdb.SetNX(ctx, StockKey(v.VoucherID), v.Stock, 0).Result()
		if err != nil {
			return seeded, fmt.Errorf("seed stock for voucher %d: %w", v.VoucherID, err)
		}
		if ok {
			seeded++
		}
	}
	p.logger.Info("Seckill stock warmed",
		zap.Int("vouchers", len(vouchers)),
		zap.Int("seeded", seeded),
	)
	return seeded, nil
}
