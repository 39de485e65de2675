package seckill

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TemirB/dianping-seckill/internal/config"
	"github.com/TemirB/dianping-seckill/internal/domain"
	"github.com/TemirB/dianping-seckill/internal/idgen"
	"github.com/TemirB/dianping-seckill/internal/lock"
	"github.com/TemirB/dianping-seckill/internal/observability"
)

// memOrders is a relational store with one seckill table and one order
// table. InTx holds a single mutex, which is as strong as the row lock the
// conditional UPDATE takes.
type memOrders struct {
	mu       sync.Mutex
	stock    map[int64]int
	orders   map[[2]int64]domain.VoucherOrder
	vouchers []domain.SeckillVoucher
	failTx   error
}

func newMemOrders(stock map[int64]int) *memOrders {
	m := &memOrders{stock: make(map[int64]int), orders: make(map[[2]int64]domain.VoucherOrder)}
	for id, n := range stock {
		m.stock[id] = n
	}
	return m
}

func (m *memOrders) InTx(ctx context.Context, fn func(tx domain.OrderTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTx != nil {
		return m.failTx
	}
	tx := &memTx{m: m, stock: make(map[int64]int), orders: make(map[[2]int64]domain.VoucherOrder)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.stock {
		m.stock[k] = v
	}
	for k, v := range tx.orders {
		m.orders[k] = v
	}
	return nil
}

func (m *memOrders) ActiveSeckillVouchers(ctx context.Context, now time.Time) ([]domain.SeckillVoucher, error) {
	var out []domain.SeckillVoucher
	for _, v := range m.vouchers {
		if v.EndTime.After(now) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memOrders) SaveSeckillVoucher(ctx context.Context, v domain.SeckillVoucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[v.VoucherID] = v.Stock
	for i, cur := range m.vouchers {
		if cur.VoucherID == v.VoucherID {
			m.vouchers[i] = v
			return nil
		}
	}
	m.vouchers = append(m.vouchers, v)
	return nil
}

func (m *memOrders) order(userID, voucherID int64) (domain.VoucherOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[[2]int64{userID, voucherID}]
	return o, ok
}

func (m *memOrders) snapshot() (map[int64]int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stock := make(map[int64]int, len(m.stock))
	for k, v := range m.stock {
		stock[k] = v
	}
	return stock, len(m.orders)
}

type memTx struct {
	m      *memOrders
	stock  map[int64]int
	orders map[[2]int64]domain.VoucherOrder
}

func (t *memTx) CountOrders(ctx context.Context, userID, voucherID int64) (int, error) {
	k := [2]int64{userID, voucherID}
	_, committed := t.m.orders[k]
	_, pending := t.orders[k]
	if committed || pending {
		return 1, nil
	}
	return 0, nil
}

func (t *memTx) DecrementStockIfPositive(ctx context.Context, voucherID int64) (bool, error) {
	cur, ok := t.stock[voucherID]
	if !ok {
		cur = t.m.stock[voucherID]
	}
	if cur <= 0 {
		return false, nil
	}
	t.stock[voucherID] = cur - 1
	return true, nil
}

func (t *memTx) InsertOrderIfAbsent(ctx context.Context, o domain.VoucherOrder) (bool, error) {
	k := [2]int64{o.UserID, o.VoucherID}
	if _, ok := t.m.orders[k]; ok {
		return false, nil
	}
	t.orders[k] = o
	return true, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	orders []domain.VoucherOrder
}

func (r *recordingPublisher) PublishOrderCreated(ctx context.Context, o domain.VoucherOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type fixture struct {
	p       *Pipeline
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	locker  *lock.Locker
	store   *memOrders
	metrics *observability.Inmem
}

func newFixture(t *testing.T, queueCap int, stock map[int64]int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		mr:      mr,
		rdb:     rdb,
		locker:  lock.New(rdb),
		store:   newMemOrders(stock),
		metrics: observability.NewInmem(1000),
	}
	f.p = New(Deps{
		Redis:    rdb,
		IDs:      idgen.New(rdb),
		Locker:   f.locker,
		Orders:   f.store,
		Vouchers: f.store,
	}, config.Seckill{
		QueueCap:     queueCap,
		LockLease:    5 * time.Second,
		DrainTimeout: 5 * time.Second,
	}, zaptest.NewLogger(t), f.metrics)

	for id, n := range stock {
		require.NoError(t, f.p.LoadStock(context.Background(), id, n))
	}
	return f
}

func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSubmitAdmission(t *testing.T) {
	ctx := context.Background()

	t.Run("admits and returns an order id", func(t *testing.T) {
		f := newFixture(t, 16, map[int64]int{7: 2})

		id, err := f.p.Submit(ctx, 7, 100)
		require.NoError(t, err)
		require.Positive(t, id)

		stock, err := f.mr.Get(StockKey(7))
		require.NoError(t, err)
		require.Equal(t, "1", stock)
		marker := f.mr.HGet(OrderKey(7), "100")
		require.Equal(t, strconv.FormatInt(id, 10), marker, "marker records the order id")
		require.Equal(t, 1, f.p.Pending())
	})

	t.Run("same user twice is a duplicate", func(t *testing.T) {
		f := newFixture(t, 16, map[int64]int{7: 5})

		_, err := f.p.Submit(ctx, 7, 100)
		require.NoError(t, err)
		_, err = f.p.Submit(ctx, 7, 100)
		require.ErrorIs(t, err, ErrDuplicateOrder)

		stock, _ := f.mr.Get(StockKey(7))
		require.Equal(t, "4", stock)
	})

	t.Run("unknown voucher has no stock", func(t *testing.T) {
		f := newFixture(t, 16, nil)

		_, err := f.p.Submit(ctx, 42, 100)
		require.ErrorIs(t, err, ErrInsufficientStock)
		require.False(t, f.mr.Exists(StockKey(42)))
	})

	t.Run("zero stock is rejected before the duplicate check", func(t *testing.T) {
		f := newFixture(t, 16, map[int64]int{7: 1})

		_, err := f.p.Submit(ctx, 7, 100)
		require.NoError(t, err)
		_, err = f.p.Submit(ctx, 7, 100)
		require.ErrorIs(t, err, ErrInsufficientStock)
	})

	t.Run("full queue rolls the admission back", func(t *testing.T) {
		f := newFixture(t, 1, map[int64]int{7: 5})

		_, err := f.p.Submit(ctx, 7, 100)
		require.NoError(t, err)
		_, err = f.p.Submit(ctx, 7, 200)
		require.ErrorIs(t, err, ErrQueueFull)

		stock, _ := f.mr.Get(StockKey(7))
		require.Equal(t, "4", stock)
		require.Empty(t, f.mr.HGet(OrderKey(7), "200"))
		require.NotEmpty(t, f.mr.HGet(OrderKey(7), "100"))
		require.Equal(t, 1, f.metrics.Totals().Admissions["queue_full"])
	})

	t.Run("closed pipeline refuses", func(t *testing.T) {
		f := newFixture(t, 16, map[int64]int{7: 5})
		f.p.Close()

		_, err := f.p.Submit(ctx, 7, 100)
		require.ErrorIs(t, err, ErrClosed)
		stock, _ := f.mr.Get(StockKey(7))
		require.Equal(t, "5", stock)
	})

	t.Run("store down", func(t *testing.T) {
		f := newFixture(t, 16, map[int64]int{7: 5})
		f.mr.Close()

		_, err := f.p.Submit(ctx, 7, 100)
		require.ErrorIs(t, err, idgen.ErrCounterUnavailable)
	})
}

func TestSubmitNeverOversells(t *testing.T) {
	const (
		voucher = int64(9)
		stock   = 10
		users   = 60
	)
	f := newFixture(t, users, map[int64]int{voucher: stock})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []int64
		rejected int
	)
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			// every user tries twice
			for i := 0; i < 2; i++ {
				id, err := f.p.Submit(ctx, voucher, userID)
				mu.Lock()
				switch {
				case err == nil:
					admitted = append(admitted, id)
				case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrDuplicateOrder):
					rejected++
				default:
					t.Errorf("unexpected error: %v", err)
				}
				mu.Unlock()
			}
		}(int64(1000 + u))
	}
	wg.Wait()

	require.Len(t, admitted, stock)
	require.Equal(t, 2*users-stock, rejected)

	seen := make(map[int64]struct{}, len(admitted))
	for _, id := range admitted {
		seen[id] = struct{}{}
	}
	require.Len(t, seen, stock)

	left, _ := f.mr.Get(StockKey(voucher))
	require.Equal(t, "0", left)
	members, err := f.mr.HKeys(OrderKey(voucher))
	require.NoError(t, err)
	require.Len(t, members, stock)

	// Every admission reaches the relational store and nothing more does.
	f.run(t)
	require.Eventually(t, func() bool {
		_, n := f.store.snapshot()
		return n == len(admitted)
	}, 2*time.Second, 5*time.Millisecond)
	relational, _ := f.store.snapshot()
	require.Equal(t, stock-len(admitted), relational[voucher])
	require.Zero(t, f.p.Pending())
}

func TestSubmitOneOrderPerUser(t *testing.T) {
	const attempts = 30
	f := newFixture(t, 64, map[int64]int{5: 100})
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		ok   atomic.Int32
		dups atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.p.Submit(ctx, 5, 42)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrDuplicateOrder):
				dups.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), ok.Load())
	require.Equal(t, int32(attempts-1), dups.Load())
	left, _ := f.mr.Get(StockKey(5))
	require.Equal(t, "99", left)
}

func TestLastUnitEndToEnd(t *testing.T) {
	f := newFixture(t, 16, map[int64]int{1: 1})
	pub := &recordingPublisher{}
	f.p.publisher = pub
	f.run(t)
	ctx := context.Background()

	users := []int64{11, 12}
	var (
		wg      sync.WaitGroup
		ids     = make([]int64, len(users))
		results = make([]error, len(users))
	)
	for i, user := range users {
		wg.Add(1)
		go func(i int, user int64) {
			defer wg.Done()
			ids[i], results[i] = f.p.Submit(ctx, 1, user)
		}(i, user)
	}
	wg.Wait()

	winner := -1
	var noStock int
	for i, err := range results {
		switch {
		case err == nil:
			require.Equal(t, -1, winner, "only one admission")
			winner = i
		case errors.Is(err, ErrInsufficientStock):
			noStock++
		}
	}
	require.NotEqual(t, -1, winner)
	require.Equal(t, 1, noStock)

	require.Eventually(t, func() bool {
		_, n := f.store.snapshot()
		return n == 1
	}, 2*time.Second, 5*time.Millisecond)

	stock, _ := f.store.snapshot()
	require.Equal(t, 0, stock[1])

	row, ok := f.store.order(users[winner], 1)
	require.True(t, ok)
	require.Equal(t, ids[winner], row.ID)
	require.Equal(t, users[winner], row.UserID)
	require.Equal(t, int64(1), row.VoucherID)
	_, ok = f.store.order(users[1-winner], 1)
	require.False(t, ok)

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, f.metrics.Totals().Materialized)
}

func TestMaterialize(t *testing.T) {
	ctx := context.Background()

	t.Run("busy user lock drops the task", func(t *testing.T) {
		f := newFixture(t, 16, map[int64]int{3: 5})
		h, ok, err := f.locker.TryAcquire(ctx, userLockKey(77), time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		t.Cleanup(func() { _ = f.locker.Release(ctx, h) })

		_, err = f.p.Submit(ctx, 3, 77)
		require.NoError(t, err)
		f.run(t)

		require.Eventually(t, func() bool {
			return f.metrics.Totals().MaterializeFailed == 1
		}, 2*time.Second, 5*time.Millisecond)
		stock, n := f.store.snapshot()
		require.Zero(t, n)
		require.Equal(t, 5, stock[3])
	})

	t.Run("relational stock exhausted is not retried", func(t *testing.T) {
		f := newFixture(t, 16, map[int64]int{3: 2})
		f.store.mu.Lock()
		f.store.stock[3] = 0
		f.store.mu.Unlock()

		_, err := f.p.Submit(ctx, 3, 1)
		require.NoError(t, err)
		f.run(t)

		require.Eventually(t, func() bool {
			return f.metrics.Totals().MaterializeFailed == 1
		}, 2*time.Second, 5*time.Millisecond)
		_, n := f.store.snapshot()
		require.Zero(t, n)
	})

	t.Run("transaction error leaves store untouched and frees the lock", func(t *testing.T) {
		f := newFixture(t, 16, map[int64]int{3: 2})
		f.store.failTx = errors.New("connection reset")

		_, err := f.p.Submit(ctx, 3, 5)
		require.NoError(t, err)
		f.run(t)

		require.Eventually(t, func() bool {
			return f.metrics.Totals().MaterializeFailed == 1
		}, 2*time.Second, 5*time.Millisecond)
		require.False(t, f.mr.Exists(userLockKey(5)))
	})

	t.Run("order already in the table", func(t *testing.T) {
		f := newFixture(t, 16, map[int64]int{3: 2})
		f.store.orders[[2]int64{8, 3}] = domain.VoucherOrder{ID: 1, UserID: 8, VoucherID: 3}

		_, err := f.p.Submit(ctx, 3, 8)
		require.NoError(t, err)
		f.run(t)

		require.Eventually(t, func() bool {
			return f.metrics.Totals().MaterializeFailed == 1
		}, 2*time.Second, 5*time.Millisecond)
		stock, n := f.store.snapshot()
		require.Equal(t, 1, n)
		require.Equal(t, 2, stock[3])
	})
}

func TestRunDrainsOnShutdown(t *testing.T) {
	f := newFixture(t, 16, map[int64]int{4: 10})
	ctx := context.Background()

	for u := int64(1); u <= 3; u++ {
		_, err := f.p.Submit(ctx, 4, u)
		require.NoError(t, err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, f.p.Run(cctx))

	require.Zero(t, f.p.Pending())
	stock, n := f.store.snapshot()
	require.Equal(t, 3, n)
	require.Equal(t, 7, stock[4])

	_, err := f.p.Submit(ctx, 4, 99)
	require.ErrorIs(t, err, ErrClosed)
}

func TestWarmStock(t *testing.T) {
	f := newFixture(t, 16, map[int64]int{1: 3})
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	f.p.now = func() time.Time { return now }
	f.store.vouchers = []domain.SeckillVoucher{
		{VoucherID: 1, Stock: 100, EndTime: now.Add(time.Hour)},
		{VoucherID: 2, Stock: 50, EndTime: now.Add(time.Hour)},
		{VoucherID: 3, Stock: 20, EndTime: now.Add(-time.Hour)},
	}

	seeded, err := f.p.WarmStock(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, seeded)

	for id, want := range map[int64]string{1: "3", 2: "50"} {
		got, err := f.mr.Get(StockKey(id))
		require.NoError(t, err)
		require.Equal(t, want, got, "voucher "+strconv.FormatInt(id, 10))
	}
	require.False(t, f.mr.Exists(StockKey(3)))
}

func TestPublishVoucher(t *testing.T) {
	ctx := context.Background()
	begin := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	v := domain.SeckillVoucher{VoucherID: 12, Stock: 3, BeginTime: begin, EndTime: begin.Add(time.Hour)}

	t.Run("opens a voucher created while running", func(t *testing.T) {
		f := newFixture(t, 16, nil)

		_, err := f.p.Submit(ctx, 12, 1)
		require.ErrorIs(t, err, ErrInsufficientStock)

		require.NoError(t, f.p.PublishVoucher(ctx, v))
		got, err := f.mr.Get(StockKey(12))
		require.NoError(t, err)
		require.Equal(t, "3", got)
		stock, _ := f.store.snapshot()
		require.Equal(t, 3, stock[12])

		_, err = f.p.Submit(ctx, 12, 1)
		require.NoError(t, err)
	})

	t.Run("republish overwrites the counter and keeps buyers", func(t *testing.T) {
		f := newFixture(t, 16, map[int64]int{12: 1})
		_, err := f.p.Submit(ctx, 12, 1)
		require.NoError(t, err)

		v := v
		v.Stock = 10
		require.NoError(t, f.p.PublishVoucher(ctx, v))

		got, _ := f.mr.Get(StockKey(12))
		require.Equal(t, "10", got)
		_, err = f.p.Submit(ctx, 12, 1)
		require.ErrorIs(t, err, ErrDuplicateOrder)
	})

	t.Run("invalid voucher", func(t *testing.T) {
		f := newFixture(t, 16, nil)
		for _, bad := range []domain.SeckillVoucher{
			{VoucherID: 0, Stock: 1, BeginTime: begin, EndTime: begin.Add(time.Hour)},
			{VoucherID: 1, Stock: -1, BeginTime: begin, EndTime: begin.Add(time.Hour)},
			{VoucherID: 1, Stock: 1, BeginTime: begin, EndTime: begin},
		} {
			require.ErrorIs(t, f.p.PublishVoucher(ctx, bad), ErrInvalidVoucher)
		}
		require.False(t, f.mr.Exists(StockKey(1)))
	})
}

func TestNewDefaults(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := newMemOrders(map[int64]int{1: 1})

	p := New(Deps{
		Redis:    rdb,
		IDs:      idgen.New(rdb),
		Locker:   lock.New(rdb),
		Orders:   store,
		Vouchers: store,
	}, config.Seckill{}, nil, nil)
	require.Equal(t, 10*time.Second, p.cfg.DrainTimeout)
	require.Positive(t, p.cfg.LockLease)

	require.NoError(t, p.LoadStock(context.Background(), 1, 1))
	_, err := p.Submit(context.Background(), 1, 7)
	require.NoError(t, err)
	_, err = p.Submit(context.Background(), 1, 8)
	require.ErrorIs(t, err, ErrInsufficientStock)
}
