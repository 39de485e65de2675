package domain

import (
	"context"
	"time"
)

type ShopRepository interface {
	GetShopByID(ctx context.Context, id int64) (*Shop, error)
	UpdateShop(ctx context.Context, shop *Shop) error
	HotShopIDs(ctx context.Context, limit int) ([]int64, error)
	ListShopTypes(ctx context.Context) ([]ShopType, error)
}

type SeckillRepository interface {
	ActiveSeckillVouchers(ctx context.Context, now time.Time) ([]SeckillVoucher, error)
}

// OrderTx is the unit of work that materializes one admitted order.
type OrderTx interface {
	CountOrders(ctx context.Context, userID, voucherID int64) (int, error)
	DecrementStockIfPositive(ctx context.Context, voucherID int64) (bool, error)
	InsertOrderIfAbsent(ctx context.Context, order VoucherOrder) (bool, error)
}

type OrderRepository interface {
	InTx(ctx context.Context, fn func(tx OrderTx) error) error
}
