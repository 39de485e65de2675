package domain

import "time"

// OrderTask is an admitted seckill order waiting to be written to the relational store.
type OrderTask struct {
	OrderID   int64 `json:"orderId"`
	UserID    int64 `json:"userId"`
	VoucherID int64 `json:"voucherId"`
}

type VoucherOrder struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	VoucherID int64     `json:"voucherId"`
	CreatedAt time.Time `json:"createTime"`
}

type SeckillVoucher struct {
	VoucherID int64     `json:"voucherId"`
	Stock     int       `json:"stock"`
	BeginTime time.Time `json:"beginTime"`
	EndTime   time.Time `json:"endTime"`
}
