package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TemirB/dianping-seckill/internal/config"
	"github.com/TemirB/dianping-seckill/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	pool   *pgxpool.Pool
	tables config.Tables
}

func New(pool *pgxpool.Pool, t config.Tables) *Repo { return &Repo{pool: pool, tables: t} }

func (r *Repo) qt(tbl string) string { return qualify(r.tables.Schema, tbl) }

func qualify(schema, tbl string) string { return fmt.Sprintf(`"%s"."%s"`, schema, tbl) }

func (r *Repo) GetShopByID(ctx context.Context, id int64) (*domain.Shop, error) {
	var s domain.Shop
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, name, type_id, COALESCE(images, ''), COALESCE(area, ''), address, x, y,
		       COALESCE(avg_price, 0), sold, comments, score, COALESCE(open_hours, ''),
		       create_time, update_time
		FROM %s WHERE id=$1
	`, r.qt(r.tables.Shop)), id).Scan(
		&s.ID, &s.Name, &s.TypeID, &s.Images, &s.Area, &s.Address, &s.X, &s.Y, &s.AvgPrice,
		&s.Sold, &s.Comments, &s.Score, &s.OpenHours, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) UpdateShop(ctx context.Context, s *domain.Shop) error {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET
		  name=$2, type_id=$3, images=$4, area=$5, address=$6, x=$7, y=$8,
		  avg_price=$9, sold=$10, comments=$11, score=$12, open_hours=$13, update_time=now()
		WHERE id=$1
	`, r.qt(r.tables.Shop)),
		s.ID, s.Name, s.TypeID, s.Images, s.Area, s.Address, s.X, s.Y,
		s.AvgPrice, s.Sold, s.Comments, s.Score, s.OpenHours,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// HotShopIDs picks the shops worth pre-warming: the most sold first.
func (r *Repo) HotShopIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id FROM %s
		ORDER BY sold DESC, comments DESC
		LIMIT $1
	`, r.qt(r.tables.Shop)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, COALESCE(name, ''), COALESCE(icon, ''), COALESCE(sort, 0)
		FROM %s ORDER BY sort ASC NULLS LAST
	`, r.qt(r.tables.ShopType)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.ShopType
	for rows.Next() {
		var st domain.ShopType
		if err := rows.Scan(&st.ID, &st.Name, &st.Icon, &st.Sort); err != nil {
			return nil, err
		}
		types = append(types, st)
	}
	return types, rows.Err()
}

func (r *Repo) ActiveSeckillVouchers(ctx context.Context, now time.Time) ([]domain.SeckillVoucher, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT voucher_id, stock, begin_time, end_time FROM %s
		WHERE end_time > $1
	`, r.qt(r.tables.SeckillVoucher)), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SeckillVoucher
	for rows.Next() {
		var v domain.SeckillVoucher
		if err := rows.Scan(&v.VoucherID, &v.Stock, &v.BeginTime, &v.EndTime); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveSeckillVoucher inserts the voucher or, when it exists, resets its
// stock and sale window.
func (r *Repo) SaveSeckillVoucher(ctx context.Context, v domain.SeckillVoucher) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (voucher_id, stock, begin_time, end_time, create_time, update_time)
		VALUES ($1,$2,$3,$4,now(),now())
		ON CONFLICT (voucher_id) DO UPDATE SET
		  stock=EXCLUDED.stock, begin_time=EXCLUDED.begin_time,
		  end_time=EXCLUDED.end_time, update_time=now()
	`, r.qt(r.tables.SeckillVoucher)), v.VoucherID, v.Stock, v.BeginTime, v.EndTime)
	return err
}

// InTx runs fn in one transaction over the seckill tables. It commits when
// fn returns nil and rolls back otherwise.
func (r *Repo) InTx(ctx context.Context, fn func(tx domain.OrderTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&orderTx{tx: tx, tables: r.tables}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type orderTx struct {
	tx     pgx.Tx
	tables config.Tables
}

func (t *orderTx) CountOrders(ctx context.Context, userID, voucherID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(*) FROM %s WHERE user_id=$1 AND voucher_id=$2
	`, qualify(t.tables.Schema, t.tables.VoucherOrder)), userID, voucherID).Scan(&n)
	return n, err
}

// DecrementStockIfPositive is a single conditional UPDATE, never a
// read-modify-write.
func (t *orderTx) DecrementStockIfPositive(ctx context.Context, voucherID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET stock = stock - 1, update_time = now()
		WHERE voucher_id=$1 AND stock > 0
	`, qualify(t.tables.Schema, t.tables.SeckillVoucher)), voucherID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertOrderIfAbsent relies on the unique (user_id, voucher_id) index.
func (t *orderTx) InsertOrderIfAbsent(ctx context.Context, o domain.VoucherOrder) (bool, error) {
	tag, err := t.tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, user_id, voucher_id, create_time)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, voucher_id) DO NOTHING
	`, qualify(t.tables.Schema, t.tables.VoucherOrder)), o.ID, o.UserID, o.VoucherID, o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
