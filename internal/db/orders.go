package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrOrderNotFound = errors.New("order not found")

type Order struct {
	OrderID    string     `json:"order_id"`
	Source     string     `json:"source"`
	UserID     *int64     `json:"user_id,omitempty"`
	Total      int64      `json:"total"`
	Payload    []byte     `json:"payload"`
	CreatedAt  time.Time  `json:"created_at"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`

	// NotifyAfter is when a missing admin notification may be retried.
	NotifyAfter time.Time `json:"-"`
}

const orderColumns = "order_id, source, user_id, total, payload, created_at, notified_at"

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	if err := row.Scan(&o.OrderID, &o.Source, &o.UserID, &o.Total, &o.Payload, &o.CreatedAt, &o.NotifiedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// SaveOrder stores an order once. It reports false when an order with the same
// id already exists; the stored row is left untouched.
func (db *DB) SaveOrder(ctx context.Context, o Order) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`INSERT INTO orders (order_id, source, user_id, total, payload, notify_after)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, CURRENT_TIMESTAMP))
		ON CONFLICT (order_id) DO NOTHING`,
		o.OrderID, o.Source, o.UserID, o.Total, o.Payload, notifyAfter(o),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save order %s: %w", o.OrderID, err)
	}
	return result.RowsAffected() == 1, nil
}

func (db *DB) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := scanOrder(db.pool.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE order_id = $1",
		orderID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (db *DB) ListRecentOrders(ctx context.Context, limit int) ([]Order, error) {
	return db.queryOrders(ctx,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC LIMIT $1",
		limit,
	)
}

// PendingNotifications returns orders the admin has not been told about whose
// retry time has come.
func (db *DB) PendingNotifications(ctx context.Context, now time.Time, limit int) ([]Order, error) {
	return db.queryOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE notified_at IS NULL AND notify_after <= $1 ORDER BY created_at LIMIT $2",
		now, limit,
	)
}

func (db *DB) MarkNotified(ctx context.Context, orderID string, at time.Time) error {
	ct, err := db.pool.Exec(ctx, "UPDATE orders SET notified_at = $2 WHERE order_id = $1", orderID, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (db *DB) DelayNotification(ctx context.Context, orderID string, next time.Time) error {
	_, err := db.pool.Exec(ctx,
		"UPDATE orders SET notify_after = $2 WHERE order_id = $1 AND notified_at IS NULL",
		orderID, next,
	)
	return err
}

func (db *DB) queryOrders(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func notifyAfter(o Order) *time.Time {
	if o.NotifyAfter.IsZero() {
		return nil
	}
	return &o.NotifyAfter
}
