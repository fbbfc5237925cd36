package analytics

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"eventsnow/internal/models"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

type statusCount struct {
	Name  string `bun:"name"`
	Count int    `bun:"count"`
}

// CountEventsByStatus → number of events per moderation status
func (db *DB) CountEventsByStatus(ctx context.Context) (map[string]int, error) {
	return db.countBy(ctx, `SELECT status AS name, COUNT(*) AS count FROM events GROUP BY status`)
}

// CountOrdersByStatus → number of promo orders per payment status
func (db *DB) CountOrdersByStatus(ctx context.Context) (map[string]int, error) {
	return db.countBy(ctx, `SELECT status AS name, COUNT(*) AS count FROM promo_orders GROUP BY status`)
}

// CountUsersByRole → number of known users per role
func (db *DB) CountUsersByRole(ctx context.Context) (map[string]int, error) {
	return db.countBy(ctx, `SELECT role AS name, COUNT(*) AS count FROM users GROUP BY role`)
}

func (db *DB) countBy(ctx context.Context, query string) (map[string]int, error) {
	var rows []statusCount
	if err := db.bun.NewRaw(query).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("analytics count: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Count
	}
	return out, nil
}

// Revenue is the paid total in one currency. Total is in whole currency units.
type Revenue struct {
	Currency string `bun:"currency" json:"currency"`
	Orders   int    `bun:"orders" json:"orders"`
	Total    int64  `bun:"total" json:"total"`
}

// GetPaidRevenue → paid order totals per currency
func (db *DB) GetPaidRevenue(ctx context.Context) ([]Revenue, error) {
	var rows []Revenue
	err := db.bun.NewRaw(`
		SELECT currency, COUNT(*) AS orders, COALESCE(SUM(amount), 0) AS total
		FROM promo_orders
		WHERE status = ?
		GROUP BY currency
		ORDER BY currency`, models.OrderStatusPaid).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("analytics revenue: %w", err)
	}
	return rows, nil
}

type ServiceRevenue struct {
	Service  string `bun:"service" json:"service"`
	Currency string `bun:"currency" json:"currency"`
	Orders   int    `bun:"orders" json:"orders"`
	Total    int64  `bun:"total" json:"total"`
}

// GetRevenueByService → paid order totals per promotion service and currency
func (db *DB) GetRevenueByService(ctx context.Context) ([]ServiceRevenue, error) {
	var rows []ServiceRevenue
	err := db.bun.NewRaw(`
		SELECT service, currency, COUNT(*) AS orders, COALESCE(SUM(amount), 0) AS total
		FROM promo_orders
		WHERE status = ?
		GROUP BY service, currency
		ORDER BY total DESC, service`, models.OrderStatusPaid).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("analytics revenue by service: %w", err)
	}
	return rows, nil
}
