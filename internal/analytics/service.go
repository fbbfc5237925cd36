package analytics

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Service assembles the admin statistics report.
type Service struct {
	db  *DB
	Now func() time.Time
}

func NewService(db *bun.DB) *Service {
	return &Service{db: NewDB(db), Now: time.Now}
}

// Stats is a point-in-time summary of the catalog and promotion sales.
type Stats struct {
	EventsByStatus   map[string]int   `json:"events_by_status"`
	OrdersByStatus   map[string]int   `json:"orders_by_status"`
	UsersByRole      map[string]int   `json:"users_by_role"`
	Revenue          []Revenue        `json:"revenue"`
	RevenueByService []ServiceRevenue `json:"revenue_by_service"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// TotalEvents sums events across all statuses.
func (s Stats) TotalEvents() int {
	n := 0
	for _, c := range s.EventsByStatus {
		n += c
	}
	return n
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	events, err := s.db.CountEventsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.db.CountOrdersByStatus(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.db.CountUsersByRole(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.db.GetPaidRevenue(ctx)
	if err != nil {
		return nil, err
	}
	byService, err := s.db.GetRevenueByService(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return &Stats{
		EventsByStatus:   events,
		OrdersByStatus:   orders,
		UsersByRole:      users,
		Revenue:          revenue,
		RevenueByService: byService,
		GeneratedAt:      now().UTC(),
	}, nil
}
