package promotion_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsnow/internal/database"
	"eventsnow/internal/database/migrations"
	"eventsnow/internal/events/db"
	"eventsnow/internal/logger"
	"eventsnow/internal/models"
	"eventsnow/internal/promotion"
)

// flakyStore fails the next SetEventPromoted call once.
type flakyStore struct {
	*db.DB
	failNext bool
}

func (f *flakyStore) SetEventPromoted(ctx context.Context, eventID int64, kind string, until *time.Time) (bool, error) {
	if f.failNext {
		f.failNext = false
		return false, errors.New("database is locked")
	}
	return f.DB.SetEventPromoted(ctx, eventID, kind, until)
}

func TestApplyPaidOrderRetriesAfterFailedPromotion(t *testing.T) {
	ctx := context.Background()
	bunDB, err := database.OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	defer bunDB.Close()
	require.NoError(t, migrations.EnsureSchema(ctx, bunDB, logger.NewNop()))

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := db.New(bunDB)
	repo.Now = func() time.Time { return now }

	eventID, err := repo.CreateEvent(ctx, models.NewEvent{
		OrganizerID: 1, Category: "🎵 Концерт", Title: "Jazz", Description: "d", EventDate: "20.06.2025",
	})
	require.NoError(t, err)
	orderID, err := repo.CreatePromoOrder(ctx, 1, eventID, models.PromoTop, 299, "RUB", "yookassa")
	require.NoError(t, err)

	store := &flakyStore{DB: repo, failNext: true}
	engine := promotion.NewEngine(store, nil, "eventsnow.promo.paid", logger.NewNop())
	engine.Now = func() time.Time { return now }

	changed, err := engine.ApplyPaidOrder(ctx, orderID, "pay_1")
	assert.EqualError(t, err, "database is locked")
	assert.False(t, changed)

	order, err := repo.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCreated, order.Status)
	assert.Nil(t, order.PaidAt)

	changed, err = engine.ApplyPaidOrder(ctx, orderID, "pay_1")
	require.NoError(t, err)
	assert.True(t, changed)

	order, err = repo.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)

	ev, err := repo.GetEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, models.PromoTop, ev.PromotedKind)
	require.NotNil(t, ev.PromotedUntil)
	assert.True(t, ev.PromotedUntil.Equal(now.Add(7*24*time.Hour)))
}
