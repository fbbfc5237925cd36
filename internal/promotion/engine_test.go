package promotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventsnow/internal/logger"
	"eventsnow/internal/models"
)

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetOrder(ctx context.Context, id int64) (*models.PromoOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PromoOrder), args.Error(1)
}

func (m *MockDBLayer) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockDBLayer) MarkOrderPaid(ctx context.Context, id int64, externalRef string) (bool, error) {
	args := m.Called(ctx, id, externalRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) SetEventPromoted(ctx context.Context, eventID int64, kind string, until *time.Time) (bool, error) {
	args := m.Called(ctx, eventID, kind, until)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) MarkBumped(ctx context.Context, eventID int64) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.Called(ctx)
	return fn(ctx)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	args := m.Called(ctx, topic, key, payload)
	return args.Error(0)
}

func newEngine(db *MockDBLayer, pub *MockPublisher) *Engine {
	db.On("InTx", mock.Anything).Maybe()
	e := NewEngine(db, nil, "eventsnow.promo.paid", logger.NewNop())
	if pub != nil {
		e.Publisher = pub
	}
	e.Now = func() time.Time { return now }
	return e
}

func TestApplyPaidOrderPromotesOnce(t *testing.T) {
	db := new(MockDBLayer)
	pub := new(MockPublisher)
	ctx := context.Background()

	order := &models.PromoOrder{ID: 5, EventID: 9, OrganizerID: 1, Service: "top7", Amount: 299, Currency: "RUB"}
	until := now.Add(7 * 24 * time.Hour)

	db.On("GetOrder", ctx, int64(5)).Return(order, nil)
	db.On("MarkOrderPaid", ctx, int64(5), "pay_1").Return(true, nil).Once()
	db.On("GetEvent", ctx, int64(9)).Return(&models.Event{ID: 9}, nil)
	db.On("SetEventPromoted", ctx, int64(9), models.PromoTop, &until).Return(true, nil).Once()
	pub.On("Publish", ctx, "eventsnow.promo.paid", "5", mock.MatchedBy(func(ev models.PromoPaidEvent) bool {
		return ev.OrderID == 5 && ev.Service == models.PromoTop && ev.PaidAt.Equal(now)
	})).Return(nil).Once()

	changed, err := newEngine(db, pub).ApplyPaidOrder(ctx, 5, "pay_1")
	require.NoError(t, err)
	assert.True(t, changed)

	db.On("MarkOrderPaid", ctx, int64(5), "pay_1").Return(false, nil).Once()
	changed, err = newEngine(db, pub).ApplyPaidOrder(ctx, 5, "pay_1")
	require.NoError(t, err)
	assert.False(t, changed)

	db.AssertExpectations(t)
	pub.AssertExpectations(t)
	db.AssertNumberOfCalls(t, "SetEventPromoted", 1)
}

func TestApplyPaidOrderKeepsStrongerPlacement(t *testing.T) {
	db := new(MockDBLayer)
	ctx := context.Background()

	current := &models.Event{ID: 9, PromotedKind: models.PromoTop, PromotedUntil: ptr(now.Add(time.Hour))}
	db.On("GetOrder", ctx, int64(6)).Return(&models.PromoOrder{ID: 6, EventID: 9, Service: "bump"}, nil)
	db.On("MarkOrderPaid", ctx, int64(6), "").Return(true, nil)
	db.On("GetEvent", ctx, int64(9)).Return(current, nil)
	db.On("MarkBumped", ctx, int64(9)).Return(true, nil)

	changed, err := newEngine(db, nil).ApplyPaidOrder(ctx, 6, "")
	require.NoError(t, err)
	assert.True(t, changed)

	db.AssertNotCalled(t, "SetEventPromoted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	db.AssertCalled(t, "MarkBumped", ctx, int64(9))
}

func TestApplyPaidOrderReplacesExpiredPlacement(t *testing.T) {
	db := new(MockDBLayer)
	ctx := context.Background()

	expired := &models.Event{ID: 9, PromotedKind: models.PromoTop, PromotedUntil: ptr(now.Add(-time.Hour))}
	until := now.Add(3 * 24 * time.Hour)
	db.On("GetOrder", ctx, int64(7)).Return(&models.PromoOrder{ID: 7, EventID: 9, Service: "highlight"}, nil)
	db.On("MarkOrderPaid", ctx, int64(7), "ref").Return(true, nil)
	db.On("GetEvent", ctx, int64(9)).Return(expired, nil)
	db.On("SetEventPromoted", ctx, int64(9), models.PromoHighlight, &until).Return(true, nil)

	changed, err := newEngine(db, nil).ApplyPaidOrder(ctx, 7, "ref")
	require.NoError(t, err)
	assert.True(t, changed)
	db.AssertExpectations(t)
}

func TestApplyPaidOrderErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing order", func(t *testing.T) {
		db := new(MockDBLayer)
		db.On("GetOrder", ctx, int64(1)).Return(nil, models.ErrNotFound)
		_, err := newEngine(db, nil).ApplyPaidOrder(ctx, 1, "")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("canceled order", func(t *testing.T) {
		db := new(MockDBLayer)
		db.On("GetOrder", ctx, int64(2)).Return(&models.PromoOrder{ID: 2, EventID: 3, Service: "top"}, nil)
		db.On("MarkOrderPaid", ctx, int64(2), "").Return(false, models.ErrInvalidState)
		_, err := newEngine(db, nil).ApplyPaidOrder(ctx, 2, "")
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("promotion write fails inside the payment transaction", func(t *testing.T) {
		db := new(MockDBLayer)
		db.On("GetOrder", ctx, int64(3)).Return(&models.PromoOrder{ID: 3, EventID: 4, Service: "notify"}, nil)
		db.On("MarkOrderPaid", ctx, int64(3), "").Return(true, nil)
		db.On("GetEvent", ctx, int64(4)).Return(&models.Event{ID: 4}, nil)
		db.On("SetEventPromoted", ctx, int64(4), models.PromoNotify, (*time.Time)(nil)).Return(false, errors.New("disk full"))
		changed, err := newEngine(db, nil).ApplyPaidOrder(ctx, 3, "")
		assert.False(t, changed)
		assert.EqualError(t, err, "disk full")
		db.AssertCalled(t, "InTx", ctx)
	})
}
