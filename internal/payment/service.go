package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventsnow/internal/logger"
	"eventsnow/internal/metrics"
	"eventsnow/internal/models"
	"eventsnow/internal/promotion"
)

type DBLayer interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	CreatePromoOrder(ctx context.Context, organizerID, eventID int64, service string, amount int64, currency, provider string) (int64, error)
	AttachPayment(ctx context.Context, orderID int64, externalID string, payload map[string]any) error
	GetOrder(ctx context.Context, id int64) (*models.PromoOrder, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (*models.PromoOrder, error)
	GetOrdersAwaitingPayment(ctx context.Context, createdAfter time.Time, limit int) ([]models.PromoOrder, error)
	CancelOrder(ctx context.Context, id int64) (bool, error)
}

// Confirmer applies a provider-confirmed payment to the core.
type Confirmer interface {
	ApplyPaidOrder(ctx context.Context, orderID int64, externalRef string) (bool, error)
}

type CheckResult string

const (
	CheckPaid     CheckResult = "paid"
	CheckPending  CheckResult = "pending"
	CheckCanceled CheckResult = "canceled"
)

// Checkout is what the organizer needs to pay for a started promotion.
type Checkout struct {
	OrderID  int64
	Service  promotion.Service
	Amount   int64
	Currency string
	PayURL   string
	QR       []byte
}

const (
	pollWindow    = 24 * time.Hour
	pollBatchSize = 50
)

type Service struct {
	DB        DBLayer
	Provider  Provider
	Confirmer Confirmer
	Locks     Locker
	Log       *logger.Logger
	Now       func() time.Time
	Currency  string
	ReturnURL string
	Timeout   time.Duration
}

func NewService(db DBLayer, provider Provider, confirmer Confirmer, locks Locker, log *logger.Logger) *Service {
	if locks == nil {
		locks = NewMemoryLocker()
	}
	return &Service{
		DB:        db,
		Provider:  provider,
		Confirmer: confirmer,
		Locks:     locks,
		Log:       log,
		Now:       time.Now,
		Currency:  models.DefaultCurrency,
		Timeout:   20 * time.Second,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

// ---------------- START ----------------

// StartPromotion creates an order for one catalog service and a provider charge
// for it. Only the organizer of an approved event may buy a placement.
func (s *Service) StartPromotion(ctx context.Context, organizerID, eventID int64, service string) (*Checkout, error) {
	svc, ok := promotion.Lookup(service)
	if !ok {
		return nil, &models.ValidationError{Field: "service", Message: models.ReasonUnknownService}
	}

	ev, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.OrganizerID != organizerID {
		return nil, fmt.Errorf("event %d: %w", eventID, models.ErrOwnershipViolation)
	}
	if ev.Status != models.EventStatusApproved {
		return nil, fmt.Errorf("event %d is %s: %w", eventID, ev.Status, models.ErrInvalidState)
	}

	orderID, err := s.DB.CreatePromoOrder(ctx, organizerID, eventID, svc.Kind, svc.Price, s.Currency, s.Provider.Name())
	if err != nil {
		return nil, err
	}
	metrics.PromoOrdersCreated.WithLabelValues(svc.Kind).Inc()

	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	charge, err := s.Provider.CreateCharge(callCtx, ChargeRequest{
		OrderID:     orderID,
		EventID:     eventID,
		OrganizerID: organizerID,
		Service:     svc.Kind,
		Description: fmt.Sprintf("EventsNow: %s для события #%d", svc.Title, eventID),
		Amount:      svc.Price,
		Currency:    s.Currency,
		ReturnURL:   s.ReturnURL,
	})
	if err != nil {
		s.Log.LogPayment("CREATE_FAILED", fmt.Sprintf("order=%d", orderID), err.Error())
		return nil, fmt.Errorf("create %s charge for order %d: %w", s.Provider.Name(), orderID, err)
	}

	if err := s.DB.AttachPayment(ctx, orderID, charge.ID, charge.Raw); err != nil {
		return nil, err
	}
	s.Log.LogPayment("CREATED", fmt.Sprintf("order=%d", orderID),
		fmt.Sprintf("%s %d %s via %s (%s)", svc.Kind, svc.Price, s.Currency, s.Provider.Name(), charge.ID))

	out := &Checkout{
		OrderID:  orderID,
		Service:  svc,
		Amount:   svc.Price,
		Currency: s.Currency,
		PayURL:   charge.ConfirmationURL,
	}
	if charge.ConfirmationURL != "" {
		png, err := PaymentQR(charge.ConfirmationURL)
		if err != nil {
			s.Log.Warn("PAYMENT", fmt.Sprintf("QR for order %d: %v", orderID, err))
		} else {
			out.QR = png
		}
	}
	return out, nil
}

// ---------------- CONFIRMATION ----------------

// CheckPayment asks the provider about an order and applies the outcome.
// Only one check per order runs at a time; a concurrent caller gets ErrPaymentInProgress.
func (s *Service) CheckPayment(ctx context.Context, orderID int64) (CheckResult, error) {
	order, err := s.DB.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	switch order.Status {
	case models.OrderStatusPaid:
		return CheckPaid, nil
	case models.OrderStatusCanceled:
		return CheckCanceled, nil
	}
	if order.ExternalID == "" {
		return CheckPending, nil
	}
	if order.Provider != "" && order.Provider != s.Provider.Name() {
		return "", fmt.Errorf("order %d was created with %s, not %s: %w", orderID, order.Provider, s.Provider.Name(), models.ErrInvalidState)
	}

	key := OrderLockKey(orderID)
	owner := uuid.NewString()
	locked, err := s.Locks.TryLock(ctx, key, owner)
	if err != nil {
		return "", fmt.Errorf("lock order %d: %w", orderID, err)
	}
	if !locked {
		metrics.PaymentChecks.WithLabelValues("busy").Inc()
		return "", ErrPaymentInProgress
	}
	defer func() {
		if err := s.Locks.Unlock(context.Background(), key, owner); err != nil {
			s.Log.Warn("PAYMENT", fmt.Sprintf("Failed to release %s: %v", key, err))
		}
	}()

	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	charge, err := s.Provider.GetCharge(callCtx, order.ExternalID)
	if err != nil {
		metrics.PaymentChecks.WithLabelValues("error").Inc()
		return "", fmt.Errorf("get %s charge %s: %w", s.Provider.Name(), order.ExternalID, err)
	}

	switch charge.Status {
	case ChargeSucceeded:
		if _, err := s.Confirmer.ApplyPaidOrder(ctx, orderID, charge.ID); err != nil {
			metrics.PaymentChecks.WithLabelValues("error").Inc()
			return "", err
		}
		metrics.PaymentChecks.WithLabelValues(string(CheckPaid)).Inc()
		return CheckPaid, nil
	case ChargeCanceled:
		if _, err := s.DB.CancelOrder(ctx, orderID); err != nil {
			return "", err
		}
		s.Log.LogPayment("CANCELED", fmt.Sprintf("order=%d", orderID), "provider reported cancellation")
		metrics.PaymentChecks.WithLabelValues(string(CheckCanceled)).Inc()
		return CheckCanceled, nil
	default:
		metrics.PaymentChecks.WithLabelValues(string(CheckPending)).Inc()
		return CheckPending, nil
	}
}

// CheckByExternalID resolves a provider payment id to its order and checks it.
func (s *Service) CheckByExternalID(ctx context.Context, externalID string) (int64, CheckResult, error) {
	order, err := s.DB.GetOrderByExternalID(ctx, externalID)
	if err != nil {
		return 0, "", err
	}
	res, err := s.CheckPayment(ctx, order.ID)
	return order.ID, res, err
}

// PollAwaiting checks recent unpaid orders and returns how many became paid.
// Failures on one order are logged and do not stop the sweep.
func (s *Service) PollAwaiting(ctx context.Context) (int, error) {
	orders, err := s.DB.GetOrdersAwaitingPayment(ctx, s.now().Add(-pollWindow), pollBatchSize)
	if err != nil {
		return 0, err
	}

	paid := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			return paid, ctx.Err()
		}
		res, err := s.CheckPayment(ctx, o.ID)
		if errors.Is(err, ErrPaymentInProgress) {
			continue
		}
		if err != nil {
			s.Log.Warn("PAYMENT", fmt.Sprintf("Poll of order %d failed: %v", o.ID, err))
			continue
		}
		if res == CheckPaid {
			paid++
		}
	}
	if len(orders) > 0 {
		s.Log.Debug("PAYMENT", fmt.Sprintf("Polled %d awaiting orders, %d paid", len(orders), paid))
	}
	return paid, nil
}
