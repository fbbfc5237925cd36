package promotion

import (
	"context"
	"fmt"
	"time"

	"eventsnow/internal/kafka"
	"eventsnow/internal/logger"
	"eventsnow/internal/metrics"
	"eventsnow/internal/models"
)

type DBLayer interface {
	GetOrder(ctx context.Context, id int64) (*models.PromoOrder, error)
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	MarkOrderPaid(ctx context.Context, id int64, externalRef string) (bool, error)
	SetEventPromoted(ctx context.Context, eventID int64, kind string, until *time.Time) (bool, error)
	MarkBumped(ctx context.Context, eventID int64) (bool, error)
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Engine turns paid orders into event placements.
type Engine struct {
	DB        DBLayer
	Publisher kafka.Publisher
	Topic     string
	Log       *logger.Logger
	Now       func() time.Time
}

func NewEngine(db DBLayer, publisher kafka.Publisher, topic string, log *logger.Logger) *Engine {
	return &Engine{DB: db, Publisher: publisher, Topic: topic, Log: log, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// ApplyPaidOrder marks the order paid and promotes its event in one transaction.
// It reports whether this call performed the transition; a repeated confirmation
// returns (false, nil). A failed promotion rolls the payment mark back, so the
// next confirmation retries both writes.
func (e *Engine) ApplyPaidOrder(ctx context.Context, orderID int64, externalRef string) (bool, error) {
	order, err := e.DB.GetOrder(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("load order %d: %w", orderID, err)
	}

	now := e.now()
	kind := Normalize(order.Service)
	changed := false
	err = e.DB.InTx(ctx, func(ctx context.Context) error {
		paid, err := e.DB.MarkOrderPaid(ctx, orderID, externalRef)
		if err != nil || !paid {
			return err
		}
		changed = true
		return e.promote(ctx, order.EventID, kind, now)
	})
	if err != nil {
		return false, err
	}
	if !changed {
		e.Log.LogPayment("CONFIRM", fmt.Sprintf("order=%d", orderID), "already paid, nothing to do")
		return false, nil
	}

	metrics.PromoOrdersPaid.WithLabelValues(kind).Inc()
	e.Log.LogPayment("PAID", fmt.Sprintf("order=%d", orderID), fmt.Sprintf("event %d promoted as %s", order.EventID, kind))

	if e.Publisher != nil {
		ev := models.PromoPaidEvent{
			OrderID:     order.ID,
			EventID:     order.EventID,
			OrganizerID: order.OrganizerID,
			Service:     kind,
			Amount:      order.Amount,
			Currency:    order.Currency,
			ExternalRef: externalRef,
			PaidAt:      now,
		}
		if err := e.Publisher.Publish(ctx, e.Topic, fmt.Sprint(order.ID), ev); err != nil {
			e.Log.Warn("KAFKA", fmt.Sprintf("Failed to publish promo.paid for order %d: %v", orderID, err))
		}
	}
	return true, nil
}

// promote writes the placement unless the event already holds a stronger active
// one. A bump under a stronger placement still refreshes bumped_at.
func (e *Engine) promote(ctx context.Context, eventID int64, kind string, now time.Time) error {
	svc, ok := Lookup(kind)
	if !ok {
		return fmt.Errorf("order service %q: %w", kind, models.ErrInvalidState)
	}

	ev, err := e.DB.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event %d: %w", eventID, err)
	}

	if outranks(ev, kind, now) {
		if kind == models.PromoBump {
			if _, err := e.DB.MarkBumped(ctx, eventID); err != nil {
				return err
			}
		}
		e.Log.Info("PROMOTION", fmt.Sprintf("Event %d keeps %s; %s recorded without replacing it", eventID, ev.PromotedKind, kind))
		return nil
	}

	if _, err := e.DB.SetEventPromoted(ctx, eventID, kind, svc.Until(now)); err != nil {
		return err
	}
	return nil
}

// outranks reports whether the event's current active placement ranks above kind.
func outranks(ev *models.Event, kind string, now time.Time) bool {
	if !IsActive(ev, now) {
		return false
	}
	return kindRank(Normalize(ev.PromotedKind)) < kindRank(kind)
}

func kindRank(kind string) int {
	switch kind {
	case models.PromoTop:
		return 0
	case models.PromoHighlight:
		return 1
	case models.PromoBump:
		return 2
	default:
		return 3
	}
}
