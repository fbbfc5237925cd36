package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	OrderStatusCreated  = "created"
	OrderStatusPaid     = "paid"
	OrderStatusCanceled = "canceled"
)

const DefaultCurrency = "RUB"

// Promotion kinds as stored in promo_orders.service and events.promoted_kind.
const (
	PromoTop       = "top"
	PromoHighlight = "highlight"
	PromoBump      = "bump"
	PromoNotify    = "notify"
)

// PromoOrder is a purchase of a promotion service for one event.
// Amount is in whole currency units.
type PromoOrder struct {
	bun.BaseModel `bun:"table:promo_orders,alias:po"`

	ID          int64          `bun:"id,pk,autoincrement" json:"id"`
	OrganizerID int64          `bun:"organizer_id,notnull" json:"organizer_id"`
	EventID     int64          `bun:"event_id,notnull" json:"event_id"`
	Service     string         `bun:"service,notnull" json:"service"`
	Amount      int64          `bun:"amount,notnull,default:0" json:"amount"`
	Currency    string         `bun:"currency,notnull,default:'RUB'" json:"currency"`
	Status      string         `bun:"status,notnull,default:'created'" json:"status"`
	Provider    string         `bun:"provider,notnull,default:''" json:"provider"`
	ExternalID  string         `bun:"external_id,nullzero" json:"external_id,omitempty"`
	Payload     map[string]any `bun:"payload_json,type:text" json:"payload"`
	CreatedAt   time.Time      `bun:"created_at,notnull" json:"created_at"`
	PaidAt      *time.Time     `bun:"paid_at" json:"paid_at,omitempty"`
}

// PromoPaidEvent is published once an order transitions to paid.
type PromoPaidEvent struct {
	OrderID     int64     `json:"order_id"`
	EventID     int64     `json:"event_id"`
	OrganizerID int64     `json:"organizer_id"`
	Service     string    `json:"service"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	ExternalRef string    `json:"external_ref,omitempty"`
	PaidAt      time.Time `json:"paid_at"`
}

// EventSubmittedEvent and EventModeratedEvent are published by the events service.
type EventSubmittedEvent struct {
	EventID     int64     `json:"event_id"`
	OrganizerID int64     `json:"organizer_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type EventModeratedEvent struct {
	EventID     int64     `json:"event_id"`
	Status      string    `json:"status"`
	ModeratorID int64     `json:"moderator_id"`
	ModeratedAt time.Time `json:"moderated_at"`
}
