package payment

import (
	"context"
	"errors"
)

type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeCanceled  ChargeStatus = "canceled"
)

// ChargeRequest describes one promotion purchase. Amount is in whole currency units.
type ChargeRequest struct {
	OrderID     int64
	EventID     int64
	OrganizerID int64
	Service     string
	Description string
	Amount      int64
	Currency    string
	ReturnURL   string
}

// Charge is the provider's view of a payment.
type Charge struct {
	ID              string
	Status          ChargeStatus
	ConfirmationURL string
	Raw             map[string]any
}

// Provider is the external payment gateway. Only two calls are used.
type Provider interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	GetCharge(ctx context.Context, id string) (*Charge, error)
}

var (
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrPaymentInProgress   = errors.New("payment check already in progress")
)
