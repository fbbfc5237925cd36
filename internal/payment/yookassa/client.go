package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eventsnow/internal/payment"
)

const DefaultBaseURL = "https://api.yookassa.ru/v3"

// Client talks to the YooKassa REST API with shop credentials.
type Client struct {
	ShopID    string
	SecretKey string
	BaseURL   string
	HTTP      *http.Client
}

func New(shopID, secretKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		ShopID:    shopID,
		SecretKey: secretKey,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		HTTP:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "yookassa" }

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createRequest struct {
	Amount       amount            `json:"amount"`
	Confirmation confirmation      `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
}

type paymentObject struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	Paid         bool          `json:"paid"`
	Confirmation *confirmation `json:"confirmation,omitempty"`
}

// CreateCharge creates a redirect payment with automatic capture.
func (c *Client) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("yookassa: amount must be positive, got %d", req.Amount)
	}
	currency := req.Currency
	if currency == "" {
		currency = "RUB"
	}

	body := createRequest{
		Amount: amount{
			Value:    decimal.NewFromInt(req.Amount).StringFixed(2),
			Currency: currency,
		},
		Confirmation: confirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Capture:      true,
		Description:  req.Description,
		Metadata: map[string]string{
			"order_id":   fmt.Sprint(req.OrderID),
			"event_id":   fmt.Sprint(req.EventID),
			"service":    req.Service,
			"tg_user_id": fmt.Sprint(req.OrganizerID),
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("yookassa: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", uuid.NewString())

	return c.do(httpReq)
}

// GetCharge fetches the current state of a payment.
func (c *Client) GetCharge(ctx context.Context, id string) (*payment.Charge, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/payments/"+id, nil)
	if err != nil {
		return nil, err
	}
	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) (*payment.Charge, error) {
	req.SetBasicAuth(c.ShopID, c.SecretKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yookassa: %w: %v", payment.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yookassa: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("yookassa: %s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var obj paymentObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("yookassa: decode response: %w", err)
	}
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("yookassa: decode response: %w", err)
	}

	charge := &payment.Charge{ID: obj.ID, Status: mapStatus(obj.Status), Raw: raw}
	if obj.Confirmation != nil {
		charge.ConfirmationURL = obj.Confirmation.ConfirmationURL
	}
	return charge, nil
}

// mapStatus folds YooKassa statuses into the three the core cares about.
// waiting_for_capture does not occur with capture=true but is treated as pending.
func mapStatus(status string) payment.ChargeStatus {
	switch status {
	case "succeeded":
		return payment.ChargeSucceeded
	case "canceled":
		return payment.ChargeCanceled
	default:
		return payment.ChargePending
	}
}

// Notification is the body YooKassa posts to the webhook URL.
type Notification struct {
	Type   string        `json:"type"`
	Event  string        `json:"event"`
	Object paymentObject `json:"object"`
}

// ParseNotification extracts the payment id from a webhook body. The body is
// not trusted for status; callers re-fetch the payment.
func ParseNotification(body []byte) (string, string, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return "", "", fmt.Errorf("yookassa: decode notification: %w", err)
	}
	if n.Object.ID == "" {
		return "", "", fmt.Errorf("yookassa: notification without payment id")
	}
	return n.Object.ID, n.Event, nil
}
