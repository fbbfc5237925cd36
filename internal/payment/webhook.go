package payment

const (
	WebhookConfiguration = "configuration"
	WebhookValidation    = "validation"
	WebhookProcessing    = "processing"
)

// WebhookError represents an error that occurred during webhook processing.
type WebhookError struct {
	Category      string
	StatusCode    int
	PublicError   string // safe to expose to the caller
	InternalError string // logs only
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}
