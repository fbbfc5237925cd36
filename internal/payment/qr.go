package payment

import "github.com/skip2/go-qrcode"

const qrSize = 256

// PaymentQR renders the confirmation URL as a PNG the organizer can scan.
func PaymentQR(url string) ([]byte, error) {
	return qrcode.Encode(url, qrcode.Medium, qrSize)
}
