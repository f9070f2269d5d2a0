package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const checkoutCompletedType = "checkout.session.completed"

// DefaultSignatureTolerance bounds how stale a signed timestamp may be
// before the webhook is treated as a replay.
const DefaultSignatureTolerance = 5 * time.Minute

// CardNotification is one verified card-gateway webhook. Event is nil for
// event types this service does not act on; those are still recorded for
// dedup and audit.
type CardNotification struct {
	EventID string
	Type    string
	Event   *Event
}

// StripeVerifier checks webhook signatures of the form "t=<unix>,v1=<hex>"
// where v1 is HMAC-SHA256 over "<unix>.<body>" with the endpoint secret.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{
		secret:    secret,
		tolerance: DefaultSignatureTolerance,
		now:       time.Now,
	}
}

type checkoutSessionEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentStatus string `json:"payment_status"`
			Metadata      struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Parse verifies the signature header against the raw body and decodes the
// event. Verification happens before any decoding; a failed signature never
// produces a notification.
func (v *StripeVerifier) Parse(signatureHeader string, body []byte) (*CardNotification, error) {
	if err := v.verify(signatureHeader, body); err != nil {
		return nil, err
	}

	var event checkoutSessionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: decode card webhook: %v", ErrMalformed, err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("%w: card webhook missing event id or type", ErrMalformed)
	}

	notification := &CardNotification{
		EventID: event.ID,
		Type:    event.Type,
	}

	if event.Type != checkoutCompletedType {
		return notification, nil
	}

	session := event.Data.Object
	if session.ID == "" {
		return nil, fmt.Errorf("%w: checkout event missing session id", ErrMalformed)
	}

	notification.Event = &Event{
		Kind:        KindCheckoutCompleted,
		PrimaryRef:  session.ID,
		FallbackRef: session.Metadata.OrderID,
		Success:     session.PaymentStatus == "paid",
		ResultDesc:  session.PaymentStatus,
		Raw:         body,
	}
	return notification, nil
}

func (v *StripeVerifier) verify(header string, body []byte) error {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrSignatureVerification)
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("%w: missing signature header fields", ErrSignatureVerification)
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureVerification)
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", ErrSignatureVerification)
}
