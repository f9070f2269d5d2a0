package gateway

import "errors"

type Kind string

const (
	KindCollectResult     Kind = "collect-result"
	KindDisburseResult    Kind = "disburse-result"
	KindCheckoutCompleted Kind = "checkout-completed"
	KindDisburseTimeout   Kind = "disburse-timeout"
)

var (
	// ErrMalformed means a required field is missing from an inbound payload.
	// Handlers acknowledge these anyway so the provider stops retrying.
	ErrMalformed = errors.New("malformed gateway payload")

	// ErrSignatureVerification means a signed webhook failed verification.
	// Nothing downstream of the adapter may run after this.
	ErrSignatureVerification = errors.New("webhook signature verification failed")
)

// Event is the normalized view of one gateway notification, whether it
// arrived by webhook push or by a reconciler status query.
type Event struct {
	Kind        Kind
	PrimaryRef  string
	FallbackRef string
	Success     bool
	ResultCode  int
	ResultDesc  string
	Raw         []byte
}
