package dto

type CheckoutItem struct {
	MedicationID string `json:"medication_id"`
	Quantity     int32  `json:"quantity"`
}

type CheckoutRequest struct {
	PatientID  string          `json:"patient_id"`
	PharmacyID string          `json:"pharmacy_id"`
	Items      []*CheckoutItem `json:"items"`
	Method     string          `json:"method"` // CARD or MPESA_COLLECT
	Phone      string          `json:"phone"`  // required for MPESA_COLLECT
}

type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	PaymentID   string `json:"payment_id"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

type PayoutRequest struct {
	OrderID string `json:"order_id"`
	Phone   string `json:"phone"`
	Amount  string `json:"amount"`
	Remarks string `json:"remarks"`
}

type PayoutResponse struct {
	PaymentID      string `json:"payment_id"`
	ConversationID string `json:"conversation_id"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

// MpesaAck is the fixed acknowledgment shape the gateway expects back,
// regardless of internal outcome.
type MpesaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
