package gateway

import (
	"encoding/json"
	"fmt"
)

// Daraja callback envelopes. Result codes are pointers so a missing field
// is distinguishable from a literal zero (zero means success).

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        *int   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type b2cResultEnvelope struct {
	Result struct {
		ResultType               int    `json:"ResultType"`
		ResultCode               *int   `json:"ResultCode"`
		ResultDesc               string `json:"ResultDesc"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ConversationID           string `json:"ConversationID"`
		TransactionID            string `json:"TransactionID"`
	} `json:"Result"`
}

// ParseCollectResult decodes an STK push result callback. The checkout
// request id is the primary reference, the merchant request id the fallback.
func ParseCollectResult(body []byte) (*Event, error) {
	var envelope stkCallbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode stk callback: %v", ErrMalformed, err)
	}

	cb := envelope.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: stk callback missing CheckoutRequestID", ErrMalformed)
	}
	if cb.ResultCode == nil {
		return nil, fmt.Errorf("%w: stk callback missing ResultCode", ErrMalformed)
	}

	return &Event{
		Kind:        KindCollectResult,
		PrimaryRef:  cb.CheckoutRequestID,
		FallbackRef: cb.MerchantRequestID,
		Success:     *cb.ResultCode == 0,
		ResultCode:  *cb.ResultCode,
		ResultDesc:  cb.ResultDesc,
		Raw:         body,
	}, nil
}

// ParseDisburseResult decodes a B2C result callback. The conversation id is
// the primary reference, the originator conversation id the fallback.
func ParseDisburseResult(body []byte) (*Event, error) {
	var envelope b2cResultEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode b2c result: %v", ErrMalformed, err)
	}

	res := envelope.Result
	if res.ConversationID == "" && res.OriginatorConversationID == "" {
		return nil, fmt.Errorf("%w: b2c result missing conversation ids", ErrMalformed)
	}
	if res.ResultCode == nil {
		return nil, fmt.Errorf("%w: b2c result missing ResultCode", ErrMalformed)
	}

	return &Event{
		Kind:        KindDisburseResult,
		PrimaryRef:  res.ConversationID,
		FallbackRef: res.OriginatorConversationID,
		Success:     *res.ResultCode == 0,
		ResultCode:  *res.ResultCode,
		ResultDesc:  res.ResultDesc,
		Raw:         body,
	}, nil
}

// ParseDisburseTimeout decodes a B2C queue-timeout callback. Timeouts carry
// no final outcome; callers acknowledge and leave the payment to the
// reconciler.
func ParseDisburseTimeout(body []byte) (*Event, error) {
	var envelope b2cResultEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode b2c timeout: %v", ErrMalformed, err)
	}

	res := envelope.Result
	return &Event{
		Kind:        KindDisburseTimeout,
		PrimaryRef:  res.ConversationID,
		FallbackRef: res.OriginatorConversationID,
		ResultDesc:  res.ResultDesc,
		Raw:         body,
	}, nil
}
