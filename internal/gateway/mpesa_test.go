package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCollectResultSuccess(t *testing.T) {
	body := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 1500.00},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "PhoneNumber", "Value": 254708374149}
					]
				}
			}
		}
	}`)

	event, err := ParseCollectResult(body)
	require.NoError(t, err)

	assert.Equal(t, KindCollectResult, event.Kind)
	assert.Equal(t, "ws_CO_191220191020363925", event.PrimaryRef)
	assert.Equal(t, "29115-34620561-1", event.FallbackRef)
	assert.True(t, event.Success)
	assert.Equal(t, 0, event.ResultCode)
	assert.Equal(t, body, event.Raw)
}

func TestParseCollectResultFailureCode(t *testing.T) {
	body := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_cancelled",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`)

	event, err := ParseCollectResult(body)
	require.NoError(t, err)

	assert.False(t, event.Success)
	assert.Equal(t, 1032, event.ResultCode)
	assert.Equal(t, "Request cancelled by user", event.ResultDesc)
}

func TestParseCollectResultMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing checkout request id", `{"Body":{"stkCallback":{"ResultCode":0}}}`},
		{"missing result code", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_x"}}}`},
		{"empty body", `{}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCollectResult([]byte(tc.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestParseDisburseResult(t *testing.T) {
	body := []byte(`{
		"Result": {
			"ResultType": 0,
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"OriginatorConversationID": "10571-7910404-1",
			"ConversationID": "AG_20191219_00004e48cf7e3533f581",
			"TransactionID": "NLJ41HAY6Q"
		}
	}`)

	event, err := ParseDisburseResult(body)
	require.NoError(t, err)

	assert.Equal(t, KindDisburseResult, event.Kind)
	assert.Equal(t, "AG_20191219_00004e48cf7e3533f581", event.PrimaryRef)
	assert.Equal(t, "10571-7910404-1", event.FallbackRef)
	assert.True(t, event.Success)
}

func TestParseDisburseResultMissingIDs(t *testing.T) {
	_, err := ParseDisburseResult([]byte(`{"Result":{"ResultCode":0}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestParseDisburseTimeout(t *testing.T) {
	body := []byte(`{
		"Result": {
			"ConversationID": "AG_timeout_001",
			"OriginatorConversationID": "10571-0001-1",
			"ResultDesc": "The transaction is still under processing"
		}
	}`)

	event, err := ParseDisburseTimeout(body)
	require.NoError(t, err)

	assert.Equal(t, KindDisburseTimeout, event.Kind)
	assert.Equal(t, "AG_timeout_001", event.PrimaryRef)
	assert.False(t, event.Success)
}
