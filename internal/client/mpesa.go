package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"pharmacy-payments/internal/config"
	"time"

	"github.com/shopspring/decimal"
)

// Daraja error code for an STK query racing the customer's PIN entry.
const stkStillProcessingCode = "500.001.1001"

type MpesaClient interface {
	InitiateSTKPush(ctx context.Context, phone string, amount decimal.Decimal, accountRef string) (*STKPushResponse, error)
	QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*TransactionStatus, error)
	InitiateB2C(ctx context.Context, phone string, amount decimal.Decimal, remarks string) (*B2CResponse, error)
	QueryTransactionStatus(ctx context.Context, transactionID string) (*TransactionStatus, error)
}

type STKPushResponse struct {
	MerchantRequestID string
	CheckoutRequestID string
}

type B2CResponse struct {
	ConversationID           string
	OriginatorConversationID string
}

// TransactionStatus is the gateway's answer to a pull-based status query.
// Pending means no final outcome exists yet; the reconciler skips those.
type TransactionStatus struct {
	Pending    bool
	ResultCode int
	ResultDesc string
}

type mpesaClientImpl struct {
	httpClient         *http.Client
	baseApiURL         string
	consumerKey        string
	consumerSecret     string
	shortCode          string
	passkey            string
	initiatorName      string
	securityCredential string
	callbackBaseURL    string
}

func NewMpesaClient(mpesaCfg *config.Mpesa, callbackBaseURL string) MpesaClient {
	return &mpesaClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:         mpesaCfg.BaseApiURL,
		consumerKey:        mpesaCfg.ConsumerKey,
		consumerSecret:     mpesaCfg.ConsumerSecret,
		shortCode:          mpesaCfg.ShortCode,
		passkey:            mpesaCfg.Passkey,
		initiatorName:      mpesaCfg.InitiatorName,
		securityCredential: mpesaCfg.SecurityCredential,
		callbackBaseURL:    callbackBaseURL,
	}
}

func (c *mpesaClientImpl) getAccessToken(ctx context.Context) (string, error) {
	auth := base64.StdEncoding.EncodeToString(
		[]byte(c.consumerKey + ":" + c.consumerSecret),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseApiURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("empty access token from gateway")
	}

	return res.AccessToken, nil
}

// stkPassword is base64(shortcode + passkey + timestamp) per the daraja spec.
func (c *mpesaClientImpl) stkPassword(timestamp string) string {
	return base64.StdEncoding.EncodeToString(
		[]byte(c.shortCode + c.passkey + timestamp),
	)
}

func (c *mpesaClientImpl) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) (int, []byte, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("get mpesa access token: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal req payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseApiURL+path, bytes.NewBuffer(body))
	if err != nil {
		return 0, nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, fmt.Errorf("decode mpesa response: %w", err)
		}
	}

	return resp.StatusCode, raw, nil
}

func (c *mpesaClientImpl) InitiateSTKPush(ctx context.Context, phone string, amount decimal.Decimal, accountRef string) (*STKPushResponse, error) {
	timestamp := time.Now().Format("20060102150405")

	payload := map[string]interface{}{
		"BusinessShortCode": c.shortCode,
		"Password":          c.stkPassword(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount.Round(0).String(),
		"PartyA":            phone,
		"PartyB":            c.shortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.callbackBaseURL + "/api/payments/mpesa/callback",
		"AccountReference":  accountRef,
		"TransactionDesc":   "Pharmacy order " + accountRef,
	}

	var result struct {
		MerchantRequestID string `json:"MerchantRequestID"`
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResponseCode      string `json:"ResponseCode"`
	}
	status, raw, err := c.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", payload, &result)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("mpesa stk push error %d: %s", status, string(raw))
	}
	if result.CheckoutRequestID == "" {
		return nil, fmt.Errorf("stk push accepted but no CheckoutRequestID: %s", string(raw))
	}

	return &STKPushResponse{
		MerchantRequestID: result.MerchantRequestID,
		CheckoutRequestID: result.CheckoutRequestID,
	}, nil
}

func (c *mpesaClientImpl) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*TransactionStatus, error) {
	timestamp := time.Now().Format("20060102150405")

	payload := map[string]interface{}{
		"BusinessShortCode": c.shortCode,
		"Password":          c.stkPassword(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var result struct {
		ResultCode string `json:"ResultCode"`
		ResultDesc string `json:"ResultDesc"`
		ErrorCode  string `json:"errorCode"`
	}
	status, raw, err := c.postJSON(ctx, "/mpesa/stkpushquery/v1/query", payload, &result)
	if err != nil {
		return nil, err
	}

	if status < 200 || status >= 300 {
		// the gateway answers 500 with this code while the push is in flight
		var gwErr struct {
			ErrorCode string `json:"errorCode"`
		}
		if json.Unmarshal(raw, &gwErr) == nil && gwErr.ErrorCode == stkStillProcessingCode {
			return &TransactionStatus{Pending: true}, nil
		}
		return nil, fmt.Errorf("mpesa stk query error %d: %s", status, string(raw))
	}

	code, err := parseResultCode(result.ResultCode)
	if err != nil {
		return nil, fmt.Errorf("stk query result code %q: %w", result.ResultCode, err)
	}

	return &TransactionStatus{
		ResultCode: code,
		ResultDesc: result.ResultDesc,
	}, nil
}

func (c *mpesaClientImpl) InitiateB2C(ctx context.Context, phone string, amount decimal.Decimal, remarks string) (*B2CResponse, error) {
	payload := map[string]interface{}{
		"InitiatorName":      c.initiatorName,
		"SecurityCredential": c.securityCredential,
		"CommandID":          "BusinessPayment",
		"Amount":             amount.Round(0).String(),
		"PartyA":             c.shortCode,
		"PartyB":             phone,
		"Remarks":            remarks,
		"QueueTimeOutURL":    c.callbackBaseURL + "/api/payments/mpesa/b2c/timeout",
		"ResultURL":          c.callbackBaseURL + "/api/payments/mpesa/b2c/result",
		"Occasion":           "",
	}

	var result struct {
		ConversationID           string `json:"ConversationID"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ResponseCode             string `json:"ResponseCode"`
	}
	status, raw, err := c.postJSON(ctx, "/mpesa/b2c/v1/paymentrequest", payload, &result)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("mpesa b2c error %d: %s", status, string(raw))
	}
	if result.ConversationID == "" {
		return nil, fmt.Errorf("b2c accepted but no ConversationID: %s", string(raw))
	}

	return &B2CResponse{
		ConversationID:           result.ConversationID,
		OriginatorConversationID: result.OriginatorConversationID,
	}, nil
}

func (c *mpesaClientImpl) QueryTransactionStatus(ctx context.Context, transactionID string) (*TransactionStatus, error) {
	payload := map[string]interface{}{
		"Initiator":          c.initiatorName,
		"SecurityCredential": c.securityCredential,
		"CommandID":          "TransactionStatusQuery",
		"TransactionID":      transactionID,
		"PartyA":             c.shortCode,
		"IdentifierType":     "4",
		"ResultURL":          c.callbackBaseURL + "/api/payments/mpesa/b2c/result",
		"QueueTimeOutURL":    c.callbackBaseURL + "/api/payments/mpesa/b2c/timeout",
		"Remarks":            "reconciliation",
	}

	var result struct {
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
	}
	status, raw, err := c.postJSON(ctx, "/mpesa/transactionstatus/v1/query", payload, &result)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("mpesa status query error %d: %s", status, string(raw))
	}

	// This endpoint only acknowledges the query; the outcome arrives on the
	// result callback. Report pending so the reconciler leaves the payment
	// for the push path.
	return &TransactionStatus{
		Pending:    true,
		ResultDesc: result.ResponseDescription,
	}, nil
}

func parseResultCode(raw string) (int, error) {
	var code int
	if _, err := fmt.Sscanf(raw, "%d", &code); err != nil {
		return 0, err
	}
	return code, nil
}
