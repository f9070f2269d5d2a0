package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"pharmacy-payments/internal/config"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type StripeClient interface {
	CreateCheckoutSession(ctx context.Context, amount decimal.Decimal, currency, orderID string) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

type CheckoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`         // open, complete, expired
	PaymentStatus string `json:"payment_status"` // paid, unpaid
}

type stripeClientImpl struct {
	httpClient     *http.Client
	baseApiURL     string
	secretKey      string
	serviceBaseURL string
}

func NewStripeClient(stripeCfg *config.Stripe, serviceBaseURL string) StripeClient {
	return &stripeClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:     stripeCfg.BaseApiURL,
		secretKey:      stripeCfg.SecretKey,
		serviceBaseURL: serviceBaseURL,
	}
}

func (c *stripeClientImpl) CreateCheckoutSession(ctx context.Context, amount decimal.Decimal, currency, orderID string) (*CheckoutSession, error) {
	cents := amount.Mul(decimal.NewFromInt(100)).IntPart()

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", c.serviceBaseURL+"/api/payments/card/success")
	form.Set("cancel_url", c.serviceBaseURL)
	form.Set("metadata[order_id]", orderID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", cents))
	form.Set("line_items[0][price_data][product_data][name]", "Pharmacy order "+orderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseApiURL+"/v1/checkout/sessions",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

func (c *stripeClientImpl) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseApiURL+"/v1/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(req)
}

func (c *stripeClientImpl) do(req *http.Request) (*CheckoutSession, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("card gateway error %d: %s", resp.StatusCode, string(b))
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}

	return &session, nil
}
