package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"pharmacy-payments/internal/dto"
	"pharmacy-payments/internal/gateway"
	"pharmacy-payments/internal/repository"
	"pharmacy-payments/internal/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	ledger    service.LedgerService
	events    repository.EventRepository
	stripeVer *gateway.StripeVerifier
}

func NewPaymentHandler(
	ledger service.LedgerService,
	events repository.EventRepository,
	stripeVer *gateway.StripeVerifier,
) *PaymentHandler {
	return &PaymentHandler{
		ledger:    ledger,
		events:    events,
		stripeVer: stripeVer,
	}
}

// mpesaAck is returned on every mobile-money callback regardless of
// internal outcome: the gateway only needs to see that we received it,
// and a non-zero response would make it retry forever.
func mpesaAck(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.MpesaAck{
		ResultCode: 0,
		ResultDesc: "Callback processed successfully",
	})
}

func (h *PaymentHandler) MpesaCallback(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		log.Printf("mpesa callback: read body: %v", err)
		return mpesaAck(c)
	}

	event, err := gateway.ParseCollectResult(body)
	if err != nil {
		log.Printf("mpesa callback: %v", err)
		return mpesaAck(c)
	}

	h.recordEvent(c, string(event.Kind), body)

	if err := h.ledger.Apply(ctx, event); err != nil {
		// payment-not-found and ambiguity are operator problems, not the
		// gateway's; log loudly and acknowledge
		log.Printf("mpesa callback %s: %v", event.PrimaryRef, err)
	}

	return mpesaAck(c)
}

func (h *PaymentHandler) MpesaB2CResult(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		log.Printf("b2c result: read body: %v", err)
		return mpesaAck(c)
	}

	event, err := gateway.ParseDisburseResult(body)
	if err != nil {
		log.Printf("b2c result: %v", err)
		return mpesaAck(c)
	}

	h.recordEvent(c, string(event.Kind), body)

	if err := h.ledger.Apply(ctx, event); err != nil {
		log.Printf("b2c result %s: %v", event.PrimaryRef, err)
	}

	return mpesaAck(c)
}

func (h *PaymentHandler) MpesaB2CTimeout(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		log.Printf("b2c timeout: read body: %v", err)
		return mpesaAck(c)
	}

	if event, err := gateway.ParseDisburseTimeout(body); err != nil {
		log.Printf("b2c timeout: %v", err)
	} else {
		log.Printf("b2c timeout for %s, reconciler will follow up", event.PrimaryRef)
		h.recordEvent(c, string(gateway.KindDisburseTimeout), body)
	}

	return mpesaAck(c)
}

func (h *PaymentHandler) StripeWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	notification, err := h.stripeVer.Parse(c.Request().Header.Get("Stripe-Signature"), body)
	if errors.Is(err, gateway.ErrSignatureVerification) {
		return echo.NewHTTPError(http.StatusBadRequest, "signature verification failed")
	}
	if err != nil {
		// malformed but authentic payload: acknowledge so the gateway
		// stops retrying, keep the evidence in the log
		log.Printf("stripe webhook: %v", err)
		return c.JSON(http.StatusOK, map[string]bool{"received": true})
	}

	exists, err := h.events.Exists(ctx, notification.EventID)
	if err != nil {
		return err
	}
	if exists {
		return c.JSON(http.StatusOK, map[string]bool{"received": true})
	}

	if notification.Event != nil {
		if err := h.ledger.Apply(ctx, notification.Event); err != nil {
			log.Printf("stripe webhook %s: %v", notification.EventID, err)
		}
	}

	if err := h.events.MarkProcessed(ctx, notification.EventID, notification.Type, body); err != nil {
		log.Printf("stripe webhook %s: record event: %v", notification.EventID, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

// CardSuccess is the browser landing page after a card checkout. The
// authoritative outcome arrives on the webhook; this only tells the
// patient we know about it.
func (h *PaymentHandler) CardSuccess(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "processing",
		"detail": "payment received, your order will update shortly",
	})
}

func (h *PaymentHandler) Refund(c echo.Context) error {
	ctx := c.Request().Context()

	paymentID := c.Param("id")
	if err := h.ledger.Refund(ctx, paymentID); err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "refunded",
	})
}

// recordEvent keeps the raw payload for audit. Mobile-money callbacks carry
// no provider event id, so each delivery gets its own row.
func (h *PaymentHandler) recordEvent(c echo.Context, kind string, body []byte) {
	ctx := c.Request().Context()
	if err := h.events.MarkProcessed(ctx, uuid.NewString(), kind, body); err != nil {
		log.Printf("record %s event: %v", kind, err)
	}
}
