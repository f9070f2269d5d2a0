package server

import (
	"pharmacy-payments/internal/gateway"
	"pharmacy-payments/internal/handler"
	"pharmacy-payments/internal/repository"
	"pharmacy-payments/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo            *echo.Echo
	paymentHandler  *handler.PaymentHandler
	orderHandler    *handler.OrderHandler
	checkoutHandler *handler.CheckoutHandler
}

func NewServer(
	ledger service.LedgerService,
	orderService service.OrderService,
	checkoutService service.CheckoutService,
	eventRepo repository.EventRepository,
	stripeVerifier *gateway.StripeVerifier,
) *Server {
	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	paymentHandler := handler.NewPaymentHandler(ledger, eventRepo, stripeVerifier)
	orderHandler := handler.NewOrderHandler(orderService)
	checkoutHandler := handler.NewCheckoutHandler(checkoutService)

	s := &Server{
		echo:            e,
		paymentHandler:  paymentHandler,
		orderHandler:    orderHandler,
		checkoutHandler: checkoutHandler,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	api.POST("/checkout", s.checkoutHandler.Checkout)
	api.POST("/payouts", s.checkoutHandler.Payout)
	api.PATCH("/orders/:id/status", s.orderHandler.UpdateStatus)
	api.POST("/payments/:id/refund", s.paymentHandler.Refund)

	// -------- gateway webhooks / callbacks --------
	payments := api.Group("/payments")
	payments.POST("/mpesa/callback", s.paymentHandler.MpesaCallback)
	payments.POST("/mpesa/b2c/result", s.paymentHandler.MpesaB2CResult)
	payments.POST("/mpesa/b2c/timeout", s.paymentHandler.MpesaB2CTimeout)
	payments.POST("/stripe/webhook", s.paymentHandler.StripeWebhook)
	payments.GET("/card/success", s.paymentHandler.CardSuccess)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
