package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"pharmacy-payments/internal/client"
	"pharmacy-payments/internal/config"
	"pharmacy-payments/internal/gateway"
	"pharmacy-payments/internal/repository"
	"pharmacy-payments/internal/server"
	"pharmacy-payments/internal/service"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	db := client.InitDatabase(cfg.DatabaseURL)
	mpesaClient := client.NewMpesaClient(&cfg.Mpesa, cfg.BaseURL)
	stripeClient := client.NewStripeClient(&cfg.Stripe, cfg.BaseURL)
	stripeVerifier := gateway.NewStripeVerifier(cfg.Stripe.WebhookSecret)

	paymentRepo := repository.NewPaymentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	medicationRepo := repository.NewMedicationRepository(db)
	eventRepo := repository.NewEventRepository(db)

	orderService := service.NewOrderService(db, orderRepo, inventoryRepo)
	ledgerService := service.NewLedgerService(db, paymentRepo, orderService)
	checkoutService := service.NewCheckoutService(
		db, mpesaClient, stripeClient,
		medicationRepo, orderRepo, paymentRepo,
	)

	reconciler := service.NewReconciler(
		cfg.Reconciler,
		paymentRepo,
		ledgerService,
		mpesaClient,
		stripeClient,
	)
	if err := reconciler.Start(); err != nil {
		log.Fatal("reconciler start error: ", err)
	}

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	// Init HTTP server
	srv := server.NewServer(ledgerService, orderService, checkoutService, eventRepo, stripeVerifier)

	log.Println("Starting HTTP server on", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Println("Signal received, starting graceful shutdown...")

	_, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	reconciler.Stop()

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error")
	}
}
