package service

import (
	"context"
	"fmt"
	"log"
	"pharmacy-payments/internal/client"
	"pharmacy-payments/internal/config"
	"pharmacy-payments/internal/gateway"
	"pharmacy-payments/internal/model"
	"pharmacy-payments/internal/repository"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Reconciler pulls the gateway for payments stuck in PENDING past a
// threshold and pushes the answers through the same ledger path the
// webhooks use.
type Reconciler struct {
	cfg          config.Reconciler
	paymentRepo  repository.PaymentRepository
	ledger       LedgerService
	mpesaClient  client.MpesaClient
	stripeClient client.StripeClient

	cron *cron.Cron
	now  func() time.Time
}

func NewReconciler(
	cfg config.Reconciler,
	paymentRepo repository.PaymentRepository,
	ledger LedgerService,
	mpesaClient client.MpesaClient,
	stripeClient client.StripeClient,
) *Reconciler {
	return &Reconciler{
		cfg:          cfg,
		paymentRepo:  paymentRepo,
		ledger:       ledger,
		mpesaClient:  mpesaClient,
		stripeClient: stripeClient,
		now:          time.Now,
	}
}

func (r *Reconciler) Start() error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.cfg.Interval), func() {
		// a tick never outlives the next one
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Interval)
		defer cancel()
		r.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}

	r.cron.Start()
	return nil
}

func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunOnce reconciles one batch of stale pending payments. Candidates are
// checked concurrently; one candidate's failure never aborts the batch.
func (r *Reconciler) RunOnce(ctx context.Context) {
	now := r.now()
	candidates, err := r.paymentRepo.FindStalePending(ctx,
		now.Add(-r.cfg.PendingThreshold),
		now.Add(-r.cfg.Lookback),
	)
	if err != nil {
		log.Printf("reconciler: select candidates: %v", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	log.Printf("reconciler: checking %d stale pending payments", len(candidates))

	concurrency := r.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for _, payment := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(payment *model.Payment) {
			defer wg.Done()
			defer func() { <-sem }()

			queryCtx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
			defer cancel()

			if err := r.reconcilePayment(queryCtx, payment); err != nil {
				// retried on the next tick
				log.Printf("reconciler: payment %s: %v", payment.ID, err)
			}
		}(payment)
	}
	wg.Wait()
}

func (r *Reconciler) reconcilePayment(ctx context.Context, payment *model.Payment) error {
	if payment.ExternalRef == nil {
		return fmt.Errorf("no external reference to query by")
	}
	ref := *payment.ExternalRef

	var event *gateway.Event

	switch payment.Method {
	case model.MethodMobileCollect:
		status, err := r.mpesaClient.QuerySTKStatus(ctx, ref)
		if err != nil {
			return fmt.Errorf("query stk status: %w", err)
		}
		if status.Pending {
			return nil
		}
		event = &gateway.Event{
			Kind:       gateway.KindCollectResult,
			PrimaryRef: ref,
			Success:    status.ResultCode == 0,
			ResultCode: status.ResultCode,
			ResultDesc: status.ResultDesc,
		}

	case model.MethodMobileDisburse:
		status, err := r.mpesaClient.QueryTransactionStatus(ctx, ref)
		if err != nil {
			return fmt.Errorf("query transaction status: %w", err)
		}
		if status.Pending {
			return nil
		}
		event = &gateway.Event{
			Kind:       gateway.KindDisburseResult,
			PrimaryRef: ref,
			Success:    status.ResultCode == 0,
			ResultCode: status.ResultCode,
			ResultDesc: status.ResultDesc,
		}

	case model.MethodCard:
		session, err := r.stripeClient.GetCheckoutSession(ctx, ref)
		if err != nil {
			return fmt.Errorf("fetch checkout session: %w", err)
		}
		switch {
		case session.Status == "complete" && session.PaymentStatus == "paid":
			event = &gateway.Event{
				Kind:       gateway.KindCheckoutCompleted,
				PrimaryRef: ref,
				Success:    true,
				ResultDesc: session.PaymentStatus,
			}
		case session.Status == "expired":
			event = &gateway.Event{
				Kind:       gateway.KindCheckoutCompleted,
				PrimaryRef: ref,
				Success:    false,
				ResultCode: 1,
				ResultDesc: "checkout session expired",
			}
		default:
			// still open, leave it for the next tick
			return nil
		}

	default:
		return fmt.Errorf("unknown payment method %q", payment.Method)
	}

	return r.ledger.Apply(ctx, event)
}
