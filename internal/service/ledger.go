package service

import (
	"context"
	"fmt"
	"log"
	"pharmacy-payments/internal/gateway"
	"pharmacy-payments/internal/model"
	"pharmacy-payments/internal/repository"

	"gorm.io/gorm"
)

// LedgerService resolves gateway events to payment records and applies
// their status transitions. Webhook handlers and the reconciler both feed
// this single path, so push and pull deliveries behave identically.
type LedgerService interface {
	Apply(ctx context.Context, event *gateway.Event) error
	Refund(ctx context.Context, paymentID string) error
}

type ledgerServiceImpl struct {
	db           *gorm.DB
	paymentRepo  repository.PaymentRepository
	orderService OrderService
}

func NewLedgerService(
	db *gorm.DB,
	paymentRepo repository.PaymentRepository,
	orderService OrderService,
) LedgerService {
	return &ledgerServiceImpl{
		db:           db,
		paymentRepo:  paymentRepo,
		orderService: orderService,
	}
}

func (s *ledgerServiceImpl) Apply(ctx context.Context, event *gateway.Event) error {
	if event.Kind == gateway.KindDisburseTimeout {
		// no final outcome; the reconciler will pick the payment up
		log.Printf("disburse queue timeout for %s, leaving payment pending", event.PrimaryRef)
		return nil
	}

	payment, err := s.paymentRepo.FindByReference(ctx, event.PrimaryRef, event.FallbackRef)
	if err != nil {
		return fmt.Errorf("resolve payment: %w", err)
	}

	target := model.PaymentFailed
	if event.Success {
		target = model.PaymentCompleted
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.paymentRepo.TransitionStatus(ctx, tx, payment.ID, model.PaymentPending, target)
		if err != nil {
			return fmt.Errorf("transition payment status: %w", err)
		}
		if !moved {
			// already terminal: a redelivered or racing notification takes
			// the no-op path and still acknowledges
			log.Printf("payment %s already terminal, ignoring %s event", payment.ID, event.Kind)
			return nil
		}

		// Disbursement outcomes never drive order or inventory state.
		if target == model.PaymentCompleted && collectsForOrder(payment.Method) {
			if err := s.orderService.MarkPaid(ctx, tx, payment.OrderID); err != nil {
				return fmt.Errorf("mark order paid: %w", err)
			}
		}
		return nil
	})
}

func (s *ledgerServiceImpl) Refund(ctx context.Context, paymentID string) error {
	moved, err := s.paymentRepo.TransitionStatus(ctx, s.db, paymentID, model.PaymentCompleted, model.PaymentRefunded)
	if err != nil {
		return fmt.Errorf("transition payment status: %w", err)
	}
	if !moved {
		return fmt.Errorf("%w: payment %s is not COMPLETED", ErrInvalidTransition, paymentID)
	}
	return nil
}

func collectsForOrder(method string) bool {
	return method == model.MethodCard || method == model.MethodMobileCollect
}
