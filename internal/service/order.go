package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"pharmacy-payments/internal/model"
	"pharmacy-payments/internal/repository"

	"gorm.io/gorm"
)

// ErrInvalidTransition means a requested status change is outside the
// allow-list. State is left untouched.
var ErrInvalidTransition = errors.New("invalid status transition")

// orderTransitions is the allow-list. COMPLETED and CANCELLED are terminal;
// CANCELLED is reachable from every non-terminal state.
var orderTransitions = map[string][]string{
	model.OrderPending:    {model.OrderPaid, model.OrderCancelled},
	model.OrderPaid:       {model.OrderProcessing, model.OrderCancelled},
	model.OrderProcessing: {model.OrderShipped, model.OrderCancelled},
	model.OrderShipped:    {model.OrderDelivered, model.OrderCancelled},
	model.OrderDelivered:  {model.OrderCompleted, model.OrderCancelled},
	model.OrderCompleted:  {},
	model.OrderCancelled:  {},
}

func canTransition(from, to string) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type OrderService interface {
	// UpdateStatus is the manual fulfilment path. PENDING→PAID is excluded
	// here: only a completed payment may drive that edge.
	UpdateStatus(ctx context.Context, orderID, next string) (*model.Order, error)
	// MarkPaid moves the order to PAID and debits inventory exactly once,
	// keyed by order id. Runs inside the caller's payment transaction.
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID string) error
}

type orderServiceImpl struct {
	db            *gorm.DB
	orderRepo     repository.OrderRepository
	inventoryRepo repository.InventoryRepository
}

func NewOrderService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	inventoryRepo repository.InventoryRepository,
) OrderService {
	return &orderServiceImpl{
		db:            db,
		orderRepo:     orderRepo,
		inventoryRepo: inventoryRepo,
	}
}

func (s *orderServiceImpl) UpdateStatus(ctx context.Context, orderID, next string) (*model.Order, error) {
	if next == model.OrderPaid {
		return nil, fmt.Errorf("%w: PAID is payment-driven only", ErrInvalidTransition)
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	if !canTransition(order.Status, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
	}

	moved, err := s.orderRepo.TransitionStatus(ctx, s.db, orderID, order.Status, next)
	if err != nil {
		return nil, fmt.Errorf("transition order status: %w", err)
	}
	if !moved {
		// status changed underneath us between read and write
		return nil, fmt.Errorf("%w: order %s no longer in %s", ErrInvalidTransition, orderID, order.Status)
	}

	return s.orderRepo.FindByID(ctx, orderID)
}

func (s *orderServiceImpl) MarkPaid(ctx context.Context, tx *gorm.DB, orderID string) error {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("find order: %w", err)
	}

	moved, err := s.orderRepo.TransitionStatus(ctx, tx, orderID, model.OrderPending, model.OrderPaid)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if !moved && (order.Status == model.OrderCancelled || order.Status == model.OrderCompleted) {
		// money arrived for an order nobody can fulfil anymore
		log.Printf("order %s: payment completed but order is %s, flagging", orderID, order.Status)
		return s.orderRepo.Flag(ctx, tx, orderID, "payment completed for "+order.Status+" order")
	}

	// Idempotency key is the order id: a duplicate completion signal finds
	// the marker and skips the debit entirely.
	first, err := s.inventoryRepo.MarkDebited(ctx, tx, orderID)
	if err != nil {
		return fmt.Errorf("mark inventory debited: %w", err)
	}
	if !first {
		return nil
	}

	items, err := s.orderRepo.GetItems(ctx, tx, orderID)
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}

	// All lines or none: the savepoint rolls the decrements back as a unit
	// on shortfall, while the paid status and the debit marker stand.
	err = tx.Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			if err := s.inventoryRepo.Debit(ctx, tx, item.MedicationID, order.PharmacyID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, repository.ErrStockShortfall) {
		log.Printf("order %s: %v, flagging for manual reconciliation", orderID, err)
		return s.orderRepo.Flag(ctx, tx, orderID, err.Error())
	}

	return err
}
