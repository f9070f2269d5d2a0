package service

import (
	"context"
	"encoding/json"
	"fmt"
	"pharmacy-payments/internal/client"
	"pharmacy-payments/internal/dto"
	"pharmacy-payments/internal/model"
	"pharmacy-payments/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CheckoutService interface {
	// Checkout creates a PENDING order plus a PENDING payment and initiates
	// collection with the chosen gateway. The gateway's reference lands on
	// the payment so the result notification can find its way back.
	Checkout(ctx context.Context, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)
	// Payout initiates a B2C disbursement (refund-to-patient or pharmacy
	// settlement) tracked as a payment of method MPESA_DISBURSE.
	Payout(ctx context.Context, req *dto.PayoutRequest) (*dto.PayoutResponse, error)
}

type checkoutServiceImpl struct {
	db             *gorm.DB
	mpesaClient    client.MpesaClient
	stripeClient   client.StripeClient
	medicationRepo repository.MedicationRepository
	orderRepo      repository.OrderRepository
	paymentRepo    repository.PaymentRepository
}

func NewCheckoutService(
	db *gorm.DB,
	mpesaClient client.MpesaClient,
	stripeClient client.StripeClient,
	medicationRepo repository.MedicationRepository,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
) CheckoutService {
	return &checkoutServiceImpl{
		db:             db,
		mpesaClient:    mpesaClient,
		stripeClient:   stripeClient,
		medicationRepo: medicationRepo,
		orderRepo:      orderRepo,
		paymentRepo:    paymentRepo,
	}
}

func (s *checkoutServiceImpl) Checkout(ctx context.Context, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order must have at least one item")
	}

	medicationIDs := make([]string, len(req.Items))
	quantityByID := make(map[string]int32)
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item quantity must be positive")
		}
		medicationIDs[i] = item.MedicationID
		quantityByID[item.MedicationID] = item.Quantity
	}

	medications, err := s.medicationRepo.FindMany(ctx, medicationIDs)
	if err != nil {
		return nil, fmt.Errorf("get medications: %w", err)
	}
	if len(medications) != len(req.Items) {
		return nil, fmt.Errorf("some medications not found")
	}

	orderID := uuid.NewString()
	currency := medications[0].Currency
	total := decimal.Zero
	orderItems := make([]*model.OrderItem, len(medications))
	for i, medication := range medications {
		quantity := quantityByID[medication.ID]
		total = total.Add(medication.Price.Mul(decimal.NewFromInt32(quantity)))

		orderItems[i] = &model.OrderItem{
			OrderID:      orderID,
			MedicationID: medication.ID,
			Quantity:     quantity,
			UnitPrice:    medication.Price,
			Currency:     medication.Currency,
		}
	}

	payment := &model.Payment{
		ID:      uuid.NewString(),
		OrderID: orderID,
		Amount:  total,
		Method:  req.Method,
		Status:  model.PaymentPending,
	}

	var checkoutURL string
	switch req.Method {
	case model.MethodMobileCollect:
		if req.Phone == "" {
			return nil, fmt.Errorf("phone is required for mobile money collection")
		}
		resp, err := s.mpesaClient.InitiateSTKPush(ctx, req.Phone, total, orderID)
		if err != nil {
			return nil, fmt.Errorf("mpesa stk push: %w", err)
		}
		payment.ExternalRef = &resp.CheckoutRequestID
		payment.Metadata = mustMetadata(map[string]string{
			"merchant_request_id": resp.MerchantRequestID,
			"order_id":            orderID,
		})
	case model.MethodCard:
		session, err := s.stripeClient.CreateCheckoutSession(ctx, total, currency, orderID)
		if err != nil {
			return nil, fmt.Errorf("create checkout session: %w", err)
		}
		payment.ExternalRef = &session.ID
		payment.Metadata = mustMetadata(map[string]string{
			"order_id": orderID,
		})
		checkoutURL = session.URL
	default:
		return nil, fmt.Errorf("unsupported payment method %q", req.Method)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, &model.Order{
			ID:          orderID,
			PatientID:   req.PatientID,
			PharmacyID:  req.PharmacyID,
			Status:      model.OrderPending,
			TotalAmount: total,
			Currency:    currency,
		}); err != nil {
			return fmt.Errorf("store order: %w", err)
		}

		if err := s.orderRepo.CreateItems(ctx, tx, orderItems); err != nil {
			return fmt.Errorf("store order items: %w", err)
		}

		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return fmt.Errorf("store payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dto.CheckoutResponse{
		OrderID:     orderID,
		PaymentID:   payment.ID,
		CheckoutURL: checkoutURL,
	}, nil
}

func (s *checkoutServiceImpl) Payout(ctx context.Context, req *dto.PayoutRequest) (*dto.PayoutResponse, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}

	if _, err := s.orderRepo.FindByID(ctx, req.OrderID); err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	resp, err := s.mpesaClient.InitiateB2C(ctx, req.Phone, amount, req.Remarks)
	if err != nil {
		return nil, fmt.Errorf("mpesa b2c: %w", err)
	}

	payment := &model.Payment{
		ID:          uuid.NewString(),
		OrderID:     req.OrderID,
		Amount:      amount,
		Method:      model.MethodMobileDisburse,
		Status:      model.PaymentPending,
		ExternalRef: &resp.ConversationID,
		Metadata: mustMetadata(map[string]string{
			"originator_conversation_id": resp.OriginatorConversationID,
			"order_id":                   req.OrderID,
		}),
	}

	if err := s.paymentRepo.Create(ctx, s.db, payment); err != nil {
		return nil, fmt.Errorf("store payment: %w", err)
	}

	return &dto.PayoutResponse{
		PaymentID:      payment.ID,
		ConversationID: resp.ConversationID,
	}, nil
}

func mustMetadata(values map[string]string) string {
	b, _ := json.Marshal(values)
	return string(b)
}
