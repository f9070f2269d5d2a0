package service

import (
	"fmt"
	"pharmacy-payments/internal/model"
	"pharmacy-payments/internal/repository"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	db            *gorm.DB
	paymentRepo   repository.PaymentRepository
	orderRepo     repository.OrderRepository
	inventoryRepo repository.InventoryRepository
	orderService  OrderService
	ledger        LedgerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Medication{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
		&model.InventoryRecord{},
		&model.InventoryDebit{},
		&model.GatewayEventRecord{},
	))

	paymentRepo := repository.NewPaymentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	orderService := NewOrderService(db, orderRepo, inventoryRepo)

	return &fixture{
		db:            db,
		paymentRepo:   paymentRepo,
		orderRepo:     orderRepo,
		inventoryRepo: inventoryRepo,
		orderService:  orderService,
		ledger:        NewLedgerService(db, paymentRepo, orderService),
	}
}

type lineSpec struct {
	medicationID string
	quantity     int32
	stock        int32
}

// seedOrder creates a pending order with the given lines, matching stock
// rows at pharmacy "ph-1", and a pending payment referenced by ref.
func (f *fixture) seedOrder(t *testing.T, ref, method string, lines ...lineSpec) (*model.Order, *model.Payment) {
	t.Helper()

	order := &model.Order{
		ID:          uuid.NewString(),
		PatientID:   "pat-1",
		PharmacyID:  "ph-1",
		Status:      model.OrderPending,
		TotalAmount: decimal.NewFromInt(500),
		Currency:    "KES",
	}
	require.NoError(t, f.db.Create(order).Error)

	for _, line := range lines {
		require.NoError(t, f.db.Create(&model.OrderItem{
			OrderID:      order.ID,
			MedicationID: line.medicationID,
			Quantity:     line.quantity,
			UnitPrice:    decimal.NewFromInt(100),
			Currency:     "KES",
		}).Error)
		require.NoError(t, f.db.Create(&model.InventoryRecord{
			MedicationID: line.medicationID,
			PharmacyID:   order.PharmacyID,
			Quantity:     line.stock,
		}).Error)
	}

	payment := &model.Payment{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Amount:      order.TotalAmount,
		Method:      method,
		Status:      model.PaymentPending,
		ExternalRef: &ref,
		Metadata:    fmt.Sprintf(`{"order_id":%q}`, order.ID),
	}
	require.NoError(t, f.db.Create(payment).Error)

	return order, payment
}

func (f *fixture) paymentStatus(t *testing.T, id string) string {
	t.Helper()
	var payment model.Payment
	require.NoError(t, f.db.Where("id = ?", id).First(&payment).Error)
	return payment.Status
}

func (f *fixture) orderStatus(t *testing.T, id string) string {
	t.Helper()
	var order model.Order
	require.NoError(t, f.db.Where("id = ?", id).First(&order).Error)
	return order.Status
}

func (f *fixture) order(t *testing.T, id string) *model.Order {
	t.Helper()
	var order model.Order
	require.NoError(t, f.db.Where("id = ?", id).First(&order).Error)
	return &order
}

func (f *fixture) stock(t *testing.T, medicationID string) int32 {
	t.Helper()
	var record model.InventoryRecord
	require.NoError(t, f.db.
		Where("medication_id = ? AND pharmacy_id = ?", medicationID, "ph-1").
		First(&record).Error)
	return record.Quantity
}
