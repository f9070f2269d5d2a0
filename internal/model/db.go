package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses. PENDING moves to COMPLETED or FAILED exactly once;
// REFUNDED is reachable only from COMPLETED.
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
	PaymentRefunded  = "REFUNDED"
)

// Payment methods.
const (
	MethodCard           = "CARD"
	MethodMobileCollect  = "MPESA_COLLECT"
	MethodMobileDisburse = "MPESA_DISBURSE"
)

// Order statuses.
const (
	OrderPending    = "PENDING"
	OrderPaid       = "PAID"
	OrderProcessing = "PROCESSING"
	OrderShipped    = "SHIPPED"
	OrderDelivered  = "DELIVERED"
	OrderCompleted  = "COMPLETED"
	OrderCancelled  = "CANCELLED"
)

type Payment struct {
	ID      string          `gorm:"primaryKey;size:64;not null"`
	OrderID string          `gorm:"size:64;index;not null"`
	Amount  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Method  string          `gorm:"size:32;index;not null"` // CARD, MPESA_COLLECT, MPESA_DISBURSE
	Status  string          `gorm:"size:16;index;not null"` // PENDING, COMPLETED, FAILED, REFUNDED
	// gateway-assigned reference, null until the gateway hands one back
	ExternalRef *string `gorm:"size:128;index"`
	// JSON object of secondary correlation ids (merchant request id,
	// originator conversation id, ...)
	Metadata  string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID          string          `gorm:"primaryKey;size:64;not null"`
	PatientID   string          `gorm:"size:64;index;not null"`
	PharmacyID  string          `gorm:"size:64;index;not null"`
	Status      string          `gorm:"size:16;index;not null"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency    string          `gorm:"size:8;not null"`
	// set when automated processing could not finish (e.g. stock shortfall
	// on a paid order) and an operator has to step in
	Flagged    bool   `gorm:"not null;default:false"`
	FlagReason string `gorm:"size:255"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type OrderItem struct {
	ID uint `gorm:"primaryKey"`
	// FK → order.id
	OrderID string `gorm:"size:64;index;not null"`
	// FK → medication.id
	MedicationID string          `gorm:"size:64;index;not null"`
	Quantity     int32           `gorm:"not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency     string          `gorm:"size:8;not null"`

	CreatedAt time.Time
}

type Medication struct {
	ID       string          `gorm:"primaryKey;size:64;not null"` // catalog sku
	Name     string          `gorm:"size:128;not null"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency string          `gorm:"size:8;not null"`
}

type InventoryRecord struct {
	MedicationID string `gorm:"primaryKey;size:64;not null"`
	PharmacyID   string `gorm:"primaryKey;size:64;not null"`
	Quantity     int32  `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InventoryDebit marks an order whose stock decrements have been applied.
// The order id is the idempotency key: inserting it twice conflicts, so
// duplicate payment notifications can never debit twice.
type InventoryDebit struct {
	OrderID   string `gorm:"primaryKey;size:64;not null"`
	DebitedAt time.Time
}

// GatewayEventRecord is the processed-notification log: dedup by provider
// event id where the provider issues one, raw payload kept for audit.
type GatewayEventRecord struct {
	EventID   string `gorm:"primaryKey;size:128;not null"`
	Kind      string `gorm:"size:64;index"`
	Payload   []byte `gorm:"type:blob"`
	CreatedAt time.Time
}
