package repository

import (
	"context"
	"errors"
	"fmt"
	"pharmacy-payments/internal/model"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrPaymentNotFound means no payment matched any candidate reference.
	ErrPaymentNotFound = errors.New("no payment matches reference")

	// ErrAmbiguousMatch means more than one distinct payment matched. The
	// ledger fails closed on this rather than guessing.
	ErrAmbiguousMatch = errors.New("reference matches more than one payment")
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	FindByID(ctx context.Context, id string) (*model.Payment, error)
	// FindByReference resolves a gateway reference to exactly one payment:
	// exact match on external_ref with the primary, then the fallback, then
	// a substring scan of the metadata blob.
	FindByReference(ctx context.Context, primaryRef, fallbackRef string) (*model.Payment, error)
	FindStalePending(ctx context.Context, updatedBefore, createdAfter time.Time) ([]*model.Payment, error)
	SetExternalRef(ctx context.Context, tx *gorm.DB, id, ref string) error
	// TransitionStatus is the only mutation path into a new status. It is a
	// compare-and-swap: false means the payment was not in `from`, and the
	// caller takes the idempotent no-op path.
	TransitionStatus(ctx context.Context, tx *gorm.DB, id, from, to string) (bool, error)
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{
		db: db,
	}
}

func (r *paymentRepoImpl) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepoImpl) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func (r *paymentRepoImpl) FindByReference(ctx context.Context, primaryRef, fallbackRef string) (*model.Payment, error) {
	for _, ref := range []string{primaryRef, fallbackRef} {
		if ref == "" {
			continue
		}
		payment, err := r.findByExternalRef(ctx, ref)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}

	// Heuristic fallback: provider reference formats vary, so secondary ids
	// live in the metadata blob. A substring scan is fuzzy; anything other
	// than exactly one distinct hit fails closed.
	return r.findByMetadata(ctx, primaryRef, fallbackRef)
}

func (r *paymentRepoImpl) findByExternalRef(ctx context.Context, ref string) (*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("external_ref = ?", ref).
		Limit(2).
		Find(&payments).Error

	if err != nil {
		return nil, err
	}
	if len(payments) > 1 {
		return nil, fmt.Errorf("%w: external_ref %q", ErrAmbiguousMatch, ref)
	}
	if len(payments) == 1 {
		return payments[0], nil
	}
	return nil, nil
}

func (r *paymentRepoImpl) findByMetadata(ctx context.Context, refs ...string) (*model.Payment, error) {
	matches := map[string]*model.Payment{}

	for _, ref := range refs {
		if ref == "" {
			continue
		}
		var payments []*model.Payment
		err := r.db.WithContext(ctx).
			Where("metadata LIKE ?", "%"+ref+"%").
			Find(&payments).Error

		if err != nil {
			return nil, err
		}
		for _, p := range payments {
			matches[p.ID] = p
		}
	}

	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: metadata scan for %v", ErrAmbiguousMatch, refs)
	}
	for _, p := range matches {
		return p, nil
	}
	return nil, fmt.Errorf("%w: refs %v", ErrPaymentNotFound, refs)
}

func (r *paymentRepoImpl) FindStalePending(ctx context.Context, updatedBefore, createdAfter time.Time) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PaymentPending).
		Where("updated_at < ?", updatedBefore).
		Where("created_at > ?", createdAfter).
		Where("external_ref IS NOT NULL").
		Find(&payments).Error

	if err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *paymentRepoImpl) SetExternalRef(ctx context.Context, tx *gorm.DB, id, ref string) error {
	return tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"external_ref": ref,
			"updated_at":   time.Now(),
		}).Error
}

func (r *paymentRepoImpl) TransitionStatus(ctx context.Context, tx *gorm.DB, id, from, to string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
