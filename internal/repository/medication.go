package repository

import (
	"context"
	"pharmacy-payments/internal/model"

	"gorm.io/gorm"
)

type MedicationRepository interface {
	FindByID(ctx context.Context, medicationID string) (*model.Medication, error)
	FindMany(ctx context.Context, medicationIDs []string) ([]*model.Medication, error)
}

type medicationRepoImpl struct {
	db *gorm.DB
}

func NewMedicationRepository(db *gorm.DB) MedicationRepository {
	return &medicationRepoImpl{
		db: db,
	}
}

func (r *medicationRepoImpl) FindByID(ctx context.Context, medicationID string) (*model.Medication, error) {
	var medication model.Medication
	err := r.db.WithContext(ctx).
		Where("id = ?", medicationID).
		First(&medication).Error

	if err != nil {
		return nil, err
	}

	return &medication, nil
}

func (r *medicationRepoImpl) FindMany(ctx context.Context, medicationIDs []string) ([]*model.Medication, error) {
	var medications []*model.Medication
	err := r.db.WithContext(ctx).
		Where("id IN ?", medicationIDs).
		Find(&medications).
		Error

	if err != nil {
		return nil, err
	}

	return medications, nil
}
