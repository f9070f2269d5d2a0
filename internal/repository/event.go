package repository

import (
	"context"
	"pharmacy-payments/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, kind string, payload []byte) error
}

type eventRepositoryImpl struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepositoryImpl{db: db}
}

func (r *eventRepositoryImpl) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.GatewayEventRecord{}).
		Where("event_id = ?", eventID).
		Count(&count).Error

	return count > 0, err
}

func (r *eventRepositoryImpl) MarkProcessed(ctx context.Context, eventID, kind string, payload []byte) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.GatewayEventRecord{
			EventID: eventID,
			Kind:    kind,
			Payload: payload,
		}).Error
}
