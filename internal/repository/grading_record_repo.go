package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

// GradingRecordRepository persists the grading audit trail.
type GradingRecordRepository interface {
	Create(ctx context.Context, record *models.GradingRecord) error
	ListByCorrelationID(ctx context.Context, correlationID string) ([]models.GradingRecord, error)
}

// NewGradingRecordRepository constructs a grading record repository.
func NewGradingRecordRepository(db *gorm.DB) GradingRecordRepository {
	return &gradingRecordRepository{db: db}
}

type gradingRecordRepository struct {
	db *gorm.DB
}

func (r *gradingRecordRepository) Create(ctx context.Context, record *models.GradingRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gradingRecordRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]models.GradingRecord, error) {
	var records []models.GradingRecord
	err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
