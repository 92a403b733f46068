package models

import (
	"time"

	"gorm.io/datatypes"
)

// Grading outcomes stored on GradingRecord.
const (
	GradingOutcomeSucceeded = "succeeded"
)

// GradingRecord is the audit trail of one grading run. Code, prompts and raw
// provider text are never stored.
type GradingRecord struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	CorrelationID string            `gorm:"size:64;index" json:"correlation_id"`
	UserID        uint              `gorm:"index" json:"user_id"`
	Outcome       string            `gorm:"size:32;not null;index" json:"outcome"`
	FinalScore    *float64          `json:"final_score"`
	ScaledScore   *int              `json:"scaled_score"`
	MaxScore      float64           `gorm:"not null" json:"max_score"`
	Attempts      int               `gorm:"not null" json:"attempts"`
	Strategy      string            `gorm:"size:16" json:"strategy"`
	Provider      string            `gorm:"size:32" json:"provider"`
	Model         string            `gorm:"size:64" json:"model"`
	CodeLength    int               `json:"code_length"`
	Truncated     bool              `json:"truncated"`
	DurationMs    int64             `json:"duration_ms"`
	Details       datatypes.JSONMap `json:"details"`
	CreatedAt     time.Time         `json:"created_at"`
}
