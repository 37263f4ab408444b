package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// GenerationJob is the persisted record of a detached config-generation job.
type GenerationJob struct {
	ID             surrealmodels.RecordID `json:"id"`
	JobID          string                 `json:"job_id"`
	ConversationID string                 `json:"chat_id"`
	UserID         string                 `json:"user_id"`
	Status         string                 `json:"status"`
	ResultRef      *string                `json:"result_ref,omitempty"`
	Error          *string                `json:"error,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}
