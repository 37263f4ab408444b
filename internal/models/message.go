// Package models defines data structures shared across the orchestra service.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single transcript entry within a conversation.
// Soft-deleted messages carry Active=false and are excluded from read
// paths but never physically removed.
type Message struct {
	ID             surrealmodels.RecordID `json:"id"`
	ConversationID string                 `json:"chat_id"`
	MessageID      string                 `json:"message_id"`
	Role           string                 `json:"role"`
	UserID         string                 `json:"user_id"`
	Content        string                 `json:"content"`
	Timestamp      time.Time              `json:"timestamp"`
	Active         bool                   `json:"is_active"`
	JobID          *string                `json:"job_id,omitempty"`
}

// ChatSummary is the most-recent-message preview for one conversation,
// used for the per-owner conversation listing.
type ChatSummary struct {
	ConversationID string    `json:"chat_id"`
	Title          string    `json:"title"`
	Timestamp      time.Time `json:"timestamp"`
}

// RepoSummary is the structured result of a repository analysis. It is
// carried in session state so later turns can reference it.
type RepoSummary struct {
	URL          string   `json:"url"`
	Owner        string   `json:"owner"`
	Repo         string   `json:"repo"`
	FileCount    int      `json:"file_count"`
	Manifests    []string `json:"manifests,omitempty"`
	MissingEnv   bool     `json:"missing_env"`
	FullAnalysis string   `json:"full_analysis"`
}
