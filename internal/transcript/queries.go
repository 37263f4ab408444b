package transcript

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/metrics"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

// turnCount mirrors one principal_turns record.
type turnCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// AppendMessage appends one message to a conversation transcript.
// The message id must be unique; appending the same id twice fails with
// ErrDuplicateMessage.
func (c *Client) AppendMessage(ctx context.Context, msg models.Message) error {
	defer c.metrics.Start(metrics.OpTranscriptAppend)()
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE message CONTENT {
			chat_id: $chat_id,
			message_id: $message_id,
			role: $role,
			user_id: $user_id,
			content: $content,
			timestamp: $timestamp,
			is_active: $is_active,
			job_id: $job_id
		}
	`, map[string]any{
		"chat_id":    msg.ConversationID,
		"message_id": msg.MessageID,
		"role":       msg.Role,
		"user_id":    msg.UserID,
		"content":    msg.Content,
		"timestamp":  msg.Timestamp,
		"is_active":  msg.Active,
		"job_id":     msg.JobID,
	})
	if err != nil {
		return fmt.Errorf("append message: %w", wrapQueryError(err))
	}
	return nil
}

// Messages returns a conversation's messages ordered by timestamp.
// With activeOnly, soft-deleted messages are excluded.
func (c *Client) Messages(ctx context.Context, conversationID string, activeOnly bool) ([]models.Message, error) {
	defer c.metrics.Start(metrics.OpTranscriptQuery)()
	sql := `SELECT * FROM message WHERE chat_id = $chat_id ORDER BY timestamp ASC`
	if activeOnly {
		sql = `SELECT * FROM message WHERE chat_id = $chat_id AND is_active = true ORDER BY timestamp ASC`
	}

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, sql, map[string]any{
		"chat_id": conversationID,
	})
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	return (*results)[0].Result, nil
}

// LatestByOwner returns the most recent active message per conversation
// for one principal, newest conversation first. The title is a preview of
// that message's content.
func (c *Client) LatestByOwner(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	defer c.metrics.Start(metrics.OpTranscriptQuery)()
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message
		WHERE user_id = $user_id AND is_active = true
		ORDER BY timestamp DESC
	`, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("query by owner: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.ChatSummary{}, nil
	}

	// First message seen per chat is the most recent one.
	seen := make(map[string]bool)
	summaries := []models.ChatSummary{}
	for _, msg := range (*results)[0].Result {
		if seen[msg.ConversationID] {
			continue
		}
		seen[msg.ConversationID] = true
		summaries = append(summaries, models.ChatSummary{
			ConversationID: msg.ConversationID,
			Title:          previewTitle(msg.Content),
			Timestamp:      msg.Timestamp,
		})
	}
	return summaries, nil
}

// SoftDelete marks every message of a conversation inactive. The messages
// remain queryable with activeOnly=false. A conversation with no messages
// at all yields ErrConversationNotFound.
func (c *Client) SoftDelete(ctx context.Context, conversationID string) error {
	defer c.metrics.Start(metrics.OpTranscriptQuery)()
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		UPDATE message SET is_active = false WHERE chat_id = $chat_id RETURN AFTER
	`, map[string]any{"chat_id": conversationID})
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("soft delete %q: %w", conversationID, ErrConversationNotFound)
	}
	return nil
}

// NextTurn atomically increments and returns the principal's turn counter.
// The whole read-increment-return runs as a single UPSERT statement on the
// server, so two concurrent callers can never observe the same value.
func (c *Client) NextTurn(ctx context.Context, userID string) (int, error) {
	defer c.metrics.Start(metrics.OpTranscriptQuery)()
	results, err := surrealdb.Query[[]turnCount](ctx, c.db, `
		UPSERT type::record("principal_turns", $user_id)
		SET user_id = $user_id, count += 1
		RETURN AFTER
	`, map[string]any{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("next turn: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, fmt.Errorf("next turn: empty result")
	}
	return (*results)[0].Result[0].Count, nil
}

// CreateJob persists a new running generation-job record.
func (c *Client) CreateJob(ctx context.Context, jobID, conversationID, userID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE generation_job CONTENT {
			job_id: $job_id,
			chat_id: $chat_id,
			user_id: $user_id,
			status: "running",
			started_at: time::now()
		}
	`, map[string]any{
		"job_id":  jobID,
		"chat_id": conversationID,
		"user_id": userID,
	})
	if err != nil {
		return fmt.Errorf("create job: %w", wrapQueryError(err))
	}
	return nil
}

// FinishJob records a job's terminal status. resultRef and errMsg are
// optional depending on the outcome.
func (c *Client) FinishJob(ctx context.Context, jobID, status string, resultRef, errMsg *string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE generation_job SET
			status = $status,
			result_ref = $result_ref,
			error = $error,
			completed_at = time::now()
		WHERE job_id = $job_id
	`, map[string]any{
		"job_id":     jobID,
		"status":     status,
		"result_ref": resultRef,
		"error":      errMsg,
	})
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// GetJob returns a persisted job record, or ErrJobNotFound.
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	defer c.metrics.Start(metrics.OpTranscriptQuery)()
	results, err := surrealdb.Query[[]models.GenerationJob](ctx, c.db, `
		SELECT * FROM generation_job WHERE job_id = $job_id
	`, map[string]any{"job_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrJobNotFound
	}
	return &(*results)[0].Result[0], nil
}

// JobsByOwner lists a principal's job records, most recent first.
func (c *Client) JobsByOwner(ctx context.Context, userID string) ([]models.GenerationJob, error) {
	defer c.metrics.Start(metrics.OpTranscriptQuery)()
	results, err := surrealdb.Query[[]models.GenerationJob](ctx, c.db, `
		SELECT * FROM generation_job WHERE user_id = $user_id ORDER BY started_at DESC
	`, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("jobs by owner: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.GenerationJob{}, nil
	}
	return (*results)[0].Result, nil
}

// previewTitle shortens message content to a 50-character listing title.
// Truncation counts runes so multi-byte content is never split mid-rune.
func previewTitle(content string) string {
	const maxTitle = 50
	runes := []rune(content)
	if len(runes) > maxTitle {
		return string(runes[:maxTitle]) + "..."
	}
	return content
}
