// Package dispatch routes inbound conversational turns through
// classification, session state, and the selected workflow, streaming
// the response back while writing both sides of the turn to the
// transcript.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/intent"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/metrics"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/session"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/workflow"
)

// FragmentKind discriminates the streamed fragment variants.
type FragmentKind string

const (
	// FragmentConversation carries the resolved conversation id and is
	// always the first fragment of a stream.
	FragmentConversation FragmentKind = "conversation"
	FragmentText         FragmentKind = "text"
	FragmentError        FragmentKind = "error"
)

// Fragment is one unit of a streamed turn response.
type Fragment struct {
	Kind    FragmentKind `json:"kind"`
	Content string       `json:"content"`
}

// TranscriptStore is the subset of the transcript store the dispatcher
// depends on.
type TranscriptStore interface {
	AppendMessage(ctx context.Context, msg models.Message) error
	NextTurn(ctx context.Context, userID string) (int, error)
}

// Dispatcher is the single entry point every turn passes through. It is
// safe for concurrent use; turns on distinct conversations never block
// each other.
type Dispatcher struct {
	transcript TranscriptStore
	sessions   *session.Store
	providers  map[models.Workflow]workflow.Provider
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// NewDispatcher wires the dispatcher's collaborators. Later providers
// with the same name override earlier ones.
func NewDispatcher(ts TranscriptStore, sessions *session.Store, providers []workflow.Provider, logger *slog.Logger, mc *metrics.Collector) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[models.Workflow]workflow.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Dispatcher{
		transcript: ts,
		sessions:   sessions,
		providers:  byName,
		logger:     logger,
		metrics:    mc,
	}
}

// HandleTurn processes one inbound turn. The user message is persisted
// before any output is produced; a persistence failure aborts the turn
// with no stream. The returned channel is unbuffered, yields the resolved
// conversation id as its first fragment, and is closed after the
// assistant message has been written.
func (d *Dispatcher) HandleTurn(ctx context.Context, conversationID, principalID, text string) (<-chan Fragment, error) {
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	if conversationID == "" {
		seq, err := d.transcript.NextTurn(ctx, principalID)
		if err != nil {
			return nil, fmt.Errorf("derive conversation id: %w", err)
		}
		conversationID = fmt.Sprintf("user%s-chat%d", principalID, seq)
	}

	err := d.transcript.AppendMessage(ctx, models.Message{
		ConversationID: conversationID,
		MessageID:      uuid.New().String(),
		Role:           models.RoleUser,
		UserID:         principalID,
		Content:        text,
		Timestamp:      time.Now().UTC(),
		Active:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	out := make(chan Fragment)
	go d.stream(ctx, out, conversationID, principalID, text)
	return out, nil
}

// stream runs the classified workflow and forwards its fragments,
// accumulating a copy for the terminal transcript write. Provider
// failures never escape: they become a final error fragment and an
// assistant message describing the failure.
func (d *Dispatcher) stream(ctx context.Context, out chan<- Fragment, conversationID, principalID, text string) {
	defer close(out)
	done := d.metrics.Start(metrics.OpTurn)
	defer done()

	send := func(f Fragment) bool {
		select {
		case out <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(Fragment{Kind: FragmentConversation, Content: conversationID}) {
		return
	}

	// Classification and the lastWorkflow update happen under the
	// conversation's state lock so a concurrent job completion cannot
	// interleave between the read and the write.
	var decision intent.Decision
	var configRef string
	stopClassify := d.metrics.Start(metrics.OpClassify)
	d.sessions.Update(conversationID, func(st *session.State) {
		decision = intent.Classify(text, *st)
		st.LastWorkflow = decision.Workflow
		configRef = st.ConfigRef
	})
	stopClassify()

	d.logger.Info("turn classified",
		"chat_id", conversationID, "user_id", principalID, "workflow", decision.Workflow)

	req := workflow.Request{
		ConversationID: conversationID,
		PrincipalID:    principalID,
		Text:           text,
		RepoURL:        decision.RepoURL,
		RepoSummary:    decision.RepoSummary,
		ConfigRef:      configRef,
		Corrective:     decision.Corrective,
	}

	var sb strings.Builder
	emit := func(fragment string) error {
		if !send(Fragment{Kind: FragmentText, Content: fragment}) {
			return ctx.Err()
		}
		sb.WriteString(fragment)
		return nil
	}

	var outcome *workflow.Outcome
	provider, ok := d.providers[decision.Workflow]
	var err error
	if !ok {
		err = fmt.Errorf("no provider registered for workflow %q", decision.Workflow)
	} else {
		outcome, err = provider.Respond(ctx, req, emit)
	}

	content := sb.String()
	if err != nil {
		d.logger.Error("workflow failed",
			"chat_id", conversationID, "workflow", decision.Workflow, "error", err)
		content = fmt.Sprintf("Sorry, something went wrong handling this request: %s", err)
		send(Fragment{Kind: FragmentError, Content: content})
	}

	if outcome != nil && outcome.RepoSummary != nil {
		d.sessions.Update(conversationID, func(st *session.State) {
			st.RepoSummary = outcome.RepoSummary
		})
	}

	var jobID *string
	if outcome != nil && outcome.JobID != "" {
		jobID = &outcome.JobID
	}

	// The request context may already be cancelled; the terminal write
	// must still land.
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	appendErr := d.transcript.AppendMessage(writeCtx, models.Message{
		ConversationID: conversationID,
		MessageID:      uuid.New().String(),
		Role:           models.RoleAssistant,
		UserID:         principalID,
		Content:        content,
		Timestamp:      time.Now().UTC(),
		Active:         true,
		JobID:          jobID,
	})
	if appendErr != nil {
		d.logger.Error("persist assistant message failed",
			"chat_id", conversationID, "error", appendErr)
	}

	if _, err := d.transcript.NextTurn(writeCtx, principalID); err != nil {
		d.logger.Warn("turn counter increment failed", "user_id", principalID, "error", err)
	}
}
