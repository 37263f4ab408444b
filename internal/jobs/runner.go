// Package jobs runs detached config-generation work that outlives the
// request which started it, delivering results asynchronously into the
// conversation transcript.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/metrics"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/session"
)

// Status is the lifecycle state of a detached job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const generationSystemPrompt = `Generate production-ready Terraform for AWS.

Generate complete Terraform files including:
- main.tf
- variables.tf
- outputs.tf

Use clear file separators like:
### FILE: main.tf
[content]

### FILE: variables.tf
[content]`

// TranscriptStore is the subset of the transcript store the runner needs.
type TranscriptStore interface {
	AppendMessage(ctx context.Context, msg models.Message) error
	CreateJob(ctx context.Context, jobID, conversationID, userID string) error
	FinishJob(ctx context.Context, jobID, status string, resultRef, errMsg *string) error
}

// SessionUpdater applies a mutation under the conversation's state lock.
type SessionUpdater interface {
	Update(conversationID string, fn func(*session.State))
}

// Generator is the uncapped generation backend.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// EnvLoader supplies per-principal supplementary context.
type EnvLoader interface {
	Load(principalID string) (string, bool, error)
}

// Job is a retained handle for one detached execution. It is never
// reused; one job id names exactly one invocation.
type Job struct {
	ID             string
	ConversationID string
	PrincipalID    string
	StartedAt      time.Time

	mu          sync.Mutex
	status      Status
	resultRef   string
	errMsg      string
	completedAt *time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// transition moves the job to a terminal status. It returns false if the
// job already reached a terminal state, guaranteeing at most one terminal
// transition per job.
func (j *Job) transition(to Status) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning {
		return false
	}
	j.status = to
	now := time.Now().UTC()
	j.completedAt = &now
	return true
}

// Info is a read-only snapshot of a job handle.
type Info struct {
	ID             string     `json:"job_id"`
	ConversationID string     `json:"chat_id"`
	PrincipalID    string     `json:"user_id"`
	Status         Status     `json:"status"`
	ResultRef      string     `json:"result_ref,omitempty"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Snapshot returns the job's current state.
func (j *Job) Snapshot() Info {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Info{
		ID:             j.ID,
		ConversationID: j.ConversationID,
		PrincipalID:    j.PrincipalID,
		Status:         j.status,
		ResultRef:      j.resultRef,
		Error:          j.errMsg,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.completedAt,
	}
}

// Done is closed once the job reached its terminal state and the terminal
// transcript write completed.
func (j *Job) Done() <-chan struct{} { return j.done }

// Runner launches and tracks detached generation jobs. Every handle is
// retained so operational tooling can enumerate, inspect, and cancel
// stuck jobs.
type Runner struct {
	transcript TranscriptStore
	sessions   SessionUpdater
	generator  Generator
	env        EnvLoader
	outputDir  string
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Collector

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewRunner creates a job runner. timeout bounds each detached execution;
// zero means 15 minutes.
func NewRunner(ts TranscriptStore, sessions SessionUpdater, gen Generator, env EnvLoader, outputDir string, timeout time.Duration, logger *slog.Logger, mc *metrics.Collector) *Runner {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		transcript: ts,
		sessions:   sessions,
		generator:  gen,
		env:        env,
		outputDir:  outputDir,
		timeout:    timeout,
		logger:     logger,
		metrics:    mc,
		jobs:       make(map[string]*Job),
	}
}

// StartGeneration creates a job record, launches the detached execution,
// and returns the job id immediately. The execution's lifetime is
// independent of the caller's ctx; only the record creation uses it.
func (r *Runner) StartGeneration(ctx context.Context, conversationID, principalID, text string, summary *models.RepoSummary) (string, error) {
	jobID := uuid.New().String()

	if err := r.transcript.CreateJob(ctx, jobID, conversationID, principalID); err != nil {
		return "", fmt.Errorf("persist job record: %w", err)
	}

	jobCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
	job := &Job{
		ID:             jobID,
		ConversationID: conversationID,
		PrincipalID:    principalID,
		StartedAt:      time.Now().UTC(),
		status:         StatusRunning,
		cancel:         cancel,
		done:           make(chan struct{}),
	}

	r.mu.Lock()
	r.jobs[jobID] = job
	r.mu.Unlock()

	r.logger.Info("generation job started",
		"job_id", jobID, "chat_id", conversationID, "user_id", principalID)

	r.wg.Add(1)
	go r.run(jobCtx, job, text, summary)

	return jobID, nil
}

// run is the detached execution path. Exactly one terminal transcript
// write happens per job: success and failure share the finish path, and
// the status transition guards re-entry.
func (r *Runner) run(ctx context.Context, job *Job, text string, summary *models.RepoSummary) {
	defer r.wg.Done()
	defer job.cancel()
	done := r.metrics.Start(metrics.OpJobRun)
	defer done()

	resultRef, err := r.generate(ctx, job, text, summary)
	if err != nil {
		status := StatusFailed
		if ctx.Err() == context.Canceled {
			status = StatusCancelled
		}
		r.finish(job, status, "", err)
		return
	}
	r.finish(job, StatusSucceeded, resultRef, nil)
}

func (r *Runner) generate(ctx context.Context, job *Job, text string, summary *models.RepoSummary) (string, error) {
	envText := "None provided"
	if r.env != nil {
		if content, ok, err := r.env.Load(job.PrincipalID); err != nil {
			r.logger.Warn("load env context failed", "job_id", job.ID, "error", err)
		} else if ok {
			envText = content
			r.logger.Debug("loaded env context", "job_id", job.ID, "user_id", job.PrincipalID)
		}
	}

	analysis := ""
	if summary != nil {
		analysis = summary.FullAnalysis
	}

	userPrompt := fmt.Sprintf(`Repository Analysis:
%s

Environment Variables (.env):
%s

User Request: %s`, analysis, envText, text)

	// No output cap: long-form generation is the point of the detached path.
	content, err := r.generator.Generate(ctx, generationSystemPrompt, userPrompt, 0)
	if err != nil {
		return "", fmt.Errorf("generate config: %w", err)
	}

	outDir := filepath.Join(r.outputDir, job.ID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	outFile := filepath.Join(outDir, "terraform_config.tf")
	if err := os.WriteFile(outFile, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}

	abs, err := filepath.Abs(outFile)
	if err != nil {
		abs = outFile
	}
	return abs, nil
}

// finish performs the single terminal transition: status flip, transcript
// completion write, persisted job record update, and (on success) the
// session config-reference update. The transcript write bypasses the
// dispatcher because the originating request completed long ago.
func (r *Runner) finish(job *Job, status Status, resultRef string, cause error) {
	if !job.transition(status) {
		return
	}
	defer close(job.done)

	job.mu.Lock()
	job.resultRef = resultRef
	if cause != nil {
		job.errMsg = cause.Error()
	}
	job.mu.Unlock()

	// The job context may already be dead; terminal writes get their own.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var content string
	var refPtr, errPtr *string
	if status == StatusSucceeded {
		content = fmt.Sprintf(`**Infrastructure config generation complete!**

File saved to:
`+"`%s`"+`

Job ID: `+"`%s`"+`

**Next steps:**
1. Download the file
2. Run `+"`terraform init`"+`
3. Review variables
4. Ask me to validate the deployment`, resultRef, job.ID)
		refPtr = &resultRef
	} else {
		msg := cause.Error()
		errPtr = &msg
		content = fmt.Sprintf("Infrastructure config generation failed.\n\nJob ID: `%s`\n\nError: %s", job.ID, msg)
	}

	jobID := job.ID
	err := r.transcript.AppendMessage(ctx, models.Message{
		ConversationID: job.ConversationID,
		MessageID:      uuid.New().String(),
		Role:           models.RoleAssistant,
		UserID:         job.PrincipalID,
		Content:        content,
		Timestamp:      time.Now().UTC(),
		Active:         true,
		JobID:          &jobID,
	})
	if err != nil {
		r.logger.Error("terminal transcript write failed", "job_id", job.ID, "error", err)
	}

	if err := r.transcript.FinishJob(ctx, job.ID, string(status), refPtr, errPtr); err != nil {
		r.logger.Warn("persist job completion failed", "job_id", job.ID, "error", err)
	}

	if status == StatusSucceeded {
		// Runs from the detached context, synchronized against concurrent
		// turns by the session store's per-conversation lock.
		r.sessions.Update(job.ConversationID, func(st *session.State) {
			st.ConfigRef = resultRef
		})
	}

	r.logger.Info("generation job finished", "job_id", job.ID, "status", status)
}

// Get returns the retained handle for a job id.
func (r *Runner) Get(jobID string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	return job, ok
}

// Lookup returns a snapshot of one retained job.
func (r *Runner) Lookup(jobID string) (Info, bool) {
	job, ok := r.Get(jobID)
	if !ok {
		return Info{}, false
	}
	return job.Snapshot(), true
}

// List returns snapshots of all retained jobs, most recent first.
func (r *Runner) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.jobs))
	for _, job := range r.jobs {
		infos = append(infos, job.Snapshot())
	}
	r.mu.RUnlock()

	for i := 0; i < len(infos); i++ {
		for j := i + 1; j < len(infos); j++ {
			if infos[j].StartedAt.After(infos[i].StartedAt) {
				infos[i], infos[j] = infos[j], infos[i]
			}
		}
	}
	return infos
}

// Cancel aborts a running job. The detached execution observes the
// cancellation and takes the normal failure path, so the terminal
// transcript write still happens exactly once.
func (r *Runner) Cancel(jobID string) error {
	job, ok := r.Get(jobID)
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.cancel()
	return nil
}

// Shutdown waits for in-flight jobs to finish, up to ctx's deadline.
func (r *Runner) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
