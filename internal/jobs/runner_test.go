package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/session"
)

type fakeTranscript struct {
	mu       sync.Mutex
	messages []models.Message
	created  []string
	finishes []finishCall

	createErr error
}

type finishCall struct {
	jobID  string
	status string
	ref    *string
	errMsg *string
}

func (f *fakeTranscript) AppendMessage(_ context.Context, msg models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeTranscript) CreateJob(_ context.Context, jobID, _, _ string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, jobID)
	return nil
}

func (f *fakeTranscript) FinishJob(_ context.Context, jobID, status string, ref, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishes = append(f.finishes, finishCall{jobID: jobID, status: status, ref: ref, errMsg: errMsg})
	return nil
}

func (f *fakeTranscript) terminalMessages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.messages...)
}

type blockingGenerator struct {
	content string
	err     error
	block   chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, _, _ string, _ int) (string, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.content, g.err
}

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	content string
}

func (g *recordingGenerator) Generate(_ context.Context, _, user string, _ int) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, user)
	g.mu.Unlock()
	return g.content, nil
}

type fakeEnv struct {
	content string
	ok      bool
}

func (e *fakeEnv) Load(string) (string, bool, error) { return e.content, e.ok, nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish in time")
	}
}

func TestRunnerSuccessPath(t *testing.T) {
	ts := &fakeTranscript{}
	sessions := session.NewStore(session.NoExpiry{})
	gen := &recordingGenerator{content: "resource \"aws_instance\" \"web\" {}"}
	outDir := t.TempDir()

	r := NewRunner(ts, sessions, gen, &fakeEnv{content: "DB_HOST=localhost", ok: true}, outDir, time.Minute, quietLogger(), nil)

	summary := &models.RepoSummary{FullAnalysis: "FastAPI service, needs ECS"}
	jobID, err := r.StartGeneration(context.Background(), "user7-chat1", "7", "generate infra for this", summary)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, ok := r.Get(jobID)
	require.True(t, ok)
	waitDone(t, job)

	info := job.Snapshot()
	assert.Equal(t, StatusSucceeded, info.Status)
	require.NotNil(t, info.CompletedAt)
	assert.Contains(t, info.ResultRef, jobID)

	data, err := os.ReadFile(filepath.Join(outDir, jobID, "terraform_config.tf"))
	require.NoError(t, err)
	assert.Equal(t, gen.content, string(data))

	msgs := ts.terminalMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "user7-chat1", msgs[0].ConversationID)
	assert.Contains(t, msgs[0].Content, "complete")
	assert.Contains(t, msgs[0].Content, jobID)
	require.NotNil(t, msgs[0].JobID)
	assert.Equal(t, jobID, *msgs[0].JobID)

	require.Len(t, ts.finishes, 1)
	assert.Equal(t, "succeeded", ts.finishes[0].status)
	require.NotNil(t, ts.finishes[0].ref)

	st := sessions.Snapshot("user7-chat1")
	assert.Equal(t, info.ResultRef, st.ConfigRef)

	// the repo analysis and env context both reach the prompt
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "FastAPI service")
	assert.Contains(t, gen.prompts[0], "DB_HOST=localhost")
	assert.Contains(t, gen.prompts[0], "generate infra for this")
}

func TestRunnerFailurePath(t *testing.T) {
	ts := &fakeTranscript{}
	sessions := session.NewStore(session.NoExpiry{})
	gen := &blockingGenerator{err: errors.New("model unavailable")}

	r := NewRunner(ts, sessions, gen, nil, t.TempDir(), time.Minute, quietLogger(), nil)

	jobID, err := r.StartGeneration(context.Background(), "user7-chat2", "7", "generate infra", nil)
	require.NoError(t, err)

	job, _ := r.Get(jobID)
	waitDone(t, job)

	info := job.Snapshot()
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, "model unavailable")

	msgs := ts.terminalMessages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "failed")
	assert.Contains(t, msgs[0].Content, "model unavailable")
	require.NotNil(t, msgs[0].JobID)

	require.Len(t, ts.finishes, 1)
	assert.Equal(t, "failed", ts.finishes[0].status)

	assert.Empty(t, sessions.Snapshot("user7-chat2").ConfigRef)
}

func TestRunnerCancel(t *testing.T) {
	ts := &fakeTranscript{}
	gen := &blockingGenerator{block: make(chan struct{})}

	r := NewRunner(ts, session.NewStore(session.NoExpiry{}), gen, nil, t.TempDir(), time.Minute, quietLogger(), nil)

	jobID, err := r.StartGeneration(context.Background(), "user7-chat3", "7", "generate infra", nil)
	require.NoError(t, err)

	require.NoError(t, r.Cancel(jobID))

	job, _ := r.Get(jobID)
	waitDone(t, job)

	assert.Equal(t, StatusCancelled, job.Snapshot().Status)
	require.Len(t, ts.terminalMessages(), 1)

	// cancelling again after completion must not produce a second write
	require.NoError(t, r.Cancel(jobID))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, ts.terminalMessages(), 1)
}

func TestRunnerCancelUnknownJob(t *testing.T) {
	r := NewRunner(&fakeTranscript{}, session.NewStore(session.NoExpiry{}), &blockingGenerator{}, nil, t.TempDir(), time.Minute, quietLogger(), nil)
	assert.Error(t, r.Cancel("no-such-job"))
}

func TestRunnerTimeout(t *testing.T) {
	ts := &fakeTranscript{}
	gen := &blockingGenerator{block: make(chan struct{})}

	r := NewRunner(ts, session.NewStore(session.NoExpiry{}), gen, nil, t.TempDir(), 50*time.Millisecond, quietLogger(), nil)

	jobID, err := r.StartGeneration(context.Background(), "user7-chat4", "7", "generate infra", nil)
	require.NoError(t, err)

	job, _ := r.Get(jobID)
	waitDone(t, job)

	assert.Equal(t, StatusFailed, job.Snapshot().Status)
	require.Len(t, ts.finishes, 1)
	assert.Equal(t, "failed", ts.finishes[0].status)
}

func TestRunnerStartFailsWhenRecordNotPersisted(t *testing.T) {
	ts := &fakeTranscript{createErr: errors.New("db down")}
	r := NewRunner(ts, session.NewStore(session.NoExpiry{}), &blockingGenerator{}, nil, t.TempDir(), time.Minute, quietLogger(), nil)

	_, err := r.StartGeneration(context.Background(), "user7-chat5", "7", "generate infra", nil)
	require.Error(t, err)
	assert.Empty(t, r.List())
}

func TestRunnerListRetainsCompletedJobs(t *testing.T) {
	ts := &fakeTranscript{}
	gen := &recordingGenerator{content: "ok"}
	r := NewRunner(ts, session.NewStore(session.NoExpiry{}), gen, nil, t.TempDir(), time.Minute, quietLogger(), nil)

	first, err := r.StartGeneration(context.Background(), "user7-chat6", "7", "generate infra", nil)
	require.NoError(t, err)
	job, _ := r.Get(first)
	waitDone(t, job)

	second, err := r.StartGeneration(context.Background(), "user7-chat6", "7", "generate infra again", nil)
	require.NoError(t, err)
	job2, _ := r.Get(second)
	waitDone(t, job2)

	infos := r.List()
	require.Len(t, infos, 2)
	ids := []string{infos[0].ID, infos[1].ID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
	for _, info := range infos {
		assert.Equal(t, StatusSucceeded, info.Status)
	}
}

func TestRunnerShutdownWaits(t *testing.T) {
	ts := &fakeTranscript{}
	gen := &blockingGenerator{block: make(chan struct{}), content: "ok"}
	r := NewRunner(ts, session.NewStore(session.NoExpiry{}), gen, nil, t.TempDir(), time.Minute, quietLogger(), nil)

	_, err := r.StartGeneration(context.Background(), "user7-chat7", "7", "generate infra", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)

	close(gen.block)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	require.NoError(t, r.Shutdown(ctx2))
}

func TestRunnerPromptWithoutEnvOrSummary(t *testing.T) {
	ts := &fakeTranscript{}
	gen := &recordingGenerator{content: "ok"}
	r := NewRunner(ts, session.NewStore(session.NoExpiry{}), gen, &fakeEnv{}, t.TempDir(), time.Minute, quietLogger(), nil)

	jobID, err := r.StartGeneration(context.Background(), "user7-chat8", "7", "terraform please", nil)
	require.NoError(t, err)
	job, _ := r.Get(jobID)
	waitDone(t, job)

	require.Len(t, gen.prompts, 1)
	assert.True(t, strings.Contains(gen.prompts[0], "None provided"))
}
