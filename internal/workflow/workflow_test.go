package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/gitrepo"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

// fakeGenerator streams a fixed reply in two chunks.
type fakeGenerator struct {
	reply    string
	lastMax  int
	lastUser string
	failWith error
}

func (f *fakeGenerator) Stream(ctx context.Context, system, user string, maxTokens int, emit func(string) error) (string, error) {
	f.lastMax = maxTokens
	f.lastUser = user
	if f.failWith != nil {
		return "", f.failWith
	}
	half := len(f.reply) / 2
	for _, chunk := range []string{f.reply[:half], f.reply[half:]} {
		if err := emit(chunk); err != nil {
			return "", err
		}
	}
	return f.reply, nil
}

func (f *fakeGenerator) Generate(ctx context.Context, system, user string, maxTokens int) (string, error) {
	f.lastMax = maxTokens
	f.lastUser = user
	return f.reply, f.failWith
}

func collect(t *testing.T, p Provider, req Request) ([]string, *Outcome, error) {
	t.Helper()
	var fragments []string
	outcome, err := p.Respond(context.Background(), req, func(s string) error {
		fragments = append(fragments, s)
		return nil
	})
	return fragments, outcome, err
}

func TestChatStreamsCappedReply(t *testing.T) {
	gen := &fakeGenerator{reply: "use blue-green deploys via the ALB"}
	chat := &Chat{Model: gen, MaxTokens: 500}

	fragments, outcome, err := collect(t, chat, Request{Text: "how do I do zero-downtime releases on AWS"})
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, gen.reply, strings.Join(fragments, ""))
	assert.Equal(t, 500, gen.lastMax, "interactive chat is length capped")
}

func TestChatCorrectiveSkipsModel(t *testing.T) {
	gen := &fakeGenerator{reply: "should not be used"}
	chat := &Chat{Model: gen, MaxTokens: 500}

	fragments, _, err := collect(t, chat, Request{Text: "can i deploy now", Corrective: "generate a config first"})
	require.NoError(t, err)
	assert.Equal(t, []string{"generate a config first"}, fragments)
	assert.Empty(t, gen.lastUser, "model must not be invoked for corrective replies")
}

func TestChatDeployWithoutURLAsksForRepo(t *testing.T) {
	gen := &fakeGenerator{reply: "should not be used"}
	chat := &Chat{Model: gen, MaxTokens: 500}

	fragments, _, err := collect(t, chat, Request{Text: "deploy my app please"})
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Contains(t, fragments[0], "GitHub repository URL")
	assert.Empty(t, gen.lastUser)
}

type fakeFetcher struct {
	tree    []gitrepo.TreeEntry
	files   map[string]string
	treeErr error
}

func (f *fakeFetcher) Tree(ctx context.Context, owner, repo string) ([]gitrepo.TreeEntry, error) {
	return f.tree, f.treeErr
}

func (f *fakeFetcher) File(ctx context.Context, owner, repo, path string) (string, error) {
	return f.files[path], nil
}

func TestRepoAnalysisProducesSummary(t *testing.T) {
	fetcher := &fakeFetcher{
		tree: []gitrepo.TreeEntry{
			{Path: "go.mod", Type: "blob"},
			{Path: "Dockerfile", Type: "blob"},
			{Path: "main.go", Type: "blob"},
		},
		files: map[string]string{"go.mod": "module widgets", "Dockerfile": "FROM golang"},
	}
	gen := &fakeGenerator{reply: "Go service, containerized, no managed DB detected"}
	p := &RepoAnalysis{Fetcher: fetcher, Model: gen}

	fragments, outcome, err := collect(t, p, Request{RepoURL: "https://github.com/acme/widgets"})
	require.NoError(t, err)

	joined := strings.Join(fragments, "")
	assert.Contains(t, joined, "acme/widgets")
	assert.Contains(t, joined, "Found 3 files")
	assert.Contains(t, joined, gen.reply, "analysis is streamed to the caller")

	require.NotNil(t, outcome.RepoSummary)
	assert.Equal(t, "acme", outcome.RepoSummary.Owner)
	assert.Equal(t, "widgets", outcome.RepoSummary.Repo)
	assert.Equal(t, 3, outcome.RepoSummary.FileCount)
	assert.Equal(t, gen.reply, outcome.RepoSummary.FullAnalysis)
	assert.True(t, outcome.RepoSummary.MissingEnv)
	assert.Equal(t, 0, gen.lastMax, "analysis output is not length capped")
}

func TestRepoAnalysisTreeFailureIsRecoverable(t *testing.T) {
	p := &RepoAnalysis{
		Fetcher: &fakeFetcher{treeErr: errors.New("api rate limited")},
		Model:   &fakeGenerator{},
	}

	_, _, err := collect(t, p, Request{RepoURL: "https://github.com/acme/widgets"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository structure")
}

type fakeStarter struct {
	jobID   string
	err     error
	started int
}

func (f *fakeStarter) StartGeneration(ctx context.Context, conv, principal, text string, summary *models.RepoSummary) (string, error) {
	f.started++
	return f.jobID, f.err
}

func TestConfigGenerationAcknowledges(t *testing.T) {
	starter := &fakeStarter{jobID: "7c9e6679-7425-40de-944b-e07fc1f90ae7"}
	p := &ConfigGeneration{Jobs: starter}

	fragments, outcome, err := collect(t, p, Request{Text: "generate infra with an ALB and RDS"})
	require.NoError(t, err)
	assert.Equal(t, 1, starter.started)
	assert.Equal(t, starter.jobID, outcome.JobID)

	joined := strings.Join(fragments, "")
	assert.Contains(t, joined, starter.jobID)
	assert.Contains(t, joined, "2-3 minutes")

	// The synchronous stream is the full assistant turn: ack, id, ETA, notice.
	require.Len(t, fragments, 4)
}

func TestConfigGenerationStartFailure(t *testing.T) {
	p := &ConfigGeneration{Jobs: &fakeStarter{err: errors.New("store down")}}

	fragments, _, err := collect(t, p, Request{Text: "generate infra"})
	require.Error(t, err)
	assert.Empty(t, fragments, "no ack may be emitted for a job that never started")
}

func TestDeployValidationReadsConfig(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "main.tf")
	require.NoError(t, os.WriteFile(ref, []byte(`resource "aws_lb" "app" {}`), 0644))

	gen := &fakeGenerator{reply: "go: config creates one ALB"}
	p := &DeployValidation{Model: gen, MaxTokens: 500}

	fragments, _, err := collect(t, p, Request{Text: "can i deploy now", ConfigRef: ref})
	require.NoError(t, err)
	assert.Contains(t, strings.Join(fragments, ""), gen.reply)
	assert.Contains(t, gen.lastUser, "aws_lb")
}

func TestDeployValidationRequiresRef(t *testing.T) {
	p := &DeployValidation{Model: &fakeGenerator{}}

	_, _, err := collect(t, p, Request{Text: "can i deploy now"})
	require.Error(t, err)
}
