package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/gitrepo"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

// maxManifestFetches caps how many manifest files are pulled per analysis.
const maxManifestFetches = 8

const analysisSystemPrompt = `You are a senior DevOps engineer reviewing a repository before deployment.
From the provided manifest files, identify:
- the tech stack (languages, frameworks, build tools)
- external services and data stores the app depends on
- containerization status (Dockerfile, compose)
- anything missing that blocks a cloud deployment
Be concise and structured.`

// RepoFetcher is the source-hosting backend for repository analysis.
type RepoFetcher interface {
	Tree(ctx context.Context, owner, repo string) ([]gitrepo.TreeEntry, error)
	File(ctx context.Context, owner, repo, path string) (string, error)
}

// RepoAnalysis inspects a repository and streams an analysis, yielding a
// structured summary as its final contribution.
type RepoAnalysis struct {
	Fetcher RepoFetcher
	Model   Generator
}

func (r *RepoAnalysis) Name() models.Workflow { return models.WorkflowRepoAnalysis }

func (r *RepoAnalysis) Respond(ctx context.Context, req Request, emit func(string) error) (*Outcome, error) {
	if err := emit("Analyzing repository structure...\n"); err != nil {
		return nil, err
	}

	owner, repo, err := gitrepo.ParseURL(req.RepoURL)
	if err != nil {
		return nil, err
	}
	if err := emit(fmt.Sprintf("Repository: **%s/%s**\n\n", owner, repo)); err != nil {
		return nil, err
	}

	tree, err := r.Fetcher.Tree(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("fetch repository structure: %w", err)
	}
	if err := emit(fmt.Sprintf("Found %d files\n", len(tree))); err != nil {
		return nil, err
	}
	if err := emit("Fetching configuration files...\n\n"); err != nil {
		return nil, err
	}

	manifests := gitrepo.MatchManifests(tree)

	var contents strings.Builder
	fetched := 0
	for _, path := range manifests {
		if fetched >= maxManifestFetches {
			break
		}
		content, err := r.Fetcher.File(ctx, owner, repo, path)
		if err != nil || content == "" {
			continue
		}
		fmt.Fprintf(&contents, "### %s\n%s\n\n", path, content)
		fetched++
	}

	userPrompt := fmt.Sprintf("Repository %s/%s with %d files.\n\nManifest files:\n%s",
		owner, repo, len(tree), contents.String())

	var analysis strings.Builder
	_, err = r.Model.Stream(ctx, analysisSystemPrompt, userPrompt, 0, func(chunk string) error {
		analysis.WriteString(chunk)
		return emit(chunk)
	})
	if err != nil {
		return nil, fmt.Errorf("analyze repository: %w", err)
	}

	return &Outcome{
		RepoSummary: &models.RepoSummary{
			URL:          req.RepoURL,
			Owner:        owner,
			Repo:         repo,
			FileCount:    len(tree),
			Manifests:    manifests,
			MissingEnv:   !gitrepo.HasEnvFile(manifests),
			FullAnalysis: analysis.String(),
		},
	}, nil
}
