// Package gitrepo fetches repository structure and manifest files from the
// GitHub REST API.
package gitrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TreeEntry is one entry of a repository's recursive git tree.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

type treeResponse struct {
	Tree []TreeEntry `json:"tree"`
}

// manifestFiles is the shortlist of build/config files worth fetching for
// stack detection.
var manifestFiles = []string{
	"package.json", "package-lock.json", "yarn.lock",
	"requirements.txt", "pyproject.toml", "setup.py", "Pipfile",
	"pom.xml", "build.gradle", "build.gradle.kts",
	"go.mod", "Cargo.toml", "composer.json", "Gemfile",
	"Dockerfile", "docker-compose.yml", "docker-compose.yaml",
	".env.example", ".env.sample",
	"next.config.js", "next.config.ts", "angular.json", "vue.config.js",
	"tsconfig.json", "vercel.json", "netlify.toml",
}

// Fetcher retrieves repository contents over the GitHub REST API.
type Fetcher struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewFetcher creates a fetcher. An empty token limits access to public
// repositories at the unauthenticated rate limit.
func NewFetcher(token string) *Fetcher {
	return &Fetcher{
		token:   token,
		baseURL: "https://api.github.com",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ParseURL extracts owner and repository name from a repository URL.
func ParseURL(repoURL string) (owner, repo string, err error) {
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(repoURL), "/"))
	if err != nil {
		return "", "", fmt.Errorf("parse repo url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo url %q missing owner/name path", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// Tree returns the recursive file tree of the repository's default branch,
// trying main then master.
func (f *Fetcher) Tree(ctx context.Context, owner, repo string) ([]TreeEntry, error) {
	var lastStatus int
	for _, branch := range []string{"main", "master"} {
		endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", f.baseURL, owner, repo, branch)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build tree request: %w", err)
		}
		f.setHeaders(req, "application/vnd.github.v3+json")

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch tree: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			var tr treeResponse
			err := json.NewDecoder(resp.Body).Decode(&tr)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("decode tree: %w", err)
			}
			return tr.Tree, nil
		}
		resp.Body.Close()
		lastStatus = resp.StatusCode
	}
	return nil, fmt.Errorf("no accessible branch for %s/%s (last status %d)", owner, repo, lastStatus)
}

// File returns the raw contents of one file, or an empty string when the
// file is not retrievable.
func (f *Fetcher) File(ctx context.Context, owner, repo, path string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", f.baseURL, owner, repo, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build contents request: %w", err)
	}
	f.setHeaders(req, "application/vnd.github.v3.raw")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch file %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read file %s: %w", path, err)
	}
	return string(data), nil
}

// MatchManifests filters a tree down to recognized build/config files.
func MatchManifests(tree []TreeEntry) []string {
	var matched []string
	for _, entry := range tree {
		if entry.Type != "blob" {
			continue
		}
		for _, name := range manifestFiles {
			if strings.Contains(entry.Path, name) {
				matched = append(matched, entry.Path)
				break
			}
		}
	}
	return matched
}

// HasEnvFile reports whether any matched manifest looks like an env file.
func HasEnvFile(manifests []string) bool {
	for _, path := range manifests {
		if strings.Contains(path, ".env") {
			return true
		}
	}
	return false
}

func (f *Fetcher) setHeaders(req *http.Request, accept string) {
	req.Header.Set("Accept", accept)
	if f.token != "" {
		req.Header.Set("Authorization", "token "+f.token)
	}
}
