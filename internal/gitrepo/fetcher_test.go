package gitrepo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		in        string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{in: "https://github.com/acme/widgets", wantOwner: "acme", wantRepo: "widgets"},
		{in: "https://github.com/acme/widgets.git", wantOwner: "acme", wantRepo: "widgets"},
		{in: "https://github.com/acme/widgets/", wantOwner: "acme", wantRepo: "widgets"},
		{in: "https://github.com/acme", wantErr: true},
		{in: "https://github.com/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			owner, repo, err := ParseURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestTreeFallsBackToMaster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/widgets/git/trees/main":
			w.WriteHeader(http.StatusNotFound)
		case "/repos/acme/widgets/git/trees/master":
			w.Write([]byte(`{"tree":[{"path":"go.mod","type":"blob"},{"path":"cmd","type":"tree"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	f := NewFetcher("")
	f.baseURL = srv.URL

	tree, err := f.Tree(context.Background(), "acme", "widgets")
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, "go.mod", tree[0].Path)
}

func TestTreeNoBranch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher("")
	f.baseURL = srv.URL

	_, err := f.Tree(context.Background(), "acme", "gone")
	require.Error(t, err)
}

func TestFileSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.v3.raw", r.Header.Get("Accept"))
		w.Write([]byte("module widgets"))
	}))
	defer srv.Close()

	f := NewFetcher("secret")
	f.baseURL = srv.URL

	content, err := f.File(context.Background(), "acme", "widgets", "go.mod")
	require.NoError(t, err)
	assert.Equal(t, "module widgets", content)
}

func TestMatchManifests(t *testing.T) {
	tree := []TreeEntry{
		{Path: "go.mod", Type: "blob"},
		{Path: "Dockerfile", Type: "blob"},
		{Path: "src/index.ts", Type: "blob"},
		{Path: "cmd", Type: "tree"},
		{Path: ".env.example", Type: "blob"},
	}

	matched := MatchManifests(tree)
	assert.Equal(t, []string{"go.mod", "Dockerfile", ".env.example"}, matched)
	assert.True(t, HasEnvFile(matched))
	assert.False(t, HasEnvFile([]string{"go.mod"}))
}
