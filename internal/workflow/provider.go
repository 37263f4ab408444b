// Package workflow defines the pluggable response-producing workflows and
// their uniform streaming contract.
package workflow

import (
	"context"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

// Request carries one turn's input plus the parameters the classifier and
// session state contributed.
type Request struct {
	ConversationID string
	PrincipalID    string
	Text           string

	// RepoURL is set for repository analysis.
	RepoURL string

	// RepoSummary is prior analysis carried into config generation.
	RepoSummary *models.RepoSummary

	// ConfigRef is the stored generated-config reference, required by
	// deployment validation.
	ConfigRef string

	// Corrective, when set, replaces the normal chat response with a
	// canned instructional fragment.
	Corrective string
}

// Outcome is what a provider contributes back to session state after its
// fragment stream ends.
type Outcome struct {
	// RepoSummary is produced by repository analysis as its final
	// contribution.
	RepoSummary *models.RepoSummary

	// JobID is set when the response acknowledged a detached job.
	JobID string
}

// Provider produces a finite, ordered sequence of response fragments for
// one turn. Fragments are delivered through emit as they are produced;
// a non-nil emit error must abort the stream. Providers fail with a
// recoverable error rather than panicking.
type Provider interface {
	Name() models.Workflow
	Respond(ctx context.Context, req Request, emit func(string) error) (*Outcome, error)
}
