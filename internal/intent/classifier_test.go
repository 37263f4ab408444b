package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/session"
)

func TestClassifyRepositoryURL(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantURL string
	}{
		{
			name:    "bare url",
			text:    "please check https://github.com/acme/widgets",
			wantURL: "https://github.com/acme/widgets",
		},
		{
			name:    "url with .git suffix",
			text:    "analyze https://github.com/acme/widgets.git please",
			wantURL: "https://github.com/acme/widgets",
		},
		{
			name:    "url wins over infra keywords",
			text:    "generate terraform infrastructure for https://github.com/acme/widgets with an ALB",
			wantURL: "https://github.com/acme/widgets",
		},
		{
			name:    "url wins over deploy keywords",
			text:    "can i deploy https://github.com/acme/widgets now",
			wantURL: "https://github.com/acme/widgets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(tt.text, session.State{})
			assert.Equal(t, models.WorkflowRepoAnalysis, d.Workflow)
			assert.Equal(t, tt.wantURL, d.RepoURL)
		})
	}
}

func TestClassifyInfraKeywords(t *testing.T) {
	tests := []string{
		"generate infra with an ALB and RDS",
		"I need terraform for my service",
		"set up a load balancer",
		"provision an ECS cluster",
	}

	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			d := Classify(text, session.State{})
			assert.Equal(t, models.WorkflowConfigGeneration, d.Workflow)
		})
	}
}

func TestClassifyInfraCarriesRepoSummary(t *testing.T) {
	summary := &models.RepoSummary{Owner: "acme", Repo: "widgets"}

	d := Classify("generate infra with an ALB and RDS", session.State{RepoSummary: summary})
	assert.Equal(t, models.WorkflowConfigGeneration, d.Workflow)
	assert.Same(t, summary, d.RepoSummary)

	// No prior analysis: the parameter stays nil
	d = Classify("generate infra with an ALB and RDS", session.State{})
	assert.Nil(t, d.RepoSummary)
}

func TestClassifyDeployRequiresConfigRef(t *testing.T) {
	// Without a config reference, deploy intent redirects to chat with the
	// corrective fragment; the validation workflow is never selected.
	d := Classify("can i deploy now", session.State{})
	assert.Equal(t, models.WorkflowChat, d.Workflow)
	assert.Equal(t, NoConfigFragment, d.Corrective)

	d = Classify("can i deploy now", session.State{ConfigRef: "/configs/j1/main.tf"})
	assert.Equal(t, models.WorkflowDeployValidation, d.Workflow)
	assert.Empty(t, d.Corrective)
}

func TestClassifyChatFallback(t *testing.T) {
	d := Classify("what's the weather like in production", session.State{})
	assert.Equal(t, models.WorkflowChat, d.Workflow)
	assert.Empty(t, d.Corrective)
}

func TestClassifyKeywordBoundaries(t *testing.T) {
	// Short tokens must match whole words only
	d := Classify("reviewing the specs for the release notes", session.State{})
	assert.Equal(t, models.WorkflowChat, d.Workflow, "\"specs\" must not match the ecs keyword")
}

func TestRuleOrderIsVisible(t *testing.T) {
	// Priority order is an explicit artifact, not incidental code order.
	names := make([]string, 0, len(Rules))
	for _, r := range Rules {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"repository-url",
		"infrastructure-generation",
		"deployment-validation",
		"chat-fallback",
	}, names)
}
