// Package intent routes free-text turns to a workflow using an ordered
// rule list. Classification is deliberately deterministic and keyword
// based so routing decisions are reproducible and auditable.
package intent

import (
	"regexp"
	"strings"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/session"
)

// Decision is the outcome of classifying one turn.
type Decision struct {
	Workflow models.Workflow

	// RepoURL is set when Workflow is WorkflowRepoAnalysis.
	RepoURL string

	// RepoSummary carries prior analysis into config generation, when present.
	RepoSummary *models.RepoSummary

	// Corrective is a canned fragment emitted instead of invoking a
	// workflow whose precondition is unmet.
	Corrective string
}

// Rule is one predicate in the routing table. Evaluate returns the
// decision and true when the rule matches.
type Rule struct {
	Name     string
	Evaluate func(text string, state session.State) (Decision, bool)
}

// repoURLPattern matches repository URLs with scheme, host, and
// owner/name path segments.
var repoURLPattern = regexp.MustCompile(`https?://(?:www\.)?github\.com/[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+`)

// Keyword sets. Matching is case-insensitive on word boundaries;
// multi-word phrases match as substrings.
var (
	infraKeywords = []string{
		"terraform", "infrastructure", "ecs", "rds", "alb",
		"load balancer", "generate infra", "ec2", "s3", "vpc",
	}
	deployKeywords = []string{
		"deploy", "deployment", "validate", "rollout",
	}
)

// NoConfigFragment is the corrective reply for deployment intent without
// a generated config.
const NoConfigFragment = "There is no generated infrastructure config for this conversation yet. " +
	"Ask me to generate one first, for example: \"generate infra with an ALB and RDS\". " +
	"Once generation completes I can validate the deployment."

// Rules is the routing table, evaluated in order; the first match wins.
// Order is load-bearing: a repository URL beats any co-occurring keyword.
var Rules = []Rule{
	{
		Name: "repository-url",
		Evaluate: func(text string, _ session.State) (Decision, bool) {
			url := repoURLPattern.FindString(text)
			if url == "" {
				return Decision{}, false
			}
			return Decision{
				Workflow: models.WorkflowRepoAnalysis,
				RepoURL:  strings.TrimSuffix(url, ".git"),
			}, true
		},
	},
	{
		Name: "infrastructure-generation",
		Evaluate: func(text string, state session.State) (Decision, bool) {
			if !matchesAny(text, infraKeywords) {
				return Decision{}, false
			}
			return Decision{
				Workflow:    models.WorkflowConfigGeneration,
				RepoSummary: state.RepoSummary,
			}, true
		},
	},
	{
		Name: "deployment-validation",
		Evaluate: func(text string, state session.State) (Decision, bool) {
			if !matchesAny(text, deployKeywords) {
				return Decision{}, false
			}
			if state.ConfigRef == "" {
				return Decision{
					Workflow:   models.WorkflowChat,
					Corrective: NoConfigFragment,
				}, true
			}
			return Decision{Workflow: models.WorkflowDeployValidation}, true
		},
	},
	{
		Name: "chat-fallback",
		Evaluate: func(string, session.State) (Decision, bool) {
			return Decision{Workflow: models.WorkflowChat}, true
		},
	},
}

// Classify routes a turn to a workflow. It always yields a decision; the
// final rule is an unconditional chat fallback.
func Classify(text string, state session.State) Decision {
	for _, rule := range Rules {
		if decision, ok := rule.Evaluate(text, state); ok {
			return decision
		}
	}
	// Unreachable while the fallback rule is last.
	return Decision{Workflow: models.WorkflowChat}
}

var keywordPatterns = buildKeywordPatterns()

func buildKeywordPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp)
	for _, kw := range append(append([]string{}, infraKeywords...), deployKeywords...) {
		if strings.Contains(kw, " ") {
			continue // phrases match as plain substrings
		}
		patterns[kw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return patterns
}

func matchesAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if p, ok := keywordPatterns[kw]; ok {
			if p.MatchString(lower) {
				return true
			}
		} else if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
