package workflow

import (
	"context"
	"fmt"
	"os"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

const validationSystemPrompt = `You are a DevOps engineer pre-flighting a Terraform deployment.
Review the provided configuration and report:
- resources that will be created and their dependencies
- required variables that still need values
- likely apply-time failures (missing IAM, unavailable AZs, naming clashes)
- a go / no-go recommendation
Be concise and structured.`

// DeployValidation reviews a previously generated config before deployment.
// It requires a non-empty config reference; the classifier redirects to
// chat before this provider is ever invoked without one.
type DeployValidation struct {
	Model     Generator
	MaxTokens int
}

func (d *DeployValidation) Name() models.Workflow { return models.WorkflowDeployValidation }

func (d *DeployValidation) Respond(ctx context.Context, req Request, emit func(string) error) (*Outcome, error) {
	if req.ConfigRef == "" {
		return nil, fmt.Errorf("deployment validation requires a generated config reference")
	}

	if err := emit(fmt.Sprintf("Validating deployment against `%s`...\n\n", req.ConfigRef)); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(req.ConfigRef)
	if err != nil {
		return nil, fmt.Errorf("read generated config %s: %w", req.ConfigRef, err)
	}

	userPrompt := fmt.Sprintf("User request: %s\n\nGenerated configuration:\n%s", req.Text, content)
	if _, err := d.Model.Stream(ctx, validationSystemPrompt, userPrompt, d.MaxTokens, emit); err != nil {
		return nil, fmt.Errorf("validate deployment: %w", err)
	}
	return &Outcome{}, nil
}
