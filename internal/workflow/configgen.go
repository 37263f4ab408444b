package workflow

import (
	"context"
	"fmt"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

// JobStarter launches detached config-generation work.
type JobStarter interface {
	StartGeneration(ctx context.Context, conversationID, principalID, text string, summary *models.RepoSummary) (jobID string, err error)
}

// ConfigGeneration acknowledges immediately and hands the real work to the
// detached job runner. The synchronous stream is exactly the
// acknowledgement, the job id and an estimated-duration notice; the result
// arrives later as an out-of-band transcript write.
type ConfigGeneration struct {
	Jobs JobStarter
}

func (c *ConfigGeneration) Name() models.Workflow { return models.WorkflowConfigGeneration }

func (c *ConfigGeneration) Respond(ctx context.Context, req Request, emit func(string) error) (*Outcome, error) {
	jobID, err := c.Jobs.StartGeneration(ctx, req.ConversationID, req.PrincipalID, req.Text, req.RepoSummary)
	if err != nil {
		return nil, fmt.Errorf("start generation job: %w", err)
	}

	fragments := []string{
		"Generating infrastructure configuration...\n\n",
		fmt.Sprintf("Job ID: `%s`\n\n", jobID),
		"This will take 2-3 minutes.\n",
		"You can continue chatting. I'll post the result here when it's ready.\n",
	}
	for _, f := range fragments {
		if err := emit(f); err != nil {
			return nil, err
		}
	}

	return &Outcome{JobID: jobID}, nil
}
