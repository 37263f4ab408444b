package workflow

import (
	"context"
	"strings"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/models"
)

// chatSystemPrompt keeps interactive replies short and technical.
const chatSystemPrompt = `You are Aivina, an intelligent DevOps assistant.
Your rules:
- Always respond in under 200 words.
- Use bullet points or numbered lists when comparing options.
- Be concise, actionable, and avoid fluff.
- Do not explain yourself, just provide precise answers.
- No greetings, disclaimers, or repetition of the input.
- Do not apologize or say 'as an AI'.
- Assume the user is technical and expects clarity.`

// askForRepoURL is the canned reply when the user wants a deployment but
// has not supplied a repository.
const askForRepoURL = "To help you deploy your application, please provide the GitHub repository URL of your code.\n"

// Generator is the capability backend chat-style providers stream from.
type Generator interface {
	Stream(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, emit func(string) error) (string, error)
	Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Chat answers general DevOps questions with a length-capped streamed reply.
type Chat struct {
	Model     Generator
	MaxTokens int
}

func (c *Chat) Name() models.Workflow { return models.WorkflowChat }

func (c *Chat) Respond(ctx context.Context, req Request, emit func(string) error) (*Outcome, error) {
	// Precondition redirects replace the model reply entirely.
	if req.Corrective != "" {
		if err := emit(req.Corrective); err != nil {
			return nil, err
		}
		return &Outcome{}, nil
	}

	lower := strings.ToLower(req.Text)
	if strings.Contains(lower, "deploy") && !strings.Contains(lower, "github.com") {
		if err := emit(askForRepoURL); err != nil {
			return nil, err
		}
		return &Outcome{}, nil
	}

	if _, err := c.Model.Stream(ctx, chatSystemPrompt, req.Text, c.MaxTokens, emit); err != nil {
		return nil, err
	}
	return &Outcome{}, nil
}
