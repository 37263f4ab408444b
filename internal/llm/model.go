// Package llm wraps langchaingo text-generation backends.
package llm

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/config"
	"github.com/Sudharshan06-dev/devops-orchestra/internal/metrics"
)

// Model wraps a langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
	metrics   *metrics.Collector
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config, mc *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awscfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awscfg)
		model, err = bedrock.New(
			bedrock.WithClient(client),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
		metrics:   mc,
	}, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// Generate produces a full response for a system/user prompt pair.
// maxTokens <= 0 means no output cap.
func (m *Model) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	done := m.metrics.Start(metrics.OpLLMGenerate)
	defer done()

	response, err := m.llm.GenerateContent(ctx, promptMessages(systemPrompt, userPrompt), generateOptions(maxTokens)...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return response.Choices[0].Content, nil
}

// Stream produces a response incrementally, calling emit for each chunk as
// the backend yields it, and returns the full accumulated text.
// maxTokens <= 0 means no output cap.
func (m *Model) Stream(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, emit func(string) error) (string, error) {
	done := m.metrics.Start(metrics.OpLLMStream)
	defer done()

	var full string
	opts := append(generateOptions(maxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			full += string(chunk)
			return emit(string(chunk))
		}),
	)

	response, err := m.llm.GenerateContent(ctx, promptMessages(systemPrompt, userPrompt), opts...)
	if err != nil {
		return full, fmt.Errorf("stream: %w", err)
	}

	// Backends without streaming support return everything at once.
	if full == "" && len(response.Choices) > 0 {
		full = response.Choices[0].Content
		if err := emit(full); err != nil {
			return full, err
		}
	}
	return full, nil
}

func promptMessages(systemPrompt, userPrompt string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
}

func generateOptions(maxTokens int) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithTemperature(0.2),
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	return opts
}
