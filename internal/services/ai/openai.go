package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds a single API call
	DefaultTimeout = 30 * time.Second

	providerOpenAI = "openai"
)

// OpenAIGenerator implements Generator with the OpenAI chat completions API
type OpenAIGenerator struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIGenerator creates an OpenAI-backed Generator. The SDK's own retries
// are disabled; callers decide whether to retry.
func NewOpenAIGenerator(apiKey, baseURL, model string, logger *zap.Logger, debugMode bool) *OpenAIGenerator {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: DefaultTimeout}),
		option.WithMaxRetries(0),
	)

	return &OpenAIGenerator{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// Name implements Generator
func (g *OpenAIGenerator) Name() string { return providerOpenAI }

func (g *OpenAIGenerator) responseFormat(schema *OutputSchema) openai.ChatCompletionNewParamsResponseFormatUnion {
	if schema == nil {
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name: schema.Name,
				// properties are optional per action, so strict mode is off
				Schema: schema.JSON(),
				Strict: openai.Bool(false),
			},
		},
	}
}

// Generate sends one chat completion and returns the first choice's content
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:          shared.ChatModel(g.model),
		Messages:       messages,
		Temperature:    openai.Float(0),
		ResponseFormat: g.responseFormat(req.Schema),
	}

	if g.debugMode {
		g.logger.Debug("llm_api_request",
			zap.String("provider", providerOpenAI),
			zap.String("operation", req.Operation),
			zap.String("model", g.model),
			zap.Int("prompt_length", len(req.Prompt)),
			zap.String("prompt_preview", SanitizePrompt(req.Prompt, true)),
		)
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		classified := classifyOpenAIError(providerOpenAI, err)
		g.logger.Debug("llm_api_error",
			zap.String("provider", providerOpenAI),
			zap.String("operation", req.Operation),
			zap.String("model", g.model),
			zap.Error(classified),
			zap.Bool("permanent", IsPermanent(classified)),
			zap.Bool("rate_limited", IsRateLimitError(classified)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
		return "", classified
	}

	if len(resp.Choices) == 0 {
		return "", &TransportError{Provider: providerOpenAI, Err: ErrEmptyResponse}
	}
	content := resp.Choices[0].Message.Content

	if g.debugMode {
		g.logger.Debug("llm_api_response",
			zap.String("provider", providerOpenAI),
			zap.String("operation", req.Operation),
			zap.String("model", g.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return content, nil
}

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry) {
	registry.Register(providerOpenAI, func(config map[string]string, logger *zap.Logger) (Generator, error) {
		apiKey, ok := config["api_key"]
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("openai api_key is required")
		}
		return NewOpenAIGenerator(apiKey, config["base_url"], config["model"], logger, config["debug"] == "true"), nil
	})
}
