package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const providerLangChain = "langchain"

// LangChainGenerator talks to any OpenAI-compatible endpoint (DeepSeek,
// OpenRouter, local gateways) through langchaingo in JSON object mode.
type LangChainGenerator struct {
	model     llms.Model
	modelName string
	logger    *zap.Logger
	debugMode bool
}

// NewLangChainGenerator builds a JSON-mode chat model for the given endpoint.
func NewLangChainGenerator(apiKey, baseURL, model string, logger *zap.Logger, debugMode bool) (*LangChainGenerator, error) {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []lcopenai.Option{
		lcopenai.WithToken(apiKey),
		lcopenai.WithModel(model),
		lcopenai.WithResponseFormat(&lcopenai.ResponseFormat{Type: "json_object"}),
		lcopenai.WithHTTPClient(&http.Client{Timeout: DefaultTimeout}),
	}
	if baseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(baseURL))
	}

	llm, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain client: %w", err)
	}

	return &LangChainGenerator{
		model:     llm,
		modelName: model,
		logger:    logger,
		debugMode: debugMode,
	}, nil
}

// Name implements Generator
func (g *LangChainGenerator) Name() string { return providerLangChain }

// Generate implements Generator. JSON object mode is used; the schema must
// already be described in the prompt.
func (g *LangChainGenerator) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	if g.debugMode {
		g.logger.Debug("llm_api_request",
			zap.String("provider", providerLangChain),
			zap.String("operation", req.Operation),
			zap.String("model", g.modelName),
			zap.Int("prompt_length", len(req.Prompt)),
			zap.String("prompt_preview", SanitizePrompt(req.Prompt, true)),
		)
	}

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, messages, llms.WithTemperature(0))
	latency := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		g.logger.Debug("llm_api_error",
			zap.String("provider", providerLangChain),
			zap.String("operation", req.Operation),
			zap.Error(err),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
		return "", &TransportError{Provider: providerLangChain, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &TransportError{Provider: providerLangChain, Err: ErrEmptyResponse}
	}
	content := resp.Choices[0].Content

	if g.debugMode {
		g.logger.Debug("llm_api_response",
			zap.String("provider", providerLangChain),
			zap.String("operation", req.Operation),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return content, nil
}

// RegisterLangChain registers the langchaingo provider with the registry
func RegisterLangChain(registry *ProviderRegistry) {
	registry.Register(providerLangChain, func(config map[string]string, logger *zap.Logger) (Generator, error) {
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, fmt.Errorf("langchain api_key is required")
		}
		return NewLangChainGenerator(apiKey, config["base_url"], config["model"], logger, config["debug"] == "true")
	})
}
