package ai

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Generator is a language service that turns a prompt into model text.
// Implementations must be safe to call again after a failure.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Name identifies the provider in logs.
	Name() string
}

// Request is one completion call.
type Request struct {
	System string
	Prompt string
	// Schema, when set, constrains the output to a JSON object of this shape.
	Schema *OutputSchema
	// Operation labels the call in debug logs.
	Operation string
}

// Property is one field of an OutputSchema.
type Property struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description,omitempty"`
	Enum        []string `yaml:"enum,omitempty"`
	// Items is the element type when Type is "array".
	Items string `yaml:"items,omitempty"`
}

// OutputSchema is a JSON object schema whose properties keep their declared order.
type OutputSchema struct {
	Name       string     `yaml:"name"`
	Properties []Property `yaml:"properties"`
	Required   []string   `yaml:"required"`
}

// JSON renders the schema as JSON Schema text with properties in declared order.
func (s *OutputSchema) JSON() json.RawMessage {
	var b strings.Builder
	b.WriteString(`{"type":"object","properties":{`)
	for i, p := range s.Properties {
		if i > 0 {
			b.WriteByte(',')
		}
		name, _ := json.Marshal(p.Name)
		b.Write(name)
		b.WriteByte(':')
		b.Write(p.schema())
	}
	b.WriteString(`}`)
	if len(s.Required) > 0 {
		req, _ := json.Marshal(s.Required)
		b.WriteString(`,"required":`)
		b.Write(req)
	}
	b.WriteString(`}`)
	return json.RawMessage(b.String())
}

func (p Property) schema() []byte {
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = p.Enum
	}
	if p.Type == "array" {
		items := p.Items
		if items == "" {
			items = "string"
		}
		m["items"] = map[string]any{"type": items}
	}
	out, _ := json.Marshal(m)
	return out
}

// PropertyNames lists the schema's property names in order.
func (s *OutputSchema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		names = append(names, p.Name)
	}
	return names
}

// ProviderFactory creates a Generator from provider-specific settings
type ProviderFactory func(config map[string]string, logger *zap.Logger) (Generator, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a registry with every built-in provider registered.
func NewProviderRegistry() *ProviderRegistry {
	r := &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
	RegisterOpenAI(r)
	RegisterLangChain(r)
	return r
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// Names returns the registered provider names, sorted.
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProvider builds the named provider
func (r *ProviderRegistry) GetProvider(name string, config map[string]string, logger *zap.Logger) (Generator, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	gen, err := factory(config, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("ai_provider_created",
		zap.String("provider", name),
		zap.String("model", config["model"]),
		zap.String("api_key", SanitizeAPIKey(config["api_key"])),
	)
	return gen, nil
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
