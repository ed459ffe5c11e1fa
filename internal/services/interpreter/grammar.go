package interpreter

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benvon/voice-todo/internal/services/ai"
)

//go:embed grammar.yaml
var grammarYAML []byte

// Example is one few-shot pair shown to the model.
type Example struct {
	Utterance string `yaml:"utterance"`
	Result    string `yaml:"result"`
}

// Grammar is the versioned instruction set that maps utterances to intents.
type Grammar struct {
	Version      int             `yaml:"version"`
	Locale       string          `yaml:"locale"`
	System       string          `yaml:"system"`
	Instructions string          `yaml:"instructions"`
	Examples     []Example       `yaml:"examples"`
	Schema       ai.OutputSchema `yaml:"schema"`
}

// DefaultGrammar parses the embedded grammar.
func DefaultGrammar() (*Grammar, error) {
	return ParseGrammar(grammarYAML)
}

// ParseGrammar decodes and checks a grammar document.
func ParseGrammar(data []byte) (*Grammar, error) {
	var g Grammar
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse grammar: %w", err)
	}
	if g.Version <= 0 {
		return nil, fmt.Errorf("grammar version must be positive")
	}
	if len(g.Schema.Properties) == 0 {
		return nil, fmt.Errorf("grammar schema has no properties")
	}
	for i, ex := range g.Examples {
		if !json.Valid([]byte(strings.ReplaceAll(ex.Result, "{{today}}", "2000-01-01"))) {
			return nil, fmt.Errorf("grammar example %d has invalid JSON result", i)
		}
	}
	return &g, nil
}

// BuildPrompt renders the single prompt sent for utterance at now.
func (g *Grammar) BuildPrompt(utterance string, now time.Time) string {
	today := now.Format("2006-01-02")

	var b strings.Builder
	b.WriteString(g.Instructions)
	b.WriteString("\n\nContexto temporal:\n")
	fmt.Fprintf(&b, "- Fecha y hora actual: %s\n", now.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, "- Zona horaria: %s\n", now.Format("MST -07:00"))

	b.WriteString("\nCampos de la respuesta, en este orden: ")
	b.WriteString(strings.Join(g.Schema.PropertyNames(), ", "))
	b.WriteString("\n\nComandos y ejemplos posibles:\n")
	for _, ex := range g.Examples {
		fmt.Fprintf(&b, "- %q: %s\n", ex.Utterance, strings.ReplaceAll(ex.Result, "{{today}}", today))
	}

	fmt.Fprintf(&b, "\nComando del usuario: %q\n", utterance)
	return b.String()
}
