package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema constrains values the struct types alone cannot: enum fields,
// threshold ranges, and counts that must be positive.
const configSchema = `{
	"type": "object",
	"properties": {
		"embedding": {
			"type": "object",
			"properties": {
				"provider": {"enum": ["", "openai", "ollama"]},
				"dimension": {"type": "integer", "minimum": 0},
				"timeout_ms": {"type": "integer", "minimum": 0}
			}
		},
		"summarizer": {
			"type": "object",
			"properties": {
				"provider": {"enum": ["", "anthropic"]}
			}
		},
		"memory": {
			"type": "object",
			"properties": {
				"general_floor": {"type": "number", "minimum": 0, "maximum": 1},
				"recall_floor": {"type": "number", "minimum": 0, "maximum": 1},
				"forget_floor": {"type": "number", "minimum": 0, "maximum": 1},
				"inject_limit": {"type": "integer", "minimum": 0},
				"recall_limit": {"type": "integer", "minimum": 0},
				"max_facts": {"type": "integer", "minimum": 0},
				"retention_days": {"type": "integer", "minimum": 0},
				"sweep_interval_minutes": {"type": "integer", "minimum": 0}
			}
		},
		"logging": {
			"type": "object",
			"properties": {
				"level": {"enum": ["", "trace", "debug", "info", "warn", "error"]},
				"max_size": {"type": "integer", "minimum": 0},
				"max_age": {"type": "integer", "minimum": 0}
			}
		},
		"metrics": {
			"type": "object",
			"properties": {
				"addr": {"type": "string"}
			}
		}
	}
}`

// Validate checks a config against the schema plus the cross-field rules the
// schema cannot express.
func Validate(cfg *Config) error {
	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	docLoader := gojsonschema.NewGoLoader(cfg)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}

	if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey == "" {
		return fmt.Errorf("invalid config: embedding.api_key is required for the openai provider (or set OPENAI_API_KEY)")
	}
	if cfg.Summarizer.Provider == "anthropic" && cfg.Summarizer.APIKey == "" {
		return fmt.Errorf("invalid config: summarizer.api_key is required for the anthropic provider (or set ANTHROPIC_API_KEY)")
	}

	return nil
}
