package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Wizard provides an interactive first-run configuration flow.
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run prompts for the essentials and returns a validated config.
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Engram Setup ===")
	fmt.Println()

	cfg := DefaultConfig()

	fmt.Println("Embedding provider (semantic retrieval; leave empty for keyword-only):")
	fmt.Println("  openai - OpenAI embeddings API")
	fmt.Println("  ollama - local Ollama instance")
	fmt.Print("Provider []: ")
	provider, err := w.readLine()
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(provider) {
	case "openai":
		cfg.Embedding.Provider = "openai"
		for {
			fmt.Print("OpenAI API Key (press Enter to use OPENAI_API_KEY): ")
			key, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if key == "" {
				if os.Getenv("OPENAI_API_KEY") == "" {
					fmt.Println("Error: no key entered and OPENAI_API_KEY is unset")
					continue
				}
				break
			}
			if !strings.HasPrefix(key, "sk-") {
				fmt.Println("Error: OpenAI API keys start with sk-")
				continue
			}
			cfg.Embedding.APIKey = key
			break
		}
	case "ollama":
		cfg.Embedding.Provider = "ollama"
		fmt.Print("Ollama URL [http://localhost:11434]: ")
		url, err := w.readLine()
		if err != nil {
			return nil, err
		}
		cfg.Embedding.BaseURL = url
		fmt.Print("Embedding model [nomic-embed-text]: ")
		model, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if model == "" {
			model = "nomic-embed-text"
		}
		cfg.Embedding.Model = model
	case "":
		// keyword-only mode
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", provider)
	}

	fmt.Println()
	fmt.Print("Use Claude for session summaries? (y/n) [n]: ")
	useClaude, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if strings.ToLower(useClaude) == "y" {
		cfg.Summarizer.Provider = "anthropic"
		fmt.Print("Anthropic API Key (press Enter to use ANTHROPIC_API_KEY): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}
		cfg.Summarizer.APIKey = key
	}

	fmt.Println()
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Logging.Level = level
	}

	// Credentials may come from the environment, so validate with them
	// applied the way Load does.
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Summarizer.Provider == "anthropic" && cfg.Summarizer.APIKey == "" {
		cfg.Summarizer.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
