package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/engramkit/engram/internal/config"
	"github.com/engramkit/engram/internal/logger"
	"github.com/engramkit/engram/internal/observability"
	"github.com/engramkit/engram/pkg/memory"
)

// runtime bundles everything a command needs after setup.
type runtime struct {
	cfg    *config.Config
	log    *logger.Logger
	memory *memory.Service
}

func (r *runtime) close() {
	if r.memory != nil {
		if err := r.memory.Close(); err != nil {
			zl := r.log.GetZerolog()
			zl.Error().Err(err).Msg("Failed to close memory store")
		}
	}
	if r.log != nil {
		r.log.Close()
	}
}

// setup loads config, wires logging and the audit trail, and opens the
// memory store. Every data-touching command goes through here.
func setup() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logCfg := logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   false,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}

	lg, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}

	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.jsonl")); err != nil {
		zl := lg.GetZerolog()
		zl.Warn().Err(err).Msg("Audit log unavailable, events go to stderr")
	}

	svc, err := openMemory(cfg, lg.GetZerolog())
	if err != nil {
		lg.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, log: lg, memory: svc}, nil
}

func openMemory(cfg *config.Config, log zerolog.Logger) (*memory.Service, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	return memory.Open(memory.Options{
		DataDir:       cfg.DataDir,
		Provider:      provider,
		Summarizer:    newSummarizer(cfg, log),
		Policy:        policyFromConfig(cfg),
		Logger:        log,
		SweepInterval: cfg.Memory.SweepInterval(),
	})
}

func newProvider(cfg *config.Config) (memory.EmbeddingProvider, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return memory.NewOpenAIProvider(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimension), nil
	case "ollama":
		return memory.NewOllamaProvider(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}

func newSummarizer(cfg *config.Config, log zerolog.Logger) memory.Summarizer {
	if cfg.Summarizer.Provider == "anthropic" {
		return memory.NewAnthropicSummarizer(cfg.Summarizer.APIKey, cfg.Summarizer.Model, log)
	}
	return memory.NewRuleSummarizer()
}

func policyFromConfig(cfg *config.Config) memory.Policy {
	p := memory.DefaultPolicy()
	m := cfg.Memory
	if m.GeneralFloor > 0 {
		p.GeneralFloor = m.GeneralFloor
	}
	if m.RecallFloor > 0 {
		p.RecallFloor = m.RecallFloor
	}
	if m.ForgetFloor > 0 {
		p.ForgetFloor = m.ForgetFloor
	}
	if m.InjectLimit > 0 {
		p.InjectLimit = m.InjectLimit
	}
	if m.RecallLimit > 0 {
		p.RecallLimit = m.RecallLimit
	}
	if m.MaxFacts > 0 {
		p.MaxFacts = m.MaxFacts
	}
	if m.RetentionDays > 0 {
		p.Retention = m.Retention()
	}
	if cfg.Embedding.TimeoutMs > 0 {
		p.EmbedTimeout = time.Duration(cfg.Embedding.TimeoutMs) * time.Millisecond
	}
	return p
}
