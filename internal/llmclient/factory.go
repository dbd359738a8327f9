// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/internal/config"
)

// NewClient constructs the LLMClient designated by agent.llm.defaultModel.
func NewClient(cfg config.AgentConfig, logger *zap.Logger) (LLMClient, error) {
	if len(cfg.LLM.Models) == 0 {
		return nil, fmt.Errorf("no LLM models configured under agent.llm.models")
	}

	name := cfg.LLM.DefaultModel
	modelCfg, ok := cfg.LLM.Models[name]
	if !ok {
		return nil, fmt.Errorf("default model %q not found in agent.llm.models", name)
	}

	switch modelCfg.Provider {
	case config.ProviderGemini:
		client, err := NewGeminiClient(modelCfg, cfg.LLM.RateLimitRPS, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client for model %q: %w", name, err)
		}
		logger.Info("Instantiated LLM client",
			zap.String("name", name),
			zap.String("provider", string(modelCfg.Provider)),
			zap.String("model", modelCfg.Model))
		return client, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q for model %q", modelCfg.Provider, name)
	}
}
