package factory

import (
	"ai-elearning-be/pkg/llm"
	"ai-elearning-be/pkg/llm/ollama"
	"ai-elearning-be/pkg/llm/openrouter"
	"fmt"
)

func NewLLMProvider(providerType, modelName, baseURL, apiKey string) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "openrouter":
		if apiKey == "" {
			return nil, fmt.Errorf("openrouter requires an API key")
		}
		return openrouter.NewOpenRouterProvider(apiKey, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
