package llm

import (
	"context"
	"fmt"
)

// Provider names accepted by Open.
const (
	ProviderOpenAI   = "openai"
	ProviderAzure    = "azure"
	ProviderGemini   = "gemini"
	ProviderBedrock  = "bedrock"
	ProviderScripted = "scripted"
)

// ProviderConfig selects and configures a model provider.
type ProviderConfig struct {
	Provider string
	Model    string

	OpenAIKey string
	Azure     AzureConfig
	GeminiKey string
	Bedrock   BedrockConfig
}

// Open builds the LLM named by cfg.Provider. An empty provider returns
// ErrNoProvider. The scripted provider answers every request with a Final
// Answer explaining that no model is configured.
func Open(ctx context.Context, cfg ProviderConfig) (LLM, error) {
	switch cfg.Provider {
	case "":
		return nil, ErrNoProvider
	case ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai: api key required: %w", ErrNoProvider)
		}
		return NewOpenAILLM(cfg.OpenAIKey, cfg.Model), nil
	case ProviderAzure:
		azure := cfg.Azure
		if azure.Deployment == "" {
			azure.Deployment = cfg.Model
		}
		return NewAzureOpenAILLM(azure)
	case ProviderGemini:
		return NewGeminiLLM(ctx, cfg.GeminiKey, cfg.Model)
	case ProviderBedrock:
		bedrock := cfg.Bedrock
		if bedrock.ModelID == "" {
			bedrock.ModelID = cfg.Model
		}
		return NewBedrockLLM(ctx, bedrock)
	case ProviderScripted:
		s := &ScriptedLLM{}
		s.Respond = offlineReply
		return s, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
