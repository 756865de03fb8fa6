package llm

import (
	"fmt"
	"os"
)

// Factory creates clients for whichever provider is configured.
// Gemini is preferred; OpenAI is the fallback.
type Factory struct {
	geminiKey string
	openAIKey string
	model     string
}

// NewFactory creates a factory from the environment. The model may be
// overridden with FORMISTIQ_LLM_MODEL; otherwise each client uses its
// provider default.
func NewFactory() *Factory {
	return &Factory{
		geminiKey: os.Getenv("GEMINI_API_KEY"),
		openAIKey: os.Getenv("OPENAI_API_KEY"),
		model:     os.Getenv("FORMISTIQ_LLM_MODEL"),
	}
}

// Available returns true if at least one provider is configured.
func (f *Factory) Available() bool {
	return f.geminiKey != "" || f.openAIKey != ""
}

// DefaultProvider returns the provider that CreateDefaultClient will use.
func (f *Factory) DefaultProvider() Provider {
	if f.geminiKey != "" {
		return ProviderGoogle
	}
	return ProviderOpenAI
}

// CreateDefaultClient creates a client for the preferred configured provider.
func (f *Factory) CreateDefaultClient() (Client, error) {
	switch {
	case f.geminiKey != "":
		return NewGeminiClient(f.geminiKey, f.model), nil
	case f.openAIKey != "":
		return NewOpenAIClient(f.openAIKey, f.model), nil
	default:
		return nil, fmt.Errorf("no LLM API keys configured")
	}
}
