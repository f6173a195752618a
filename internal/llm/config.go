// Package llm wraps the language model used to read founder details out of
// company pages when the pattern extractor comes up short.
package llm

import "time"

// ModelTier names a model slot. Founder extraction runs on the lite tier.
type ModelTier string

const (
	// TierLite is for extraction from a single page
	TierLite ModelTier = "lite"
	// TierStandard is the fallback when no lite model is configured
	TierStandard ModelTier = "standard"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// DefaultTimeout bounds one model call.
const DefaultTimeout = 30 * time.Second

// Config selects the provider, the model per tier and the call timeout.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
	Timeout  time.Duration
}

// DefaultConfig returns the Gemini configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
		},
		Timeout: DefaultTimeout,
	}
}

// GetModel returns the model for tier, falling back to the standard model.
func (c *Config) GetModel(tier ModelTier) string {
	for _, t := range []ModelTier{tier, TierStandard, TierLite} {
		if model := c.Models[t]; model != "" {
			return model
		}
	}
	return ""
}

// WithModel returns a copy of c using model for tier. An empty model leaves
// the tier unchanged.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	out := &Config{Provider: c.Provider, Timeout: c.Timeout, Models: make(map[ModelTier]string, len(c.Models)+1)}
	for k, v := range c.Models {
		out.Models[k] = v
	}
	if model != "" {
		out.Models[tier] = model
	}
	return out
}
