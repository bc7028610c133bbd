package orchestrator

import (
	"github.com/ComputerAces/Genesis-AI-Agent/internal/config"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/provider"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/provider/anthropic"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/provider/openai"
)

// ProviderFactory builds a provider.Provider for cfg using apiKey, called
// once to resolve a model id and again whenever a credential arrives after
// a request_key wait (spec §4.1 steps 1-2). Returning nil signals an
// unrecognized provider name.
type ProviderFactory func(cfg config.ProviderConfig, apiKey string) provider.Provider

// DefaultProviderFactory dispatches to the two backends this module wires
// up; additional providers are added here as they're implemented.
func DefaultProviderFactory(cfg config.ProviderConfig, apiKey string) provider.Provider {
	switch cfg.Name {
	case "anthropic":
		return anthropic.New(anthropic.Config{APIKey: apiKey, BaseURL: cfg.BaseURL, DefaultModel: cfg.Model})
	case "openai":
		return openai.New(openai.Config{APIKey: apiKey, BaseURL: cfg.BaseURL, DefaultModel: cfg.Model})
	default:
		return nil
	}
}

// UserPreferences resolves which provider a user prefers, letting the
// default system provider be overridden per spec §4.1 step 1 ("the user's
// preferred model, else the system default").
type UserPreferences interface {
	PreferredProvider(userID string) (string, bool)
}

// NoPreferences always defers to config.Config.DefaultProvider.
type NoPreferences struct{}

// PreferredProvider implements UserPreferences.
func (NoPreferences) PreferredProvider(string) (string, bool) { return "", false }
