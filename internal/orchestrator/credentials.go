package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/config"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/provider"
)

// resolveProviderConfig picks the provider a turn should use: the user's
// preference if one is set and configured, else the system default (spec
// §4.1 step 1).
func (o *Orchestrator) resolveProviderConfig(userID string) (string, config.ProviderConfig, bool) {
	name := o.cfg.DefaultProvider
	if preferred, ok := o.preferences.PreferredProvider(userID); ok && preferred != "" {
		if _, exists := o.cfg.Provider(preferred); exists {
			name = preferred
		}
	}
	cfg, ok := o.cfg.Provider(name)
	return name, cfg, ok
}

// providerFor returns the cached provider instance for (name, model),
// building one if absent using whatever credential currently resolves.
func (o *Orchestrator) providerFor(name string, cfg config.ProviderConfig) provider.Provider {
	key := name + ":" + cfg.Model
	o.providersMu.Lock()
	defer o.providersMu.Unlock()
	if p, ok := o.providers[key]; ok {
		return p
	}
	apiKey, _ := o.credentials.Resolve(name)
	p := o.providerFactory(cfg, apiKey)
	o.providers[key] = p
	return p
}

// reconfigureProvider replaces the cached provider instance once a
// credential arrives (spec §4.1 step 2: "on arrival, reconfigure the
// provider and continue").
func (o *Orchestrator) reconfigureProvider(name string, cfg config.ProviderConfig, apiKey string) provider.Provider {
	key := name + ":" + cfg.Model
	p := o.providerFactory(cfg, apiKey)
	o.providersMu.Lock()
	o.providers[key] = p
	o.providersMu.Unlock()
	return p
}

// generateWithCredentialRetry implements spec §4.1 step 2: if Generate
// reports a missing credential, yield request_key and poll the credential
// source at 1 Hz until it arrives or CredentialPollTimeout elapses.
func (o *Orchestrator) generateWithCredentialRetry(
	ctx context.Context,
	providerName string,
	providerCfg config.ProviderConfig,
	req provider.Request,
	events chan<- TurnEvent,
) (<-chan provider.Event, bool) {
	prov := o.providerFor(providerName, providerCfg)
	if prov == nil {
		events <- TurnEvent{Kind: EventError, Err: fmt.Errorf("unrecognized provider %q", providerName)}
		return nil, false
	}

	stream, err := prov.Generate(ctx, req)
	var missing *provider.MissingCredentialError
	if err == nil {
		return stream, true
	}
	if !errors.As(err, &missing) {
		events <- TurnEvent{Kind: EventError, Err: err}
		return nil, false
	}

	events <- TurnEvent{Kind: EventRequestKey, Provider: providerName, Message: "waiting for API credential"}

	timeout := o.cfg.CredentialPollTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			events <- TurnEvent{Kind: EventError, Err: ctx.Err()}
			return nil, false
		case <-ticker.C:
			if key, ok := o.credentials.Resolve(providerName); ok {
				prov = o.reconfigureProvider(providerName, providerCfg, key)
				stream, err = prov.Generate(ctx, req)
				if err == nil {
					return stream, true
				}
				if !errors.As(err, &missing) {
					events <- TurnEvent{Kind: EventError, Err: err}
					return nil, false
				}
			}
			if time.Now().After(deadline) {
				events <- TurnEvent{Kind: EventError, Err: fmt.Errorf("timed out waiting for %s credential", providerName)}
				return nil, false
			}
		}
	}
}
