package provider

import (
	"os"
	"strings"
)

// CredentialSource resolves a provider API key, consulted when a provider
// instance is first built (spec §4.1 step 1) and polled at 1 Hz while a MissingCredentialError
// is outstanding (spec §4.1 step 2).
type CredentialSource interface {
	Resolve(provider string) (string, bool)
}

// FileCredentialSource reads a credential from the per-user secret file
// written by the CLI's /pass command (spec §12 supplemented feature),
// falling back to an environment variable for system-scoped defaults.
type FileCredentialSource struct {
	// Path returns the secret file path for a given provider name.
	Path func(provider string) string
	// EnvVar returns the environment variable name to fall back to.
	EnvVar func(provider string) string
}

// Resolve implements CredentialSource.
func (f FileCredentialSource) Resolve(provider string) (string, bool) {
	if f.Path != nil {
		if raw, err := os.ReadFile(f.Path(provider)); err == nil {
			key := strings.TrimSpace(string(raw))
			if key != "" {
				return key, true
			}
		}
	}
	if f.EnvVar != nil {
		if key := strings.TrimSpace(os.Getenv(f.EnvVar(provider))); key != "" {
			return key, true
		}
	}
	return "", false
}
