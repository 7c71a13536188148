package orchestrator

import (
	"os"

	"github.com/hupe1980/agentgate/core"
)

// Environment keys overridden when a run injects its own credentials. Both
// provider SDKs read these at client construction time.
const (
	envAPIKey  = "ANTHROPIC_API_KEY"
	envBaseURL = "ANTHROPIC_BASE_URL"
)

// applyCredentialOverride scopes the policy's provider credentials to one
// run. The returned restore function reinstates the previous process
// environment and must run on every exit path, including error and cancel.
func applyCredentialOverride(policy core.PolicySettings) (restore func()) {
	if policy.APIKey == "" && policy.BaseURL == "" {
		return func() {}
	}

	type saved struct {
		value   string
		present bool
	}
	previous := map[string]saved{}

	set := func(key, value string) {
		if value == "" {
			return
		}
		prev, present := os.LookupEnv(key)
		previous[key] = saved{value: prev, present: present}
		os.Setenv(key, value)
	}

	set(envAPIKey, policy.APIKey)
	set(envBaseURL, policy.BaseURL)

	return func() {
		for key, prev := range previous {
			if prev.present {
				os.Setenv(key, prev.value)
			} else {
				os.Unsetenv(key)
			}
		}
	}
}
