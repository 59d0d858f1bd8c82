package secret

import (
	"fmt"
	"os"
	"strings"
)

// ExternalLookup is the shape of a delegated secret lookup: it asks whatever
// sits outside the process (typically the same caller that requested the
// invocation) whether a secret exists, or what its value is. Either method
// may return ok=false to mean "the external side had no opinion"; the
// capability-aware resolver then falls back to the process environment.
type ExternalLookup interface {
	SecretExists(name string) (exists bool, ok bool)
	ResolveSecret(name string) (value string, ok bool, err error)
}

// PolicyChecker is the minimal capability surface the resolver needs.
type PolicyChecker interface {
	SecretAllowed(name string) bool
}

// CapabilityResolver builds a Resolver that first enforces the secrets
// capability, then asks the external lookup, then falls back to a
// non-empty process environment variable of the same name.
func CapabilityResolver(policy PolicyChecker, external ExternalLookup) Resolver {
	return func(name string) (string, error) {
		if name == "" {
			return "", fmt.Errorf("empty secret name in placeholder")
		}
		if !policy.SecretAllowed(name) {
			return "", fmt.Errorf("secret %q not permitted by capability policy", name)
		}
		if external != nil {
			if value, ok, err := external.ResolveSecret(name); err != nil {
				return "", err
			} else if ok && value != "" {
				return value, nil
			}
		}
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value, nil
		}
		return "", fmt.Errorf("secret %q could not be resolved", name)
	}
}

// Exists answers a capability-gated secret_exists probe: false if denied by
// policy, else the external lookup's answer, else a non-empty env fallback.
func Exists(policy PolicyChecker, external ExternalLookup, name string) bool {
	if !policy.SecretAllowed(name) {
		return false
	}
	if external != nil {
		if exists, ok := external.SecretExists(name); ok {
			return exists
		}
	}
	return strings.TrimSpace(os.Getenv(name)) != ""
}
