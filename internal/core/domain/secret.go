package domain

import (
	"fmt"
	"os"
	"strings"
)

// EnvRefPrefix marks a credential value as an environment variable
// reference instead of a literal.
const EnvRefPrefix = "env:"

// ResolveSecret returns the value itself, or the named environment
// variable's value for an "env:NAME" reference. Stored configuration
// keeps the reference; callers resolve when a run needs the real value.
func ResolveSecret(value string) (string, error) {
	if !strings.HasPrefix(value, EnvRefPrefix) {
		return value, nil
	}
	name := strings.TrimPrefix(value, EnvRefPrefix)
	if name == "" {
		return "", fmt.Errorf("%w: %q names no variable", ErrCredentialUnresolved, value)
	}
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrCredentialUnresolved, name)
	}
	return v, nil
}
