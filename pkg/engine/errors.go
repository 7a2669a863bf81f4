package engine

import (
	"fmt"
	"net/http"
)

// The closed family of failures a Containerizer may raise, beyond plain
// network and filesystem errors. The build orchestrator classifies these
// into user-facing suggestions; nothing here is retried.

// UnauthorizedError is a 401/403 registry response for a specific
// registry/repository pair.
type UnauthorizedError struct {
	Registry   string
	Repository string
	StatusCode int
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("registry %s denied access to %s (status %d)", e.Registry, e.Repository, e.StatusCode)
}

// Forbidden reports whether the registry rejected the request outright
// rather than asking for (different) credentials.
func (e *UnauthorizedError) Forbidden() bool {
	return e.StatusCode == http.StatusForbidden
}

// AuthenticationError wraps a failure of the registry authentication
// handshake itself. Its cause is unwrapped exactly one layer during
// classification.
type AuthenticationError struct {
	Registry   string
	Repository string
	Err        error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("failed to authenticate against %s/%s: %v", e.Registry, e.Repository, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// CredentialsNotSentError means credentials were withheld because the
// connection would have sent them over plain HTTP.
type CredentialsNotSentError struct {
	Registry string
}

func (e *CredentialsNotSentError) Error() string {
	return fmt.Sprintf("refusing to send credentials to %s over HTTP", e.Registry)
}

// InsecureRegistryError means the registry only speaks plain HTTP and the
// build did not opt in to insecure transports.
type InsecureRegistryError struct {
	Registry string
}

func (e *InsecureRegistryError) Error() string {
	return fmt.Sprintf("registry %s only supports plain HTTP", e.Registry)
}

// ProtocolError is a registry-reported protocol failure carrying the
// registry's own message, which is already actionable and surfaced verbatim.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string { return e.Message }

// CacheCorruptedError means the local build cache failed integrity checks.
type CacheCorruptedError struct {
	Dir string
	Err error
}

func (e *CacheCorruptedError) Error() string {
	return fmt.Sprintf("build cache at %s is corrupted: %v", e.Dir, e.Err)
}

func (e *CacheCorruptedError) Unwrap() error { return e.Err }

// CacheNotOwnedError means a cache directory belongs to another user.
// ApplicationLayer marks the application-layer cache specifically, which
// changes the suggested fix from chown to clearing the cache.
type CacheNotOwnedError struct {
	Dir              string
	ApplicationLayer bool
}

func (e *CacheNotOwnedError) Error() string {
	return fmt.Sprintf("cache directory %s is not owned by the current user", e.Dir)
}
