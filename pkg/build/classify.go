package build

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/kilnbuild/kiln/pkg/engine"
)

// Classify maps an engine failure to a BuildError. It is total: every error
// yields exactly one kind, with KindUnknown as the fallback, and it never
// panics. An AuthenticationError is unwrapped exactly one layer: if it wraps
// an unauthorized response the response is classified as if unwrapped,
// otherwise the handshake failure itself is reported.
func Classify(err error, s Suggestions) *BuildError {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return &BuildError{Kind: KindNetworkUnreachable, Suggestion: s.forNetworkUnreachable(), Cause: err}
	}

	var authErr *engine.AuthenticationError
	if errors.As(err, &authErr) {
		var unauthorized *engine.UnauthorizedError
		if errors.As(authErr.Err, &unauthorized) {
			return classifyUnauthorized(unauthorized, err, s)
		}
		return &BuildError{Kind: KindAuthFailed, Suggestion: s.forAuthFailed(authErr), Cause: err}
	}

	var unauthorized *engine.UnauthorizedError
	if errors.As(err, &unauthorized) {
		return classifyUnauthorized(unauthorized, err, s)
	}

	var notSent *engine.CredentialsNotSentError
	if errors.As(err, &notSent) {
		return &BuildError{Kind: KindCredentialsNotSent, Suggestion: s.forCredentialsNotSent(notSent), Cause: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &BuildError{Kind: KindUnknownHost, Suggestion: s.forUnknownHost(), Cause: err}
	}

	var insecure *engine.InsecureRegistryError
	if errors.As(err, &insecure) {
		return &BuildError{Kind: KindInsecureRegistry, Suggestion: s.forInsecureRegistry(insecure), Cause: err}
	}

	var protocol *engine.ProtocolError
	if errors.As(err, &protocol) {
		// The registry's own message is already actionable; pass it through.
		return &BuildError{Kind: KindRegistryProtocol, Suggestion: protocol.Message, Cause: err}
	}

	var corrupted *engine.CacheCorruptedError
	if errors.As(err, &corrupted) {
		return &BuildError{Kind: KindCacheCorrupted, Suggestion: s.forCacheCorrupted(), Cause: err}
	}

	var notOwned *engine.CacheNotOwnedError
	if errors.As(err, &notOwned) {
		return &BuildError{Kind: KindCacheNotOwned, Suggestion: s.forCacheNotOwned(notOwned), Cause: err}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &BuildError{Kind: KindInterrupted, Suggestion: s.forInterrupted(), Cause: err}
	}

	if isIOFailure(err) {
		return &BuildError{Kind: KindIOFailure, Suggestion: s.forIOFailure(err), Cause: err}
	}

	return &BuildError{Kind: KindUnknown, Suggestion: s.forUnknown(err), Cause: err}
}

func classifyUnauthorized(e *engine.UnauthorizedError, cause error, s Suggestions) *BuildError {
	if e.Forbidden() {
		return &BuildError{Kind: KindForbidden, Suggestion: s.forForbidden(e), Cause: cause}
	}
	return &BuildError{Kind: KindUnauthorized, Suggestion: s.forUnauthorized(e), Cause: cause}
}

func isIOFailure(err error) bool {
	var pathErr *os.PathError
	var syscallErr *os.SyscallError
	var opErr *net.OpError
	return errors.As(err, &pathErr) ||
		errors.As(err, &syscallErr) ||
		errors.As(err, &opErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe)
}
