package build

import (
	"github.com/distribution/reference"

	"github.com/kilnbuild/kiln/pkg/engine"
)

// Suggestions holds the context a classifier needs to turn a failure into an
// actionable message: the image references in play, whether credentials were
// configured for them, and the command that clears the local cache. Every
// suggestion shares one shape: "<problem>, perhaps you should <action>".
type Suggestions struct {
	BaseImage   reference.Named
	TargetImage reference.Named

	BaseCredentialConfigured   bool
	TargetCredentialConfigured bool

	// Hints name the exact configuration to set, e.g.
	// "the from.auth section or KILN_FROM_AUTH_USERNAME/KILN_FROM_AUTH_PASSWORD".
	BaseCredentialHint   string
	TargetCredentialHint string

	ClearCacheCommand string
	GenericPrefix     string
}

func suggest(problem, action string) string {
	return problem + ", perhaps you should " + action
}

func (s Suggestions) forNetworkUnreachable() string {
	return suggest(s.GenericPrefix+": could not reach the registry",
		"make sure your network is up and the registry address is reachable")
}

func (s Suggestions) forUnknownHost() string {
	return suggest(s.GenericPrefix+": the registry host could not be resolved",
		"make sure the registry you configured exists and is spelled correctly")
}

func (s Suggestions) forForbidden(e *engine.UnauthorizedError) string {
	pair := e.Registry + "/" + e.Repository
	return suggest(s.GenericPrefix+": access to "+pair+" was forbidden",
		"make sure you have permissions for "+pair)
}

func (s Suggestions) forUnauthorized(e *engine.UnauthorizedError) string {
	pair := e.Registry + "/" + e.Repository
	problem := s.GenericPrefix + ": the registry asked for credentials for " + pair
	if s.matches(s.BaseImage, e) && !s.BaseCredentialConfigured && s.BaseCredentialHint != "" {
		return suggest(problem, "set credentials for "+pair+" with "+s.BaseCredentialHint)
	}
	if s.matches(s.TargetImage, e) && !s.TargetCredentialConfigured && s.TargetCredentialHint != "" {
		return suggest(problem, "set credentials for "+pair+" with "+s.TargetCredentialHint)
	}
	return suggest(problem, "make sure your credentials for "+pair+" are correct")
}

func (s Suggestions) forAuthFailed(e *engine.AuthenticationError) string {
	return suggest(s.GenericPrefix+": failed to authenticate against "+e.Registry+"/"+e.Repository,
		"verify the credentials configured for "+e.Registry)
}

func (s Suggestions) forCredentialsNotSent(e *engine.CredentialsNotSentError) string {
	return suggest(s.GenericPrefix+": refusing to send credentials to "+e.Registry+" over plain HTTP",
		"use a registry that supports HTTPS, or explicitly allow insecure registries")
}

func (s Suggestions) forInsecureRegistry(e *engine.InsecureRegistryError) string {
	return suggest(s.GenericPrefix+": the registry "+e.Registry+" only supports plain HTTP",
		"use a registry that supports HTTPS, or explicitly allow insecure registries")
}

func (s Suggestions) forCacheCorrupted() string {
	return suggest(s.GenericPrefix+": the local build cache is corrupted",
		"run '"+s.ClearCacheCommand+"' to clear it")
}

func (s Suggestions) forCacheNotOwned(e *engine.CacheNotOwnedError) string {
	if e.ApplicationLayer {
		return s.forCacheCorrupted()
	}
	return suggest(s.GenericPrefix+": the cache directory "+e.Dir+" is owned by another user",
		"check the ownership of "+e.Dir)
}

func (s Suggestions) forInterrupted() string {
	return suggest(s.GenericPrefix+": the build was interrupted", "try again")
}

func (s Suggestions) forIOFailure(err error) string {
	return suggest(s.GenericPrefix+": I/O error: "+err.Error(), "check the error message and try again")
}

func (s Suggestions) forUnknown(err error) string {
	return s.GenericPrefix + ": " + err.Error()
}

func (s Suggestions) matches(image reference.Named, e *engine.UnauthorizedError) bool {
	if image == nil {
		return false
	}
	return reference.Domain(image) == e.Registry && reference.Path(image) == e.Repository
}
