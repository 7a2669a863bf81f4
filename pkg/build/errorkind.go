package build

// ErrorKind is the closed classification of a build failure. Exactly one
// kind is assigned per failure; Classify is total with KindUnknown as the
// fallback.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetworkUnreachable
	KindForbidden
	KindUnauthorized
	KindCredentialsNotSent
	KindAuthFailed
	KindUnknownHost
	KindInsecureRegistry
	KindRegistryProtocol
	KindCacheCorrupted
	KindCacheNotOwned
	KindInterrupted
	KindIOFailure
)

var errorKindNames = map[ErrorKind]string{
	KindUnknown:            "Unknown",
	KindNetworkUnreachable: "NetworkUnreachable",
	KindForbidden:          "Forbidden",
	KindUnauthorized:       "Unauthorized",
	KindCredentialsNotSent: "CredentialsNotSent",
	KindAuthFailed:         "AuthFailed",
	KindUnknownHost:        "UnknownHost",
	KindInsecureRegistry:   "InsecureRegistry",
	KindRegistryProtocol:   "RegistryProtocolError",
	KindCacheCorrupted:     "CacheCorrupted",
	KindCacheNotOwned:      "CacheNotOwned",
	KindInterrupted:        "Interrupted",
	KindIOFailure:          "IOFailure",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// BuildError is the single typed failure a build raises toward the CLI
// layer: a classified kind, a ready-to-print suggestion, and the engine
// error that caused it.
type BuildError struct {
	Kind       ErrorKind
	Suggestion string
	Cause      error
}

func (e *BuildError) Error() string { return e.Suggestion }

func (e *BuildError) Unwrap() error { return e.Cause }
