package registry

// Credential is a username/password pair for a registry. The password is
// never logged; diagnostics use the Source carried next to the credential
// instead.
type Credential struct {
	Username string
	Password string
}

// String redacts the password so a Credential is safe to pass to a logger.
func (c Credential) String() string {
	return c.Username + ":<redacted>"
}

// Source describes where a credential came from. It only ever feeds
// diagnostic messages, never behavior.
type Source string

const (
	SourceFlag         Source = "<flag>"
	SourceAuthConfig   Source = "<auth-config>"
	SourceDockerConfig Source = "docker config"
	SourceInferred     Source = "inferred"
)

// HelperSource names the credential helper a credential came from, by path
// or by suffix.
func HelperSource(name string) Source {
	return Source("credential helper " + name)
}

// Retriever is a deferred credential lookup. Retrieve returns (nil, nil)
// when the source holds no credential for the registry, which moves the
// chain on to the next retriever.
type Retriever struct {
	Source   Source
	Retrieve func() (*Credential, error)
}

// Chain is an ordered sequence of retrievers, fixed at construction time.
type Chain []Retriever

// Resolve tries each retriever in order and short-circuits at the first one
// that yields a credential. A fully exhausted chain is not an error: the
// registry is then treated as anonymous.
func (c Chain) Resolve() (*Credential, Source, error) {
	for _, r := range c {
		cred, err := r.Retrieve()
		if err != nil {
			return nil, r.Source, err
		}
		if cred != nil {
			return cred, r.Source, nil
		}
	}
	return nil, "", nil
}
