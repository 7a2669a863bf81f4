package registry

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/docker/cli/cli/config"
	"github.com/docker/docker-credential-helpers/client"
	"github.com/docker/docker-credential-helpers/credentials"
)

// helperPrefix is the conventional executable name prefix for credential
// helpers found on PATH.
const helperPrefix = "docker-credential-"

// dockerHubAuthKey is the config.json key Docker Hub credentials are stored
// under.
const dockerHubAuthKey = "https://index.docker.io/v1/"

// wellKnownHelpers maps registry host suffixes to the credential helper
// conventionally installed for them. Matching is lazy: the helper is only
// looked up on PATH when the chain actually reaches this retriever.
var wellKnownHelpers = []struct {
	suffix string
	helper string
}{
	{"gcr.io", "gcr"},
	{"amazonaws.com", "ecr-login"},
	{"azurecr.io", "acr-env"},
}

// RetrieverOptions configures DefaultRetrievers. Known is an explicitly
// supplied credential (flags or build-file auth section), Inferred one
// discovered by environment heuristics. Helper is a credential helper given
// either as an executable path or as a suffix to complete with the
// docker-credential- prefix.
type RetrieverOptions struct {
	Known          *Credential
	KnownSource    Source
	Inferred       *Credential
	InferredSource Source
	Helper         string
}

// DefaultRetrievers assembles the credential lookup chain for a registry in
// its fixed order: known credential, configured helper, inferred credential,
// docker config store, well-known helper inference. A helper configured as a
// path that does not exist fails here, before any network activity; a helper
// configured as a suffix is only checked when invoked.
func DefaultRetrievers(registryHost string, opts RetrieverOptions) (Chain, error) {
	var chain Chain
	if opts.Known != nil {
		chain = append(chain, KnownRetriever(*opts.Known, opts.KnownSource))
	}
	if opts.Helper != "" {
		name := opts.Helper
		if strings.ContainsRune(name, filepath.Separator) {
			if _, err := os.Stat(name); err != nil {
				return nil, fmt.Errorf("configured credential helper %q: %w", name, err)
			}
		} else {
			name = helperPrefix + name
		}
		chain = append(chain, HelperRetriever(name, registryHost))
	}
	if opts.Inferred != nil {
		chain = append(chain, KnownRetriever(*opts.Inferred, opts.InferredSource))
	}
	chain = append(chain, DockerConfigRetriever(registryHost))
	chain = append(chain, WellKnownHelperRetriever(registryHost))
	return chain, nil
}

// KnownRetriever wraps an already-resolved credential in the chain contract.
func KnownRetriever(cred Credential, source Source) Retriever {
	return Retriever{
		Source:   source,
		Retrieve: func() (*Credential, error) { return &cred, nil },
	}
}

// HelperRetriever invokes a docker-style credential helper executable. The
// helper reporting "credentials not found" moves the chain on; any other
// failure aborts resolution.
func HelperRetriever(helper, registryHost string) Retriever {
	return Retriever{
		Source: HelperSource(helper),
		Retrieve: func() (*Credential, error) {
			creds, err := client.Get(client.NewShellProgramFunc(helper), registryHost)
			if err != nil {
				if credentials.IsErrCredentialsNotFound(err) {
					return nil, nil
				}
				return nil, fmt.Errorf("credential helper %s: %w", helper, err)
			}
			return &Credential{Username: creds.Username, Password: creds.Secret}, nil
		},
	}
}

// DockerConfigRetriever reads the local Docker config store, including its
// credsStore/credHelpers indirection. An unreadable config degrades to "no
// credential" rather than failing the build.
func DockerConfigRetriever(registryHost string) Retriever {
	return Retriever{
		Source: SourceDockerConfig,
		Retrieve: func() (*Credential, error) {
			cfg, err := config.Load(config.Dir())
			if err != nil {
				slog.Debug("Unable to load docker config", "error", err)
				return nil, nil
			}
			auth, err := cfg.GetAuthConfig(dockerAuthKey(registryHost))
			if err != nil {
				slog.Debug("Unable to read docker config credentials", "registry", registryHost, "error", err)
				return nil, nil
			}
			if auth.Username == "" || auth.Password == "" {
				return nil, nil
			}
			return &Credential{Username: auth.Username, Password: auth.Password}, nil
		},
	}
}

// WellKnownHelperRetriever guesses a credential helper from the registry
// host. A guessed helper missing from PATH is not an error, only the end of
// the guess.
func WellKnownHelperRetriever(registryHost string) Retriever {
	helper := inferHelper(registryHost)
	source := SourceInferred
	if helper != "" {
		source = HelperSource(helper)
	}
	return Retriever{
		Source: source,
		Retrieve: func() (*Credential, error) {
			if helper == "" {
				return nil, nil
			}
			// An inferred helper missing from PATH ends the guess, it is
			// not a failure.
			if _, err := exec.LookPath(helper); err != nil {
				slog.Debug("Inferred credential helper not installed", "helper", helper)
				return nil, nil
			}
			return HelperRetriever(helper, registryHost).Retrieve()
		},
	}
}

func inferHelper(registryHost string) string {
	for _, known := range wellKnownHelpers {
		if registryHost == known.suffix || strings.HasSuffix(registryHost, "."+known.suffix) {
			return helperPrefix + known.helper
		}
	}
	return ""
}

func dockerAuthKey(registryHost string) string {
	switch registryHost {
	case "docker.io", "index.docker.io", "registry-1.docker.io":
		return dockerHubAuthKey
	}
	return registryHost
}
