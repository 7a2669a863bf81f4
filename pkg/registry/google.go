package registry

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/oauth2/google"
)

// cloudPlatformScope is the OAuth scope Google registries accept access
// tokens for.
const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// oauthAccessTokenUser is the fixed username Google registries expect when
// the password is an OAuth access token.
const oauthAccessTokenUser = "oauth2accesstoken"

// InferGoogleCredential discovers an ambient credential for Google-hosted
// registries from Application Default Credentials. Non-Google registries and
// environments without ADC yield nil; inference never fails a build.
func InferGoogleCredential(ctx context.Context, registryHost string) *Credential {
	if !isGoogleRegistry(registryHost) {
		return nil
	}
	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		slog.Debug("No Google application default credentials", "registry", registryHost, "error", err)
		return nil
	}
	token, err := creds.TokenSource.Token()
	if err != nil {
		slog.Debug("Unable to mint access token from application default credentials", "registry", registryHost, "error", err)
		return nil
	}
	return &Credential{Username: oauthAccessTokenUser, Password: token.AccessToken}
}

func isGoogleRegistry(registryHost string) bool {
	return registryHost == "gcr.io" ||
		strings.HasSuffix(registryHost, ".gcr.io") ||
		strings.HasSuffix(registryHost, "-docker.pkg.dev") ||
		registryHost == "pkg.dev"
}
