package build

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnbuild/kiln/pkg/engine"
	"github.com/kilnbuild/kiln/pkg/engine/enginetest"
	"github.com/kilnbuild/kiln/pkg/logger"
	"github.com/kilnbuild/kiln/pkg/registry"
)

func registryAuth(username, password string) registry.AuthProperty {
	return registry.AuthProperty{
		Username:           username,
		Password:           password,
		UsernameDescriptor: "auth.username",
		PasswordDescriptor: "auth.password",
	}
}

var (
	testDigest  = digest.Digest("sha256:" + strings.Repeat("a", 64))
	testImageID = digest.Digest("sha256:" + strings.Repeat("b", 64))
)

func testRequest(t *testing.T, kind engine.TargetKind) *engine.Request {
	t.Helper()
	base, err := reference.ParseNormalizedNamed("gcr.io/base/image:1.0")
	require.NoError(t, err)
	target, err := reference.ParseNormalizedNamed("registry.example.com/repo/x:latest")
	require.NoError(t, err)
	return &engine.Request{
		BaseImage: base,
		Target: engine.Target{
			Kind:    kind,
			Image:   target,
			Tags:    []string{"v1"},
			TarPath: "out/image.tar",
		},
		Layers: []engine.Layer{{Name: "app", Files: []string{"app/main.bin"}}},
	}
}

func newTestOrchestrator(t *testing.T, fake *enginetest.Fake, req *engine.Request, outputs Outputs) *Orchestrator {
	t.Helper()
	console := logger.New(io.Discard)
	t.Cleanup(func() { console.Shutdown(0) })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrchestrator(fake, console, log, req, outputs, Suggestions{
		ClearCacheCommand: "kiln cache clean",
		GenericPrefix:     "build failed",
	})
}

func TestRunSuccessWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	outputs := Outputs{
		DigestPath:   filepath.Join(dir, "digest"),
		ImageIDPath:  filepath.Join(dir, "id"),
		MetadataPath: filepath.Join(dir, "metadata.json"),
	}
	fake := &enginetest.Fake{Result: &engine.Result{
		Digest:  testDigest,
		ImageID: testImageID,
		Tags:    []string{"v1", "latest"},
		Pushed:  true,
	}}
	o := newTestOrchestrator(t, fake, testRequest(t, engine.TargetRegistry), outputs)

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, StateSuccess, o.State())
	assert.Equal(t, testDigest, outcome.Digest)
	assert.True(t, outcome.Pushed)

	// Digest file contains exactly the digest, nothing more.
	content, err := os.ReadFile(outputs.DigestPath)
	require.NoError(t, err)
	assert.Equal(t, testDigest.String(), string(content))

	content, err = os.ReadFile(outputs.ImageIDPath)
	require.NoError(t, err)
	assert.Equal(t, testImageID.String(), string(content))

	data, err := os.ReadFile(outputs.MetadataPath)
	require.NoError(t, err)
	var meta struct {
		Image       string   `json:"image"`
		ImageID     string   `json:"imageId"`
		ImageDigest string   `json:"imageDigest"`
		Tags        []string `json:"tags"`
		ImagePushed bool     `json:"imagePushed"`
	}
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "registry.example.com/repo/x:latest", meta.Image)
	assert.Equal(t, testImageID.String(), meta.ImageID)
	assert.Equal(t, testDigest.String(), meta.ImageDigest)
	assert.Equal(t, []string{"latest", "v1"}, meta.Tags)
	assert.True(t, meta.ImagePushed)
}

func TestRunForbiddenWritesNothing(t *testing.T) {
	dir := t.TempDir()
	outputs := Outputs{
		DigestPath:   filepath.Join(dir, "digest"),
		ImageIDPath:  filepath.Join(dir, "id"),
		MetadataPath: filepath.Join(dir, "metadata.json"),
	}
	fake := &enginetest.Fake{Err: &engine.UnauthorizedError{
		Registry:   "registry.example.com",
		Repository: "repo/x",
		StatusCode: http.StatusForbidden,
	}}
	o := newTestOrchestrator(t, fake, testRequest(t, engine.TargetRegistry), outputs)

	outcome, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, StateFailure, o.State())

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, KindForbidden, buildErr.Kind)
	assert.Contains(t, buildErr.Suggestion, "repo/x")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunSkipsUnconfiguredOutputs(t *testing.T) {
	fake := &enginetest.Fake{Result: &engine.Result{Digest: testDigest, ImageID: testImageID}}
	o := newTestOrchestrator(t, fake, testRequest(t, engine.TargetDaemon), Outputs{})

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, fake.Requests, 1)
}

func TestResolveCredentialsHelperPathFailsFast(t *testing.T) {
	fake := &enginetest.Fake{}
	o := newTestOrchestrator(t, fake, testRequest(t, engine.TargetRegistry), Outputs{})

	err := o.ResolveCredentials(CredentialSpec{Helper: filepath.Join(t.TempDir(), "missing-helper")}, CredentialSpec{})
	require.Error(t, err)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, KindIOFailure, buildErr.Kind)
	assert.Equal(t, StateFailure, o.State())
	// Fails before any network activity.
	assert.Empty(t, fake.Requests)
}

func TestResolveCredentialsBuildsChains(t *testing.T) {
	fake := &enginetest.Fake{Result: &engine.Result{Digest: testDigest, ImageID: testImageID, Pushed: true}}
	req := testRequest(t, engine.TargetRegistry)
	o := newTestOrchestrator(t, fake, req, Outputs{})

	require.NoError(t, o.ResolveCredentials(
		CredentialSpec{Auth: registryAuth("baseuser", "basepass")},
		CredentialSpec{Auth: registryAuth("targetuser", "targetpass")},
	))
	require.NotEmpty(t, req.BaseCredentials)
	require.NotEmpty(t, req.Credentials)

	cred, source, err := req.BaseCredentials.Resolve()
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "baseuser", cred.Username)
	assert.NotEmpty(t, source)
}

func TestTemplates(t *testing.T) {
	registryReq := testRequest(t, engine.TargetRegistry)
	startup, success := templates(registryReq.Target)
	assert.Contains(t, startup, "Containerizing application to ")
	assert.Contains(t, success, "Built and pushed image as ")
	assert.Contains(t, success, "registry.example.com/repo/x:latest")
	assert.Contains(t, success, "registry.example.com/repo/x:v1")

	daemonReq := testRequest(t, engine.TargetDaemon)
	startup, success = templates(daemonReq.Target)
	assert.Contains(t, startup, "Docker daemon")
	assert.Contains(t, success, "Built image to Docker daemon as ")

	tarReq := testRequest(t, engine.TargetTar)
	startup, success = templates(tarReq.Target)
	assert.Contains(t, startup, "out/image.tar")
	assert.Equal(t, "Built image tarball at out/image.tar", success)
}
