// Package daemon implements the containerize engine on top of a local
// Docker-compatible daemon: the image is assembled by the daemon's builder,
// then pushed, kept in the daemon, or exported as a tarball depending on the
// target.
package daemon

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/distribution/reference"
	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	dockerregistry "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/opencontainers/go-digest"

	"github.com/kilnbuild/kiln/pkg/engine"
	"github.com/kilnbuild/kiln/pkg/registry"
)

// Engine is a Containerizer backed by the local daemon.
type Engine struct {
	client *client.Client
	log    *slog.Logger
}

var _ engine.Containerizer = (*Engine)(nil)

// New connects to the daemon using the standard DOCKER_HOST environment.
func New(log *slog.Logger) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Engine{client: cli, log: log}, nil
}

// Containerize builds the image from the request's layers and publishes it
// per the target. It blocks until the daemon finishes; cancellation comes
// only from ctx.
func (e *Engine) Containerize(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	baseAuth, err := resolveAuth(req.BaseCredentials)
	if err != nil {
		return nil, err
	}

	ref := reference.FamiliarString(req.Target.Image)
	tags := []string{ref}
	for _, tag := range req.Target.Tags {
		tags = append(tags, reference.FamiliarName(req.Target.Image)+":"+tag)
	}

	buildCtx, err := buildContext(req)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.ImageBuild(ctx, buildCtx, dockertypes.ImageBuildOptions{
		Tags:        tags,
		Dockerfile:  "Dockerfile",
		Remove:      true,
		PullParent:  true,
		AuthConfigs: map[string]dockerregistry.AuthConfig{baseRegistry(req): baseAuth},
	})
	if err != nil {
		return nil, e.wrapRegistryError(err, req.BaseImage)
	}
	err = e.drain(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}

	pushed := false
	switch req.Target.Kind {
	case engine.TargetRegistry:
		if err := e.push(ctx, req, tags); err != nil {
			return nil, err
		}
		pushed = true
	case engine.TargetTar:
		if err := e.export(ctx, tags[0], req.Target.TarPath); err != nil {
			return nil, err
		}
	case engine.TargetDaemon:
		// Already loaded by the build.
	}

	return e.result(ctx, req, ref, pushed)
}

func (e *Engine) push(ctx context.Context, req *engine.Request, tags []string) error {
	cred, _, err := req.Credentials.Resolve()
	if err != nil {
		return err
	}
	encoded, err := encodeAuth(cred)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		resp, err := e.client.ImagePush(ctx, tag, image.PushOptions{RegistryAuth: encoded})
		if err != nil {
			return e.wrapRegistryError(err, req.Target.Image)
		}
		err = e.drain(resp)
		_ = resp.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) export(ctx context.Context, ref, path string) error {
	resp, err := e.client.ImageSave(ctx, []string{ref})
	if err != nil {
		return err
	}
	defer resp.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp)
	return err
}

func (e *Engine) result(ctx context.Context, req *engine.Request, ref string, pushed bool) (*engine.Result, error) {
	info, _, err := e.client.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return nil, err
	}
	imageID, err := digest.Parse(info.ID)
	if err != nil {
		return nil, fmt.Errorf("daemon returned unparseable image id %q: %w", info.ID, err)
	}
	imageDigest := imageID
	if pushed {
		repo := reference.FamiliarName(req.Target.Image)
		for _, repoDigest := range info.RepoDigests {
			name, dgst, ok := strings.Cut(repoDigest, "@")
			if ok && name == repo {
				if parsed, err := digest.Parse(dgst); err == nil {
					imageDigest = parsed
					break
				}
			}
		}
	}
	return &engine.Result{
		Digest:  imageDigest,
		ImageID: imageID,
		Tags:    req.Target.Tags,
		Pushed:  pushed,
	}, nil
}

// drain consumes a daemon progress stream, forwarding lines to the build log
// and surfacing daemon-reported errors.
func (e *Engine) drain(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "errorDetail") {
			return &engine.ProtocolError{Message: line}
		}
		e.log.Debug(line)
	}
	return scanner.Err()
}

func (e *Engine) wrapRegistryError(err error, img reference.Named) error {
	if img == nil {
		return err
	}
	if errdefs.IsUnauthorized(err) {
		return &engine.UnauthorizedError{
			Registry:   reference.Domain(img),
			Repository: reference.Path(img),
			StatusCode: http.StatusUnauthorized,
		}
	}
	if errdefs.IsForbidden(err) {
		return &engine.UnauthorizedError{
			Registry:   reference.Domain(img),
			Repository: reference.Path(img),
			StatusCode: http.StatusForbidden,
		}
	}
	return err
}

func resolveAuth(chain registry.Chain) (dockerregistry.AuthConfig, error) {
	cred, _, err := chain.Resolve()
	if err != nil {
		return dockerregistry.AuthConfig{}, err
	}
	if cred == nil {
		return dockerregistry.AuthConfig{}, nil
	}
	return dockerregistry.AuthConfig{Username: cred.Username, Password: cred.Password}, nil
}

func encodeAuth(cred *registry.Credential) (string, error) {
	if cred == nil {
		return "", nil
	}
	return dockerregistry.EncodeAuthConfig(dockerregistry.AuthConfig{
		Username: cred.Username,
		Password: cred.Password,
	})
}

func baseRegistry(req *engine.Request) string {
	if req.BaseImage == nil {
		return ""
	}
	return reference.Domain(req.BaseImage)
}

// buildContext tars up a generated Dockerfile plus every layer source file.
// Layer names become comments only; the daemon flattens them its own way.
func buildContext(req *engine.Request) (io.Reader, error) {
	var dockerfile bytes.Buffer
	base := "scratch"
	if req.BaseImage != nil {
		base = reference.FamiliarString(req.BaseImage)
	}
	fmt.Fprintf(&dockerfile, "FROM %s\n", base)
	for _, layer := range req.Layers {
		fmt.Fprintf(&dockerfile, "# layer: %s\n", layer.Name)
		for _, file := range layer.Files {
			fmt.Fprintf(&dockerfile, "COPY %s /%s\n", file, filepath.Base(file))
		}
	}

	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)
	if err := writeTarFile(tw, "Dockerfile", dockerfile.Bytes()); err != nil {
		return nil, err
	}
	for _, layer := range req.Layers {
		for _, file := range layer.Files {
			content, err := os.ReadFile(file)
			if err != nil {
				return nil, err
			}
			if err := writeTarFile(tw, file, content); err != nil {
				return nil, err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeTarFile(tw *tar.Writer, name string, content []byte) error {
	header := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}
