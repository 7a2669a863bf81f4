package engine

import (
	"context"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"

	"github.com/kilnbuild/kiln/pkg/registry"
)

// TargetKind names where a built image is published.
type TargetKind int

const (
	// TargetRegistry pushes the image to a remote registry.
	TargetRegistry TargetKind = iota
	// TargetDaemon loads the image into a local Docker-compatible daemon.
	TargetDaemon
	// TargetTar writes the image to a tarball on disk.
	TargetTar
)

// Target is the publication target of a build: the image reference, any
// additional tags to apply, and for tar targets the output path.
type Target struct {
	Kind    TargetKind
	Image   reference.Named
	Tags    []string
	TarPath string
}

// Layer is one application layer: a name for progress output plus the source
// files it is built from. Layer tarring itself belongs to the engine.
type Layer struct {
	Name  string
	Files []string
}

// Request carries everything a single containerize call needs. Credential
// chains are resolved lazily by the engine, per registry, during the call.
type Request struct {
	BaseImage       reference.Named
	BaseCredentials registry.Chain
	Credentials     registry.Chain
	Layers          []Layer
	Target          Target

	// AllowInsecure opts in to plain-HTTP registries.
	AllowInsecure bool
}

// Result is what a successful containerize call exposes.
type Result struct {
	Digest  digest.Digest
	ImageID digest.Digest
	Tags    []string
	Pushed  bool
}

// Containerizer is the external image-construction engine: one blocking call
// that builds the image and publishes or exports it. It may run internal
// worker goroutines (layer hashing, parallel blob upload); those are opaque
// to callers. Failures come from the closed error family in errors.go plus
// ordinary network and filesystem errors.
type Containerizer interface {
	Containerize(ctx context.Context, req *Request) (*Result, error)
}
