package build

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/distribution/reference"
	"github.com/fatih/color"
	"github.com/opencontainers/go-digest"

	"github.com/kilnbuild/kiln/pkg/engine"
	"github.com/kilnbuild/kiln/pkg/logger"
	"github.com/kilnbuild/kiln/pkg/registry"
)

// State tracks where a build is in its lifecycle. A build moves through the
// states exactly once; there is no retry loop.
type State int

const (
	StateInit State = iota
	StateResolvingCredentials
	StateContainerizing
	StateSuccess
	StateFailure
)

// Outputs are the caller-specified paths the build artifacts are written to
// on success. Empty paths are skipped.
type Outputs struct {
	DigestPath   string
	ImageIDPath  string
	MetadataPath string
}

// Outcome is what a successful build exposes to the CLI layer. Failures are
// raised as a single *BuildError instead.
type Outcome struct {
	Digest  digest.Digest
	ImageID digest.Digest
	Tags    []string
	Pushed  bool
}

// CredentialSpec is the per-image credential configuration the orchestrator
// resolves into a retriever chain: property overrides, the build-file auth
// section, an optional helper, and an optional inferred credential.
type CredentialSpec struct {
	UsernameProperty registry.PropertyValue
	PasswordProperty registry.PropertyValue
	Auth             registry.AuthProperty
	Helper           string
	Inferred         *registry.Credential
	InferredSource   registry.Source

	// Hint names the configuration to set when authentication against this
	// image's registry fails without any credentials configured.
	Hint string
}

// Orchestrator drives one build: credential resolution, the single blocking
// containerize call, progress output through the footer console logger, and
// artifact persistence on success.
type Orchestrator struct {
	engine  engine.Containerizer
	console *logger.Logger
	log     *slog.Logger

	req         *engine.Request
	outputs     Outputs
	suggestions Suggestions

	startup string
	success string
	state   State
}

// NewOrchestrator selects the message templates for the request's
// publication target and prepares a single-use orchestrator.
func NewOrchestrator(eng engine.Containerizer, console *logger.Logger, log *slog.Logger, req *engine.Request, outputs Outputs, suggestions Suggestions) *Orchestrator {
	startup, success := templates(req.Target)
	suggestions.BaseImage = req.BaseImage
	suggestions.TargetImage = req.Target.Image
	return &Orchestrator{
		engine:      eng,
		console:     console,
		log:         log,
		req:         req,
		outputs:     outputs,
		suggestions: suggestions,
		startup:     startup,
		success:     success,
		state:       StateInit,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return o.state }

// ResolveCredentials builds the retriever chains for the base and target
// registries. A configured helper path that does not exist fails here, fast,
// before any network activity.
func (o *Orchestrator) ResolveCredentials(base, target CredentialSpec) error {
	o.state = StateResolvingCredentials

	baseChain, baseConfigured, err := o.buildChain(registryDomain(o.req.BaseImage), base)
	if err != nil {
		o.state = StateFailure
		return &BuildError{Kind: KindIOFailure, Suggestion: o.suggestions.forIOFailure(err), Cause: err}
	}
	o.req.BaseCredentials = baseChain
	o.suggestions.BaseCredentialConfigured = baseConfigured
	o.suggestions.BaseCredentialHint = base.Hint

	if o.req.Target.Kind == engine.TargetRegistry {
		targetChain, targetConfigured, err := o.buildChain(registryDomain(o.req.Target.Image), target)
		if err != nil {
			o.state = StateFailure
			return &BuildError{Kind: KindIOFailure, Suggestion: o.suggestions.forIOFailure(err), Cause: err}
		}
		o.req.Credentials = targetChain
		o.suggestions.TargetCredentialConfigured = targetConfigured
		o.suggestions.TargetCredentialHint = target.Hint
	}
	return nil
}

func (o *Orchestrator) buildChain(registryHost string, spec CredentialSpec) (registry.Chain, bool, error) {
	known, source := registry.ResolveCredential(o.log, spec.UsernameProperty, spec.PasswordProperty, spec.Auth)
	chain, err := registry.DefaultRetrievers(registryHost, registry.RetrieverOptions{
		Known:          known,
		KnownSource:    source,
		Inferred:       spec.Inferred,
		InferredSource: spec.InferredSource,
		Helper:         spec.Helper,
	})
	if err != nil {
		return nil, false, err
	}
	configured := known != nil || spec.Helper != ""
	return chain, configured, nil
}

// Run performs the single blocking containerize call. On success the
// configured output artifacts are written; on failure the engine error is
// classified into one typed BuildError and nothing is written.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	o.state = StateContainerizing
	o.console.Log("")
	o.console.Log(o.startup)
	o.logLayers()

	result, err := o.engine.Containerize(ctx, o.req)
	if err != nil {
		o.state = StateFailure
		return nil, Classify(err, o.suggestions)
	}

	o.state = StateSuccess
	o.console.Log("")
	o.console.Log(o.success)
	o.writeOutputs(result)

	return &Outcome{
		Digest:  result.Digest,
		ImageID: result.ImageID,
		Tags:    result.Tags,
		Pushed:  result.Pushed,
	}, nil
}

func (o *Orchestrator) logLayers() {
	if len(o.req.Layers) == 0 {
		return
	}
	o.log.Info("Containerizing application with the following files:")
	for _, layer := range o.req.Layers {
		o.log.Info("\t" + layer.Name + ":")
		for _, file := range layer.Files {
			o.log.Info("\t\t" + file)
		}
	}
}

type buildMetadata struct {
	Image       string   `json:"image"`
	ImageID     string   `json:"imageId"`
	ImageDigest string   `json:"imageDigest"`
	Tags        []string `json:"tags"`
	ImagePushed bool     `json:"imagePushed"`
}

// writeOutputs persists the three result files. The writes are independent:
// one failing write is logged and must not suppress the others or the
// successfully computed build.
func (o *Orchestrator) writeOutputs(result *engine.Result) {
	if o.outputs.DigestPath != "" {
		o.writeFile(o.outputs.DigestPath, result.Digest.String())
	}
	if o.outputs.ImageIDPath != "" {
		o.writeFile(o.outputs.ImageIDPath, result.ImageID.String())
	}
	if o.outputs.MetadataPath != "" {
		tags := slices.Clone(result.Tags)
		slices.Sort(tags)
		meta := buildMetadata{
			Image:       reference.FamiliarString(o.req.Target.Image),
			ImageID:     result.ImageID.String(),
			ImageDigest: result.Digest.String(),
			Tags:        tags,
			ImagePushed: result.Pushed,
		}
		data, err := json.Marshal(meta)
		if err != nil {
			o.log.Warn("Unable to encode build metadata", "path", o.outputs.MetadataPath, "error", err)
			return
		}
		o.writeFile(o.outputs.MetadataPath, string(data))
	}
}

func (o *Orchestrator) writeFile(path, content string) {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		o.log.Warn("Unable to write build output", "path", path, "error", err)
	}
}

func templates(target engine.Target) (startup, success string) {
	switch target.Kind {
	case engine.TargetTar:
		return fmt.Sprintf("Containerizing application to file at '%s'...", target.TarPath),
			fmt.Sprintf("Built image tarball at %s", target.TarPath)
	case engine.TargetDaemon:
		refs := highlightedRefs(target)
		return "Containerizing application to Docker daemon as " + refs + "...",
			"Built image to Docker daemon as " + refs
	default:
		refs := highlightedRefs(target)
		return "Containerizing application to " + refs + "...",
			"Built and pushed image as " + refs
	}
}

func highlightedRefs(target engine.Target) string {
	cyan := color.New(color.FgCyan).SprintFunc()
	parts := make([]string, 0, 1+len(target.Tags))
	parts = append(parts, cyan(reference.FamiliarString(target.Image)))
	for _, tag := range target.Tags {
		parts = append(parts, cyan(reference.FamiliarName(target.Image)+":"+tag))
	}
	return strings.Join(parts, ", ")
}

func registryDomain(image reference.Named) string {
	if image == nil {
		return ""
	}
	return reference.Domain(image)
}
