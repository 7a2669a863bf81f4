package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/distribution/reference"
	"github.com/spf13/cobra"

	"github.com/kilnbuild/kiln/pkg/build"
	"github.com/kilnbuild/kiln/pkg/buildfile"
	"github.com/kilnbuild/kiln/pkg/engine"
	"github.com/kilnbuild/kiln/pkg/engine/daemon"
	"github.com/kilnbuild/kiln/pkg/logger"
	"github.com/kilnbuild/kiln/pkg/registry"
)

const shutdownTimeout = 5 * time.Second

var buildArgs = struct {
	BuildFile    string
	Target       string
	TarPath      string
	Image        string
	Tags         []string
	DigestPath   string
	ImageIDPath  string
	MetadataPath string
}{}

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a container image from a build plan",
	Long: `Build a container image from the layers declared in the build file
and publish it to the configured target: a registry, the local daemon, or a
tarball on disk.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildArgs.BuildFile, "build-file", "f", "kiln.yaml", "Path to the build plan")
	buildCmd.Flags().StringVar(&buildArgs.Target, "target", "registry", "Where to publish the image: registry, daemon, tar")
	buildCmd.Flags().StringVar(&buildArgs.TarPath, "tar-path", "image.tar", "Output path for the tar target")
	buildCmd.Flags().StringVar(&buildArgs.Image, "image", "", "Override the target image reference")
	buildCmd.Flags().StringSliceVar(&buildArgs.Tags, "tag", nil, "Additional tags to apply")
	buildCmd.Flags().StringVar(&buildArgs.DigestPath, "digest-file", "", "Write the image digest to this file")
	buildCmd.Flags().StringVar(&buildArgs.ImageIDPath, "image-id-file", "", "Write the image id to this file")
	buildCmd.Flags().StringVar(&buildArgs.MetadataPath, "metadata-file", "", "Write the build metadata JSON to this file")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	plan, err := buildfile.Load(buildArgs.BuildFile)
	if err != nil {
		return err
	}
	if buildArgs.Image != "" {
		plan.To.Image = buildArgs.Image
	}
	if len(buildArgs.Tags) > 0 {
		plan.To.Tags = buildArgs.Tags
	}
	if buildArgs.DigestPath != "" {
		plan.Outputs.Digest = buildArgs.DigestPath
	}
	if buildArgs.ImageIDPath != "" {
		plan.Outputs.ImageID = buildArgs.ImageIDPath
	}
	if buildArgs.MetadataPath != "" {
		plan.Outputs.Metadata = buildArgs.MetadataPath
	}

	baseRef, err := reference.ParseNormalizedNamed(plan.From.Image)
	if err != nil {
		return fmt.Errorf("invalid base image %q: %w", plan.From.Image, err)
	}
	targetRef, err := reference.ParseNormalizedNamed(plan.To.Image)
	if err != nil {
		return fmt.Errorf("invalid target image %q: %w", plan.To.Image, err)
	}
	kind, err := targetKind(buildArgs.Target)
	if err != nil {
		return err
	}

	console := logger.New(os.Stdout)
	defer console.Shutdown(shutdownTimeout)

	logOpts := slog.HandlerOptions{Level: slog.LevelInfo}
	if RootArgs.Verbose {
		logOpts.Level = slog.LevelDebug
	}
	log := slog.New(logger.NewHandler(console, useTTY(), logOpts))
	slog.SetDefault(log)

	eng, err := daemon.New(log)
	if err != nil {
		return fmt.Errorf("connecting to the daemon: %w", err)
	}

	req := &engine.Request{
		BaseImage: baseRef,
		Layers:    toLayers(plan.Layers),
		Target: engine.Target{
			Kind:    kind,
			Image:   targetRef,
			Tags:    plan.To.Tags,
			TarPath: buildArgs.TarPath,
		},
		AllowInsecure: plan.AllowInsecure,
	}
	outputs := build.Outputs{
		DigestPath:   plan.Outputs.Digest,
		ImageIDPath:  plan.Outputs.ImageID,
		MetadataPath: plan.Outputs.Metadata,
	}
	suggestions := build.Suggestions{
		ClearCacheCommand: "kiln cache clean",
		GenericPrefix:     "build failed",
	}

	orchestrator := build.NewOrchestrator(eng, console, log, req, outputs, suggestions)

	ctx := cmd.Context()
	baseSpec := credentialSpec(ctx, "FROM", "from", plan.From, reference.Domain(baseRef))
	targetSpec := credentialSpec(ctx, "TO", "to", plan.To, reference.Domain(targetRef))
	if err := orchestrator.ResolveCredentials(baseSpec, targetSpec); err != nil {
		return reportFailure(log, err)
	}

	outcome, err := orchestrator.Run(ctx)
	if err != nil {
		return reportFailure(log, err)
	}
	log.Debug("Build complete", "digest", outcome.Digest.String(), "imageId", outcome.ImageID.String(), "pushed", outcome.Pushed)
	return nil
}

func reportFailure(log *slog.Logger, err error) error {
	var buildErr *build.BuildError
	if errors.As(err, &buildErr) {
		log.Error(buildErr.Suggestion, "kind", buildErr.Kind.String())
	}
	return err
}

func credentialSpec(ctx context.Context, envPrefix, section string, img buildfile.ImageSpec, registryHost string) build.CredentialSpec {
	usernameEnv := "KILN_" + envPrefix + "_AUTH_USERNAME"
	passwordEnv := "KILN_" + envPrefix + "_AUTH_PASSWORD"
	spec := build.CredentialSpec{
		UsernameProperty: registry.PropertyValue{Name: usernameEnv, Value: os.Getenv(usernameEnv)},
		PasswordProperty: registry.PropertyValue{Name: passwordEnv, Value: os.Getenv(passwordEnv)},
		Auth: registry.AuthProperty{
			Username:           img.Auth.Username,
			Password:           img.Auth.Password,
			UsernameDescriptor: section + ".auth.username",
			PasswordDescriptor: section + ".auth.password",
		},
		Helper: img.CredHelper,
		Hint:   "the " + section + ".auth section in the build file or the " + usernameEnv + " and " + passwordEnv + " environment variables",
	}
	if cred := registry.InferGoogleCredential(ctx, registryHost); cred != nil {
		spec.Inferred = cred
		spec.InferredSource = registry.SourceInferred
	}
	return spec
}

func toLayers(specs []buildfile.LayerSpec) []engine.Layer {
	layers := make([]engine.Layer, len(specs))
	for i, spec := range specs {
		layers[i] = engine.Layer{Name: spec.Name, Files: spec.Files}
	}
	return layers
}

func targetKind(name string) (engine.TargetKind, error) {
	switch name {
	case "registry":
		return engine.TargetRegistry, nil
	case "daemon":
		return engine.TargetDaemon, nil
	case "tar":
		return engine.TargetTar, nil
	}
	return 0, fmt.Errorf("unknown target %q: must be one of registry, daemon, tar", name)
}

func useTTY() bool {
	switch RootArgs.Progress {
	case "tty":
		return true
	case "plain":
		return false
	}
	return logger.IsTTY(os.Stdout)
}
