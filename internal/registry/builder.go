// Package registry provides the container build/push capability: build an
// image from a source context, push it, and return its content-addressed
// digest reference rather than a mutable tag.
package registry

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/rollout-k8s/rolloutctl/internal/logging"
	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// Builder builds and pushes an application image, returning its digest-pinned
// artifact reference.
type Builder interface {
	BuildAndPush(ctx context.Context, contextDir string) (release.ArtifactRef, error)
}

// DockerBuilder implements [Builder] over the docker CLI.
type DockerBuilder struct {
	// Repository is the target image repository.
	Repository string
	// Dockerfile overrides the Dockerfile path within the build context.
	Dockerfile string
	// Logger receives build and push output.
	Logger *slog.Logger
}

// NewDockerBuilder constructs a docker CLI backed builder.
func NewDockerBuilder(repository string, logger *slog.Logger) *DockerBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerBuilder{Repository: repository, Logger: logger}
}

// BuildAndPush builds the context, pushes the image and resolves the pushed
// digest so the returned reference is immutable.
func (b *DockerBuilder) BuildAndPush(ctx context.Context, contextDir string) (release.ArtifactRef, error) {
	repo := strings.TrimSpace(b.Repository)
	if repo == "" {
		return release.ArtifactRef{}, fmt.Errorf("builder repository is empty: %w", release.ErrValidation)
	}

	buildRef := repo + ":build"

	buildArgs := []string{"build", "-t", buildRef}
	if strings.TrimSpace(b.Dockerfile) != "" {
		buildArgs = append(buildArgs, "-f", b.Dockerfile)
	}
	buildArgs = append(buildArgs, contextDir)

	if err := b.runLogged(ctx, "docker", buildArgs...); err != nil {
		return release.ArtifactRef{}, fmt.Errorf("docker build %q failed: %w", contextDir, err)
	}
	if err := b.runLogged(ctx, "docker", "push", buildRef); err != nil {
		return release.ArtifactRef{}, fmt.Errorf("docker push %q failed: %w", buildRef, err)
	}

	digest, err := b.pushedDigest(ctx, buildRef)
	if err != nil {
		return release.ArtifactRef{}, err
	}

	ref, err := release.ParseArtifactRef(repo + "@" + digest)
	if err != nil {
		return release.ArtifactRef{}, fmt.Errorf("pushed image %q produced an unusable digest: %w", buildRef, err)
	}
	b.Logger.Info("image built and pushed", "artifact", ref.String())
	return ref, nil
}

// pushedDigest reads back the repo digest docker recorded for the pushed ref.
func (b *DockerBuilder) pushedDigest(ctx context.Context, buildRef string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", "inspect", "--format", "{{index .RepoDigests 0}}", buildRef)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker inspect %q failed: %s: %w", buildRef, strings.TrimSpace(stderr.String()), err)
	}

	repoDigest := strings.TrimSpace(stdout.String())
	at := strings.LastIndex(repoDigest, "@")
	if at < 0 {
		return "", fmt.Errorf("docker inspect %q returned no repo digest (%q)", buildRef, repoDigest)
	}
	return repoDigest[at+1:], nil
}

// runLogged runs a command, forwarding its output to the builder's logger.
func (b *DockerBuilder) runLogged(ctx context.Context, name string, args ...string) error {
	b.Logger.Info("running command", "cmd", name, "args", args)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = logging.NewWriter(b.Logger)
	cmd.Stderr = logging.NewWriterAt(b.Logger, slog.LevelWarn)
	return cmd.Run()
}
