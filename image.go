package dockbox

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Version is set via ldflags at build time.
// It selects the dockbox binary image copied into built images.
var Version = "dev"

// BinaryImage is the container image containing the dockbox binary
const BinaryImage = "ghcr.io/streamingfast/dockbox"

// DevModeEnvVar, set to 1, builds images with a locally cross-compiled dockbox binary
const DevModeEnvVar = "DOCKBOX_DEV"

// ShimPath is where the dockbox binary lives inside built images
const ShimPath = "/usr/local/bin/dockbox"

// ShimEntrypoint is the ENTRYPOINT of images using the shim
var ShimEntrypoint = []string{ShimPath, "entrypoint", "--"}

// ImageBuilder builds the image described by a manifest
type ImageBuilder struct {
	Location *ManifestLocation
	Backend  Backend
	Runner   Runner
}

// BuildOptions controls a build
type BuildOptions struct {
	// Force rebuilds even when the image already exists
	Force bool

	// Platform is passed to docker build --platform when set
	Platform string

	// ContextDir holds the temporary build contexts (default: system temp dir)
	ContextDir string

	Stdout io.Writer
	Stderr io.Writer
}

// BuildPlan is everything a build produces before docker runs
type BuildPlan struct {
	SourceDir       string
	SourceDigest    string
	Dockerfile      string
	Contract        *Contract
	Reference       string
	LatestReference string
	Profiles        []string

	// Skipped is set when the image already existed and nothing was built
	Skipped bool
}

// TargetArch represents the target architecture for cross-compilation
type TargetArch struct {
	// GOARCH is the Go architecture name (amd64, arm64)
	GOARCH string
	// DockerPlatform is the Docker platform string (linux/amd64, linux/arm64)
	DockerPlatform string
}

// NewImageBuilder creates a new image builder, a nil runner uses DefaultRunner
func NewImageBuilder(location *ManifestLocation, backend Backend, runner Runner) *ImageBuilder {
	if runner == nil {
		runner = DefaultRunner
	}
	return &ImageBuilder{
		Location: location,
		Backend:  backend,
		Runner:   runner,
	}
}

// GetTargetArch detects the target architecture from Docker's default platform.
// This ensures we build for the same architecture that Docker will run containers on.
func GetTargetArch(ctx context.Context, runner Runner) (*TargetArch, error) {
	var stdout bytes.Buffer
	err := runner.Run(ctx, &Command{Args: []string{"info", "--format", "{{.Architecture}}"}, Stdout: &stdout})
	if err != nil {
		zlog.Warn("failed to detect Docker architecture, defaulting to amd64", zap.Error(err))
		return &TargetArch{GOARCH: "amd64", DockerPlatform: "linux/amd64"}, nil
	}

	arch := strings.TrimSpace(stdout.String())
	zlog.Debug("detected Docker architecture", zap.String("arch", arch))

	switch arch {
	case "aarch64", "arm64":
		return &TargetArch{GOARCH: "arm64", DockerPlatform: "linux/arm64"}, nil
	case "x86_64", "amd64":
		return &TargetArch{GOARCH: "amd64", DockerPlatform: "linux/amd64"}, nil
	default:
		return nil, fmt.Errorf("unsupported Docker architecture: %s", arch)
	}
}

// ImageTag computes the content tag of an image: the first 12 hex characters of
// sha256(dockerfile || sourceDigest)
func ImageTag(dockerfile, sourceDigest string) string {
	h := sha256.New()
	h.Write([]byte(dockerfile))
	h.Write([]byte(sourceDigest))
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// binaryVersion returns the dockbox version copied into images.
// In dev mode (DOCKBOX_DEV=1), returns "dev" to indicate local build.
func binaryVersion() string {
	if isDevMode() {
		return "dev"
	}
	return Version
}

// isDevMode returns true if DOCKBOX_DEV=1 is set
func isDevMode() bool {
	return os.Getenv(DevModeEnvVar) == "1"
}

// Plan checks the source tree is installable and computes the Dockerfile, contract
// and reference of the image. Nothing is built.
func (b *ImageBuilder) Plan() (*BuildPlan, error) {
	m := b.Location.Manifest
	sourceDir := b.Location.SourceDir()

	installer, ok := GetInstaller(m.Installer)
	if !ok {
		return nil, fmt.Errorf("unknown installer %q", m.Installer)
	}
	if err := CheckInstallable(sourceDir, installer); err != nil {
		return nil, err
	}

	digest, err := SourceDigest(sourceDir, m.Ignore)
	if err != nil {
		return nil, fmt.Errorf("failed to compute source digest: %w", err)
	}

	profiles, err := ResolveProfiles(mergeProfiles(installer.Profiles, m.Profiles))
	if err != nil {
		return nil, err
	}

	contract := NewContract(m, digest)
	dockerfile, err := GenerateDockerfile(m, digest, profiles, isDevMode())
	if err != nil {
		return nil, fmt.Errorf("failed to generate Dockerfile: %w", err)
	}

	tag := ImageTag(dockerfile, digest)
	return &BuildPlan{
		SourceDir:       sourceDir,
		SourceDigest:    digest,
		Dockerfile:      dockerfile,
		Contract:        contract,
		Reference:       m.Image + ":" + tag,
		LatestReference: m.Image + ":latest",
		Profiles:        profiles,
	}, nil
}

// GenerateDockerfile creates the Dockerfile installing the source tree (copied to
// src/ in the build context) under the manifest's install_root and exposing its
// entry point as the image ENTRYPOINT.
func GenerateDockerfile(m *Manifest, sourceDigest string, profiles []string, devMode bool) (string, error) {
	var sb strings.Builder

	sb.WriteString("# Auto-generated by dockbox\n")

	shim := m.UseShim()
	if shim && !devMode && Version == "dev" {
		return "", fmt.Errorf("%w: no %s:%s release image, set %s=1 to cross-compile it or disable the shim with shim: false",
			ErrShimUnavailable, BinaryImage, Version, DevModeEnvVar)
	}
	if shim && !devMode {
		sb.WriteString(fmt.Sprintf("FROM %s:%s AS dockbox-bin\n\n", BinaryImage, Version))
	}
	sb.WriteString(fmt.Sprintf("FROM %s\n\n", m.BaseImage))

	labels := ImageLabels(m, sourceDigest)
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, err := dockerfileQuote(labels[key])
		if err != nil {
			return "", fmt.Errorf("label %s: %w", key, err)
		}
		sb.WriteString(fmt.Sprintf("LABEL %s=%s\n", key, value))
	}
	sb.WriteString("\n")

	for _, name := range profiles {
		profile, ok := GetProfile(name)
		if !ok {
			return "", fmt.Errorf("unknown profile: %s", name)
		}

		sb.WriteString(fmt.Sprintf("# Profile: %s\n", name))
		sb.WriteString(fmt.Sprintf("# %s\n", profile.Description))
		sb.WriteString(profile.DockerfileSnippet)
		sb.WriteString("\n")
	}

	for _, env := range m.Env {
		name, value, _ := strings.Cut(env, "=")
		quoted, err := dockerfileQuote(value)
		if err != nil {
			return "", fmt.Errorf("env %s: %w", name, err)
		}
		sb.WriteString(fmt.Sprintf("ENV %s=%s\n", name, quoted))
	}
	if len(m.Env) > 0 {
		sb.WriteString("\n")
	}

	sb.WriteString("# Install the source tree\n")
	sb.WriteString(fmt.Sprintf("COPY src/ %s/\n", m.InstallRoot))
	sb.WriteString(fmt.Sprintf("WORKDIR %s\n", m.InstallRoot))
	sb.WriteString(fmt.Sprintf("RUN %s\n\n", m.ResolvedInstallCommand()))

	sb.WriteString("# The entry point must be reachable on PATH\n")
	sb.WriteString(fmt.Sprintf("RUN command -v %s >/dev/null 2>&1 || { echo \"entry point %s not found on PATH\" >&2; exit 1; }\n\n",
		m.Entrypoint, m.Entrypoint))

	if shim {
		if devMode {
			sb.WriteString("# Copy dockbox binary (dev mode - from build context)\n")
			sb.WriteString(fmt.Sprintf("COPY dockbox %s\n", ShimPath))
		} else {
			sb.WriteString("# Copy dockbox binary from release image\n")
			sb.WriteString(fmt.Sprintf("COPY --from=dockbox-bin /dockbox %s\n", ShimPath))
		}
		sb.WriteString(fmt.Sprintf("RUN chmod +x %s\n", ShimPath))
	}
	sb.WriteString(fmt.Sprintf("COPY contract.yaml %s\n\n", DefaultContractPath))

	sb.WriteString(fmt.Sprintf("WORKDIR %s\n", m.Workdir))

	entrypoint := []string{m.Entrypoint}
	if shim {
		entrypoint = ShimEntrypoint
	}
	encoded, err := json.Marshal(entrypoint)
	if err != nil {
		return "", err
	}
	// ENTRYPOINT resets the base image CMD, so invocation arguments alone reach the tool
	sb.WriteString(fmt.Sprintf("ENTRYPOINT %s\n", encoded))

	return sb.String(), nil
}

// dockerfileQuote double quotes value for an ENV or LABEL instruction so the builder
// reads it literally. Values spanning several lines cannot be expressed.
func dockerfileQuote(value string) (string, error) {
	if strings.ContainsAny(value, "\r\n") {
		return "", fmt.Errorf("value %q spans several lines", value)
	}

	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range value {
		switch r {
		case '\\', '"', '$':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String(), nil
}

// Build builds the image unless it already exists. The returned plan carries the
// image reference to run. A failed docker build is returned as *BuildError.
func (b *ImageBuilder) Build(ctx context.Context, opts BuildOptions) (*BuildPlan, error) {
	plan, err := b.Plan()
	if err != nil {
		return nil, err
	}

	if !opts.Force && b.Backend != nil {
		exists, err := b.Backend.ImageExists(ctx, plan.Reference)
		if err != nil {
			zlog.Debug("failed to check for existing image", zap.Error(err))
		}
		if exists {
			zlog.Debug("using existing image",
				zap.String("image", plan.Reference),
				zap.String("source_digest", plan.SourceDigest))
			plan.Skipped = true
			return plan, nil
		}
	}

	zlog.Info("building image",
		zap.String("image", plan.Reference),
		zap.String("source", plan.SourceDir),
		zap.Strings("profiles", plan.Profiles),
		zap.String("dockbox_version", binaryVersion()),
		zap.Bool("dev_mode", isDevMode()))

	if opts.ContextDir != "" {
		if err := os.MkdirAll(opts.ContextDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create build context directory: %w", err)
		}
	}
	tempDir, err := os.MkdirTemp(opts.ContextDir, "dockbox-build-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	if err := b.writeContext(tempDir, plan); err != nil {
		return nil, err
	}

	platform := opts.Platform
	if isDevMode() && b.Location.Manifest.UseShim() {
		targetArch, err := GetTargetArch(ctx, b.Runner)
		if err != nil {
			return nil, fmt.Errorf("failed to detect target architecture: %w", err)
		}
		if err := buildDevBinary(ctx, tempDir, targetArch); err != nil {
			return nil, fmt.Errorf("failed to build dev binary: %w", err)
		}
		if platform == "" {
			platform = targetArch.DockerPlatform
		}
	}

	args := []string{"build"}
	if platform != "" {
		args = append(args, "--platform", platform)
	}
	args = append(args,
		"-t", plan.Reference,
		"-t", plan.LatestReference,
		"-f", filepath.Join(tempDir, "Dockerfile"),
		tempDir)

	err = b.Runner.Run(ctx, &Command{Args: args, Stdout: opts.Stdout, Stderr: opts.Stderr})
	if err != nil {
		return nil, &BuildError{Image: plan.Reference, Err: err}
	}

	zlog.Info("image built successfully", zap.String("image", plan.Reference))
	return plan, nil
}

// writeContext lays out the build context: Dockerfile, contract.yaml and src/
func (b *ImageBuilder) writeContext(dir string, plan *BuildPlan) error {
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(plan.Dockerfile), 0644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	if err := WriteContract(filepath.Join(dir, "contract.yaml"), plan.Contract); err != nil {
		return err
	}

	if err := CopySource(plan.SourceDir, filepath.Join(dir, "src"), b.Location.Manifest.Ignore); err != nil {
		return fmt.Errorf("failed to copy source tree: %w", err)
	}

	zlog.Debug("prepared build context",
		zap.String("path", dir),
		zap.Int("dockerfile_size", len(plan.Dockerfile)))
	return nil
}

// buildDevBinary cross-compiles dockbox for the target architecture and places it in the build context
func buildDevBinary(ctx context.Context, buildDir string, targetArch *TargetArch) error {
	fmt.Fprintf(os.Stderr, "Building dockbox binary for %s (dev mode)...\n", targetArch.DockerPlatform)

	binaryPath := filepath.Join(buildDir, "dockbox")

	srcDir, err := findSourceDir()
	if err != nil {
		return fmt.Errorf("failed to find dockbox source directory: %w", err)
	}

	zlog.Debug("cross-compiling dockbox",
		zap.String("src_dir", srcDir),
		zap.String("output", binaryPath),
		zap.String("goarch", targetArch.GOARCH))

	cmd := exec.CommandContext(ctx, "go", "build", "-o", binaryPath, "./cmd/dockbox")
	cmd.Dir = srcDir
	cmd.Env = append(os.Environ(),
		"GOOS=linux",
		"GOARCH="+targetArch.GOARCH,
		"CGO_ENABLED=0",
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build failed: %w", err)
	}
	return nil
}

// findSourceDir attempts to find the dockbox source directory
func findSourceDir() (string, error) {
	if cwd, err := os.Getwd(); err == nil && isSourceDir(cwd) {
		return cwd, nil
	}

	// Walk up from the running binary
	if execPath, err := os.Executable(); err == nil {
		dir := filepath.Dir(execPath)
		for i := 0; i < 5; i++ {
			if isSourceDir(dir) {
				return dir, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	gopath := os.Getenv("GOPATH")
	if gopath == "" {
		homeDir, _ := os.UserHomeDir()
		gopath = filepath.Join(homeDir, "go")
	}
	candidate := filepath.Join(gopath, "src", "github.com", "streamingfast", "dockbox")
	if isSourceDir(candidate) {
		return candidate, nil
	}

	return "", fmt.Errorf("cannot find dockbox source directory; ensure DOCKBOX_DEV=1 is run from the dockbox repo directory")
}

// isSourceDir checks if a directory looks like the dockbox source directory
func isSourceDir(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(dir, "cmd", "dockbox")); err != nil {
		return false
	}
	return true
}

// CleanImages removes every dockbox image, or only those of the named project when
// name is set. Returns the references removed.
func CleanImages(ctx context.Context, backend Backend, name string) ([]string, error) {
	zlog.Info("cleaning dockbox images", zap.String("name", name))

	images, err := backend.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	var removed []string
	for _, img := range images {
		if name != "" && img.Name != name {
			continue
		}

		if err := backend.RemoveImage(ctx, img.ID, true); err != nil {
			zlog.Warn("failed to remove image",
				zap.String("image", img.Reference()),
				zap.Error(err))
			continue
		}
		removed = append(removed, img.Reference())
	}

	return removed, nil
}

// mergeProfiles combines profile lists, dropping duplicates and keeping first-seen order
func mergeProfiles(lists ...[]string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, list := range lists {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				result = append(result, p)
			}
		}
	}
	return result
}
