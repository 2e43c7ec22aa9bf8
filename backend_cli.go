package dockbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CLIBackend implements the Backend interface by running the docker CLI
type CLIBackend struct {
	runner Runner
}

// NewCLIBackend creates a new cli backend instance, a nil runner uses DefaultRunner
func NewCLIBackend(runner Runner) *CLIBackend {
	if runner == nil {
		runner = DefaultRunner
	}
	return &CLIBackend{runner: runner}
}

// Name returns the backend type name
func (b *CLIBackend) Name() BackendType {
	return BackendCLI
}

// output runs docker with args and returns its trimmed stdout
func (b *CLIBackend) output(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	err := b.runner.Run(ctx, &Command{Args: args, Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		return "", &cliError{args: args, stderr: strings.TrimSpace(stderr.String()), err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Ping verifies the docker daemon answers
func (b *CLIBackend) Ping(ctx context.Context) error {
	version, err := b.output(ctx, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return fmt.Errorf("docker daemon is not responding, is docker running? %w", err)
	}
	zlog.Debug("docker daemon reachable", zap.String("server_version", version))
	return nil
}

// ImageExists checks if the image is present locally
func (b *CLIBackend) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, err := b.InspectImage(ctx, ref)
	if errors.Is(err, ErrImageNotFound) {
		return false, nil
	}
	return err == nil, err
}

// InspectImage returns the details of ref
func (b *CLIBackend) InspectImage(ctx context.Context, ref string) (*ImageInfo, error) {
	infos, err := b.inspect(ctx, ref)
	if err != nil {
		var cerr *cliError
		if errors.As(err, &cerr) && cerr.notFound() {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, ref)
		}
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, ref)
	}
	return &infos[0], nil
}

// ListImages returns all images managed by dockbox
func (b *CLIBackend) ListImages(ctx context.Context) ([]ImageInfo, error) {
	output, err := b.output(ctx, "image", "ls", "--no-trunc", "--filter", "label="+ManagedFilter, "--format", "{{.ID}}")
	if err != nil {
		return nil, fmt.Errorf("docker image ls failed: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, line := range strings.Split(output, "\n") {
		id := strings.TrimSpace(line)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, nil
	}
	return b.inspect(ctx, ids...)
}

// RemoveImage removes an image by reference or ID
func (b *CLIBackend) RemoveImage(ctx context.Context, ref string, force bool) error {
	zlog.Info("removing docker image", zap.String("image", ref))

	args := []string{"image", "rm"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, ref)

	if _, err := b.output(ctx, args...); err != nil {
		return fmt.Errorf("docker image rm failed: %w", err)
	}
	return nil
}

// Close is a no-op, the cli backend holds no connection
func (b *CLIBackend) Close() error {
	return nil
}

// cliImage is the subset of `docker image inspect` output dockbox reads
type cliImage struct {
	ID       string   `json:"Id"`
	RepoTags []string `json:"RepoTags"`
	Created  string   `json:"Created"`
	Size     int64    `json:"Size"`
	Config   *struct {
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
}

func (b *CLIBackend) inspect(ctx context.Context, refs ...string) ([]ImageInfo, error) {
	output, err := b.output(ctx, append([]string{"image", "inspect"}, refs...)...)
	if err != nil {
		return nil, err
	}
	return parseInspectOutput([]byte(output))
}

// parseInspectOutput decodes the JSON array printed by `docker image inspect`
func parseInspectOutput(data []byte) ([]ImageInfo, error) {
	var images []cliImage
	if err := json.Unmarshal(data, &images); err != nil {
		return nil, fmt.Errorf("failed to parse docker image inspect output: %w", err)
	}

	infos := make([]ImageInfo, 0, len(images))
	for _, img := range images {
		var labels map[string]string
		if img.Config != nil {
			labels = img.Config.Labels
		}
		infos = append(infos, newImageInfo(img.ID, img.RepoTags, labels, parseCreated(img.Created), img.Size))
	}
	return infos, nil
}

func parseCreated(value string) time.Time {
	created, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return created
}

// cliError is a failed docker invocation with its stderr
type cliError struct {
	args   []string
	stderr string
	err    error
}

func (e *cliError) Error() string {
	if e.stderr == "" {
		return fmt.Sprintf("docker %s: %s", strings.Join(e.args, " "), e.err)
	}
	return fmt.Sprintf("docker %s: %s (stderr: %s)", strings.Join(e.args, " "), e.err, e.stderr)
}

func (e *cliError) Unwrap() error {
	return e.err
}

// notFound reports whether docker complained about a missing image
func (e *cliError) notFound() bool {
	stderr := strings.ToLower(e.stderr)
	return strings.Contains(stderr, "no such image") || strings.Contains(stderr, "not found")
}
