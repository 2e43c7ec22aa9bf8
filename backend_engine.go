package dockbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// DockerSocketEnvVar overrides the Docker socket used by the engine backend
const DockerSocketEnvVar = "DOCKBOX_DOCKER_SOCKET"

const enginePingTimeout = 5 * time.Second

// EngineBackend implements the Backend interface with the Docker Engine SDK
type EngineBackend struct {
	client *client.Client
}

// NewEngineBackend connects to DOCKER_HOST when set, otherwise to the first Docker
// socket found on this platform
func NewEngineBackend() (*EngineBackend, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if os.Getenv("DOCKER_HOST") == "" {
		if socket := dockerSocketPath(); socket != "" {
			opts = append(opts, client.WithHost("unix://"+socket))
		}
	}

	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	zlog.Debug("created engine backend", zap.String("host", c.DaemonHost()))
	return &EngineBackend{client: c}, nil
}

// Name returns the backend type name
func (b *EngineBackend) Name() BackendType {
	return BackendEngine
}

// Ping verifies the Docker daemon answers within a few seconds
func (b *EngineBackend) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, enginePingTimeout)
	defer cancel()

	if _, err := b.client.Ping(pingCtx); err != nil {
		return fmt.Errorf("docker daemon is not responding, is docker running? %w", err)
	}
	return nil
}

// ImageExists checks if the image is present locally
func (b *EngineBackend) ImageExists(ctx context.Context, ref string) (bool, error) {
	if _, err := b.client.ImageInspect(ctx, ref); err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	return true, nil
}

// InspectImage returns the details of ref
func (b *EngineBackend) InspectImage(ctx context.Context, ref string) (*ImageInfo, error) {
	resp, err := b.client.ImageInspect(ctx, ref)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, ref)
		}
		return nil, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	var labels map[string]string
	if resp.Config != nil {
		labels = resp.Config.Labels
	}

	info := newImageInfo(resp.ID, resp.RepoTags, labels, parseCreated(resp.Created), resp.Size)
	return &info, nil
}

// ListImages returns all images carrying the dockbox managed-by label
func (b *EngineBackend) ListImages(ctx context.Context) ([]ImageInfo, error) {
	summaries, err := b.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", ManagedFilter)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	infos := make([]ImageInfo, 0, len(summaries))
	for _, summary := range summaries {
		infos = append(infos, summaryToInfo(summary))
	}
	return infos, nil
}

// RemoveImage removes an image by reference or ID
func (b *EngineBackend) RemoveImage(ctx context.Context, ref string, force bool) error {
	zlog.Info("removing docker image", zap.String("image", ref))

	deleted, err := b.client.ImageRemove(ctx, ref, image.RemoveOptions{Force: force, PruneChildren: true})
	if err != nil {
		return fmt.Errorf("failed to remove image %s: %w", ref, err)
	}

	zlog.Debug("image removed", zap.String("image", ref), zap.Int("layers", len(deleted)))
	return nil
}

// Close releases the Docker client
func (b *EngineBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// summaryToInfo converts an ImageList entry to an ImageInfo
func summaryToInfo(s image.Summary) ImageInfo {
	return newImageInfo(s.ID, s.RepoTags, s.Labels, time.Unix(s.Created, 0), s.Size)
}

// dockerSocketPath returns the Docker socket path to use.
// Priority:
//  1. DOCKBOX_DOCKER_SOCKET environment variable (explicit override)
//  2. Platform-specific default paths
func dockerSocketPath() string {
	if envPath := os.Getenv(DockerSocketEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		zlog.Warn("DOCKBOX_DOCKER_SOCKET path does not exist", zap.String("path", envPath))
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates, "/var/run/docker.sock")
		if homeDir, _ := os.UserHomeDir(); homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, ".docker", "run", "docker.sock"))
		}
	default:
		candidates = []string{"/var/run/docker.sock"}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
