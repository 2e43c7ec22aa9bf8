package dockbox

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// BackendType represents the image inventory backend type
type BackendType string

const (
	// BackendCLI talks to docker through its command line
	BackendCLI BackendType = "cli"
	// BackendEngine talks to the Docker Engine API directly (honors DOCKER_HOST)
	BackendEngine BackendType = "engine"
)

// DefaultBackend is the default backend type when not specified
const DefaultBackend = BackendCLI

// ValidBackendTypes contains all valid backend type values
var ValidBackendTypes = []BackendType{BackendCLI, BackendEngine}

// ValidateBackend checks if a backend name is valid
func ValidateBackend(name string) error {
	switch BackendType(name) {
	case BackendCLI, BackendEngine:
		return nil
	case "":
		return nil // Empty means use default
	default:
		return fmt.Errorf("invalid backend %q, valid values: %v", name, ValidBackendTypes)
	}
}

// ImageInfo describes a dockbox image
type ImageInfo struct {
	// ID is the image ID
	ID string
	// Tags are the repository:tag references pointing at the image
	Tags []string
	// Name is the packaged project name
	Name string
	// Entrypoint is the executable the image runs
	Entrypoint string
	// Workdir is the run-time working directory
	Workdir string
	// SourceDigest is the digest of the source tree baked into the image
	SourceDigest string
	// Created is the image creation time
	Created time.Time
	// Size is the image size in bytes
	Size int64
	// Labels are all the image labels
	Labels map[string]string
}

// Reference returns the first tag of the image, or its ID when untagged
func (i ImageInfo) Reference() string {
	if len(i.Tags) > 0 {
		return i.Tags[0]
	}
	return i.ID
}

func newImageInfo(id string, tags []string, labels map[string]string, created time.Time, size int64) ImageInfo {
	sortedTags := append([]string(nil), tags...)
	sort.Strings(sortedTags)

	return ImageInfo{
		ID:           id,
		Tags:         sortedTags,
		Name:         labels[LabelName],
		Entrypoint:   labels[LabelEntrypoint],
		Workdir:      labels[LabelWorkdir],
		SourceDigest: labels[LabelSourceDigest],
		Created:      created,
		Size:         size,
		Labels:       labels,
	}
}

// Backend defines the interface to the image store
type Backend interface {
	// Name returns the backend type name
	Name() BackendType

	// Ping verifies the docker daemon is reachable
	Ping(ctx context.Context) error

	// ImageExists reports whether ref is present locally
	ImageExists(ctx context.Context, ref string) (bool, error)

	// InspectImage returns ref's details, or ErrImageNotFound
	InspectImage(ctx context.Context, ref string) (*ImageInfo, error)

	// ListImages returns every image carrying the dockbox managed-by label
	ListImages(ctx context.Context) ([]ImageInfo, error)

	// RemoveImage deletes ref
	RemoveImage(ctx context.Context, ref string, force bool) error

	// Close releases the backend resources
	Close() error
}

// GetBackend returns the appropriate backend implementation based on the backend type.
// If backendType is empty, it returns the default backend (cli). runner is used by the
// cli backend, nil means DefaultRunner.
func GetBackend(backendType string, runner Runner) (Backend, error) {
	if backendType == "" {
		backendType = string(DefaultBackend)
	}

	if err := ValidateBackend(backendType); err != nil {
		return nil, err
	}

	switch BackendType(backendType) {
	case BackendCLI:
		return NewCLIBackend(runner), nil
	case BackendEngine:
		return NewEngineBackend()
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

// ResolveBackendType determines the effective backend type from configuration sources.
// Priority order (highest to lowest):
// 1. CLI flag (cliBackend parameter)
// 2. Manifest (manifest.Backend)
// 3. Global config (config.Backend)
// 4. Hardcoded default (BackendCLI)
func ResolveBackendType(cliBackend string, manifest *Manifest, config *Config) BackendType {
	if cliBackend != "" {
		return BackendType(cliBackend)
	}

	if manifest != nil && manifest.Backend != "" {
		return BackendType(manifest.Backend)
	}

	if config != nil && config.Backend != "" {
		return BackendType(config.Backend)
	}

	return DefaultBackend
}
