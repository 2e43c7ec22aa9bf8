package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/streamingfast/dockbox"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// ProjectContext contains the resolved configuration for a project.
// This consolidates the common pattern of loading the config, finding the
// manifest and resolving the backend that build, run and describe share.
type ProjectContext struct {
	Config      *dockbox.Config
	Location    *dockbox.ManifestLocation
	BackendType dockbox.BackendType
	Backend     dockbox.Backend
}

// projectFlags registers the flags locating and overriding the manifest
func projectFlags(flags *pflag.FlagSet) {
	flags.StringP("source", "s", "", "Directory where the manifest lookup starts (default: current directory)")
	flags.StringArray("set", nil, "Override a manifest field, key=value (repeatable)")
	flags.StringArray("override", nil, "JSON merge patch file applied to the manifest (repeatable)")
	flags.Bool("require-manifest", false, "Fail when no dockbox manifest is found instead of using defaults")
	backendFlag(flags)
}

func backendFlag(flags *pflag.FlagSet) {
	flags.String("backend", "", "Image backend: cli or engine (default: from manifest or config)")
}

// LoadProjectContext loads the config and manifest and resolves the backend
func LoadProjectContext(cmd *cobra.Command) (*ProjectContext, error) {
	config, err := dockbox.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	sourceDir, err := getDirFlag(cmd, "source")
	if err != nil {
		return nil, err
	}

	if required, _ := cmd.Flags().GetBool("require-manifest"); required {
		if _, err := dockbox.RequireManifest(sourceDir); err != nil {
			return nil, err
		}
	}

	overrides, err := manifestOverrides(cmd)
	if err != nil {
		return nil, err
	}

	location, err := dockbox.ResolveManifest(sourceDir, config, overrides...)
	if err != nil {
		return nil, err
	}

	cliBackend, _ := cmd.Flags().GetString("backend")
	backendType := dockbox.ResolveBackendType(cliBackend, location.Manifest, config)

	backend, err := dockbox.GetBackend(string(backendType), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get backend: %w", err)
	}

	zlog.Debug("loaded project context",
		zap.String("manifest", location.Path),
		zap.String("source_dir", location.SourceDir()),
		zap.String("backend", string(backendType)))

	return &ProjectContext{
		Config:      config,
		Location:    location,
		BackendType: backendType,
		Backend:     backend,
	}, nil
}

// LoadBackend resolves the backend from the --backend flag and the config alone
func LoadBackend(cmd *cobra.Command) (dockbox.Backend, error) {
	config, err := dockbox.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cliBackend, _ := cmd.Flags().GetString("backend")
	backendType := dockbox.ResolveBackendType(cliBackend, nil, config)
	return dockbox.GetBackend(string(backendType), nil)
}

// manifestOverrides collects the --override files and --set pairs as merge
// patches, files first
func manifestOverrides(cmd *cobra.Command) ([][]byte, error) {
	var patches [][]byte

	files, _ := cmd.Flags().GetStringArray("override")
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read override: %w", err)
		}
		patch, err := overridePatch(data, filepath.Ext(file))
		if err != nil {
			return nil, fmt.Errorf("invalid override %s: %w", file, err)
		}
		patches = append(patches, patch)
	}

	sets, _ := cmd.Flags().GetStringArray("set")
	if len(sets) > 0 {
		patch, err := dockbox.ParseSetFlags(sets)
		if err != nil {
			return nil, err
		}
		patches = append(patches, patch)
	}

	return patches, nil
}

// overridePatch converts a YAML or JSONC override file into a JSON merge patch
func overridePatch(data []byte, ext string) ([]byte, error) {
	switch ext {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	default:
		patch := jsonc.ToJSON(data)
		if !json.Valid(patch) {
			return nil, fmt.Errorf("not valid JSON")
		}
		return patch, nil
	}
}

// getDirFlag reads a directory flag, defaulting to the current working directory
func getDirFlag(cmd *cobra.Command, name string) (string, error) {
	dir, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to get %s flag: %w", name, err)
	}
	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
	}
	return dir, nil
}

// commandContext is cancelled on SIGINT and SIGTERM
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// shortDigest trims a sha256 digest for display
func shortDigest(digest string) string {
	digest = strings.TrimPrefix(digest, "sha256:")
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
