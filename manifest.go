package dockbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kaptinlin/jsonmerge"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseImage is the FROM image of generated Dockerfiles
	DefaultBaseImage = "python:3.9"

	// DefaultWorkdir is the run-time working directory inside the container
	DefaultWorkdir = "/data"

	// DefaultImageRepository prefixes image names derived from the project name
	DefaultImageRepository = "dockbox"
)

// ManifestFileNames are looked up, in order, in every directory walked by FindManifest
var ManifestFileNames = []string{"dockbox.yaml", "dockbox.yml", "dockbox.jsonc", "dockbox.json"}

// DefaultIgnore lists the patterns never copied into the image nor hashed
var DefaultIgnore = []string{".git", "__pycache__", "*.pyc", ".dockbox"}

// Manifest describes how a source tree is packaged and what the image runs
type Manifest struct {
	// Name identifies the project (default: base name of the source directory)
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Source is the source tree, relative to the manifest directory (default: ".")
	Source string `yaml:"source,omitempty" json:"source,omitempty"`

	// Image is the image repository (default: dockbox/<name>)
	Image string `yaml:"image,omitempty" json:"image,omitempty"`

	// BaseImage is the FROM image
	BaseImage string `yaml:"base_image,omitempty" json:"base_image,omitempty"`

	// Installer names the installer profile used to install the source tree
	Installer string `yaml:"installer,omitempty" json:"installer,omitempty"`

	// InstallCommand replaces the installer's default command
	InstallCommand string `yaml:"install_command,omitempty" json:"install_command,omitempty"`

	// InstallRoot is where the source tree is copied (default: /opt/<name>)
	InstallRoot string `yaml:"install_root,omitempty" json:"install_root,omitempty"`

	// Workdir is the run-time working directory (default: /data)
	Workdir string `yaml:"workdir,omitempty" json:"workdir,omitempty"`

	// Entrypoint is the executable name invoked by the image (default: <name>)
	Entrypoint string `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`

	// Profiles are system profiles installed before the source tree
	Profiles []string `yaml:"profiles,omitempty" json:"profiles,omitempty"`

	// Ignore holds glob patterns excluded from the copy and the source digest
	Ignore []string `yaml:"ignore,omitempty" json:"ignore,omitempty"`

	// Env holds KEY=VALUE pairs baked into the image
	Env []string `yaml:"env,omitempty" json:"env,omitempty"`

	// Volumes are extra run-time mounts, format "hostpath:containerpath[:ro]"
	// Paths starting with ./ or ../ are relative to the manifest location
	Volumes []string `yaml:"volumes,omitempty" json:"volumes,omitempty"`

	// Shim controls whether the image ENTRYPOINT is the dockbox entrypoint (default: true)
	Shim *bool `yaml:"shim,omitempty" json:"shim,omitempty"`

	// Backend overrides the global image inventory backend
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`
}

// ManifestLocation contains info about a loaded manifest
type ManifestLocation struct {
	// Path is the absolute path to the manifest file, empty when no file exists
	// and the manifest was synthesized from defaults
	Path string

	// Dir is the directory relative paths of the manifest resolve against
	Dir string

	// Manifest is the parsed configuration
	Manifest *Manifest
}

// SourceDir returns the absolute path of the source tree
func (l *ManifestLocation) SourceDir() string {
	source := l.Manifest.Source
	if source == "" {
		source = "."
	}
	if filepath.IsAbs(source) {
		return filepath.Clean(source)
	}
	return filepath.Join(l.Dir, source)
}

// UseShim reports whether the dockbox entrypoint shim fronts the entry point
func (m *Manifest) UseShim() bool {
	return m.Shim == nil || *m.Shim
}

// FindManifest searches for a manifest file starting from the given directory
// and walking up the directory tree. Returns nil if no manifest is found.
func FindManifest(startDir string) (*ManifestLocation, error) {
	absPath, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absPath
	for {
		for _, name := range ManifestFileNames {
			manifestPath := filepath.Join(currentDir, name)
			if _, err := os.Stat(manifestPath); err != nil {
				continue
			}

			manifest, err := LoadManifest(manifestPath)
			if err != nil {
				return nil, err
			}

			zlog.Debug("found manifest",
				zap.String("path", manifestPath),
				zap.String("name", manifest.Name))

			return &ManifestLocation{
				Path:     manifestPath,
				Dir:      currentDir,
				Manifest: manifest,
			}, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	zlog.Debug("no manifest found", zap.String("start_dir", absPath))
	return nil, nil
}

// RequireManifest is FindManifest failing with ErrManifestNotFound when no manifest exists
func RequireManifest(startDir string) (*ManifestLocation, error) {
	location, err := FindManifest(startDir)
	if err != nil {
		return nil, err
	}
	if location == nil {
		return nil, fmt.Errorf("%w in %s or its parents", ErrManifestNotFound, startDir)
	}
	return location, nil
}

// LoadManifest parses a manifest file. Files ending in .json or .jsonc may carry comments.
func LoadManifest(manifestPath string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	manifest, err := ParseManifest(data, filepath.Ext(manifestPath))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", manifestPath, err)
	}
	return manifest, nil
}

// ParseManifest decodes manifest content, ext selects the format (".yaml", ".jsonc", ...)
func ParseManifest(data []byte, ext string) (*Manifest, error) {
	var manifest Manifest

	switch ext {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&manifest); err != nil {
			return nil, err
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&manifest); err != nil {
			// An empty document is a valid, all-defaults manifest
			if errors.Is(err, io.EOF) {
				return &manifest, nil
			}
			return nil, err
		}
	}

	return &manifest, nil
}

// SaveManifest writes the manifest as yaml
func SaveManifest(manifestPath string, manifest *Manifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}

	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ResolveManifest finds the manifest governing dir, or synthesizes a default one rooted
// at dir, then applies overrides and defaults and validates the result.
func ResolveManifest(dir string, config *Config, overrides ...[]byte) (*ManifestLocation, error) {
	location, err := FindManifest(dir)
	if err != nil {
		return nil, err
	}

	if location == nil {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		location = &ManifestLocation{Dir: absDir, Manifest: &Manifest{}}
	}

	if len(overrides) > 0 {
		merged, err := ApplyOverrides(location.Manifest, overrides...)
		if err != nil {
			return nil, err
		}
		location.Manifest = merged
	}

	location.Manifest.ApplyDefaults(location.SourceDir(), config)
	if err := location.Manifest.Validate(); err != nil {
		return nil, err
	}

	return location, nil
}

// ApplyDefaults fills every unset field. sourceDir names the project when Name is empty.
func (m *Manifest) ApplyDefaults(sourceDir string, config *Config) {
	if m.Source == "" {
		m.Source = "."
	}
	if m.Name == "" {
		m.Name = sanitizeName(filepath.Base(sourceDir))
	}
	if m.Image == "" {
		m.Image = DefaultImageRepository + "/" + m.Name
	}
	if m.BaseImage == "" {
		m.BaseImage = DefaultBaseImage
		if config != nil && config.DefaultBaseImage != "" {
			m.BaseImage = config.DefaultBaseImage
		}
	}
	if m.Installer == "" {
		m.Installer = DefaultInstaller
	}
	if m.InstallRoot == "" {
		m.InstallRoot = "/opt/" + m.Name
	}
	if m.Workdir == "" {
		m.Workdir = DefaultWorkdir
	}
	if m.Entrypoint == "" {
		m.Entrypoint = m.Name
	}
	if m.Ignore == nil {
		m.Ignore = append([]string{}, DefaultIgnore...)
	}
	if m.Backend == "" && config != nil {
		m.Backend = config.Backend
	}
}

// Validate checks the manifest describes a runnable image
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest: name is required")
	}
	if m.Entrypoint == "" || strings.ContainsAny(m.Entrypoint, " \t\n") {
		return fmt.Errorf("manifest: entrypoint %q must be a single executable name", m.Entrypoint)
	}
	if !path.IsAbs(m.InstallRoot) {
		return fmt.Errorf("manifest: install_root %q must be an absolute path", m.InstallRoot)
	}
	if !path.IsAbs(m.Workdir) {
		return fmt.Errorf("manifest: workdir %q must be an absolute path", m.Workdir)
	}
	if pathWithin(m.Workdir, m.InstallRoot) || pathWithin(m.InstallRoot, m.Workdir) {
		return fmt.Errorf("manifest: workdir %q and install_root %q must not overlap", m.Workdir, m.InstallRoot)
	}

	installer, ok := GetInstaller(m.Installer)
	if !ok {
		return fmt.Errorf("manifest: unknown installer %q, available: %v", m.Installer, ListInstallers())
	}
	if installer.Command == "" && m.InstallCommand == "" {
		return fmt.Errorf("manifest: installer %q requires install_command", m.Installer)
	}

	for _, profile := range m.Profiles {
		if _, ok := GetProfile(profile); !ok {
			return fmt.Errorf("manifest: unknown profile %q, available: %v", profile, ListProfiles())
		}
	}

	for _, env := range m.Env {
		if name, _, ok := strings.Cut(env, "="); !ok || name == "" {
			return fmt.Errorf("manifest: env entry %q must be KEY=VALUE", env)
		}
	}

	for _, vol := range m.Volumes {
		if _, _, _, err := ParseVolumeSpec(vol); err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
	}

	if err := ValidateBackend(m.Backend); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}

	return nil
}

// ApplyOverrides merges JSON merge patches (RFC 7386) onto a copy of the manifest.
// A null value in a patch resets the field to its default.
func ApplyOverrides(manifest *Manifest, patches ...[]byte) (*Manifest, error) {
	doc, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}

	for _, patch := range patches {
		result, err := jsonmerge.Merge(doc, patch)
		if err != nil {
			return nil, fmt.Errorf("failed to apply manifest override: %w", err)
		}
		doc = result.Doc
	}

	var merged Manifest
	decoder := json.NewDecoder(bytes.NewReader(doc))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&merged); err != nil {
		return nil, fmt.Errorf("invalid manifest override: %w", err)
	}

	zlog.Debug("applied manifest overrides", zap.Int("count", len(patches)))
	return &merged, nil
}

// ParseSetFlags turns "key=value" pairs into a merge patch. Values that parse as JSON
// (numbers, booleans, arrays, null) keep their type, anything else is a string.
func ParseSetFlags(sets []string) ([]byte, error) {
	patch := make(map[string]json.RawMessage, len(sets))
	for _, set := range sets {
		key, value, ok := strings.Cut(set, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q (expected key=value)", set)
		}

		raw := json.RawMessage(value)
		if !json.Valid(raw) {
			quoted, err := json.Marshal(value)
			if err != nil {
				return nil, err
			}
			raw = quoted
		}
		patch[key] = raw
	}

	return json.Marshal(patch)
}

// sanitizeName lowercases and replaces characters docker refuses in repository names
func sanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteRune('-')
		}
	}
	return strings.Trim(sb.String(), "-_.")
}

// pathWithin reports whether p equals dir or lives below it
func pathWithin(p, dir string) bool {
	p, dir = path.Clean(p), path.Clean(dir)
	if p == dir {
		return true
	}
	if dir == "/" {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}
