package dockbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultInstaller is the installer used when the manifest doesn't name one
const DefaultInstaller = "pip"

// Installer describes how a package manager installs the copied source tree
type Installer struct {
	// Name is the unique identifier for this installer
	Name string

	// Description provides a human-readable explanation of the installer
	Description string

	// Command is run from the install root, empty means the manifest must
	// provide install_command
	Command string

	// RequiredFiles must all exist at the root of the source tree
	RequiredFiles []string

	// AnyOfFiles lists files of which at least one must exist
	AnyOfFiles []string

	// Profiles are system profiles the installer needs
	Profiles []string
}

var pythonProjectFiles = []string{"pyproject.toml", "setup.py", "setup.cfg"}

// BuiltinInstallers contains all available installers
var BuiltinInstallers = map[string]Installer{
	"pip": {
		Name:        "pip",
		Description: "pip install of a Python project (pyproject.toml, setup.py or setup.cfg)",
		Command:     "pip install --no-cache-dir .",
		AnyOfFiles:  pythonProjectFiles,
	},
	"pip-editable": {
		Name:        "pip-editable",
		Description: "Editable pip install, the source tree stays importable in place",
		Command:     "pip install --no-cache-dir -e .",
		AnyOfFiles:  pythonProjectFiles,
	},
	"conda": {
		Name:          "conda",
		Description:   "conda environment update from environment.yml followed by a pip install",
		Command:       "conda env update -n base -f environment.yml && pip install --no-cache-dir .",
		RequiredFiles: []string{"environment.yml"},
		AnyOfFiles:    pythonProjectFiles,
	},
	"custom": {
		Name:        "custom",
		Description: "Runs the manifest's install_command as-is",
	},
}

// GetInstaller retrieves an installer by name
func GetInstaller(name string) (Installer, bool) {
	installer, ok := BuiltinInstallers[name]
	return installer, ok
}

// ListInstallers returns a sorted list of all available installer names
func ListInstallers() []string {
	return sortedKeys(BuiltinInstallers)
}

// ResolvedInstallCommand returns the command run at build time for this manifest
func (m *Manifest) ResolvedInstallCommand() string {
	if m.InstallCommand != "" {
		return m.InstallCommand
	}
	installer, _ := GetInstaller(m.Installer)
	return installer.Command
}

// CheckInstallable verifies sourceDir carries the files the installer needs.
// Returned errors wrap ErrNotInstallable.
func CheckInstallable(sourceDir string, installer Installer) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotInstallable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNotInstallable, sourceDir)
	}

	for _, name := range installer.RequiredFiles {
		if !fileExists(filepath.Join(sourceDir, name)) {
			return fmt.Errorf("%w: installer %q requires %s in %s", ErrNotInstallable, installer.Name, name, sourceDir)
		}
	}

	if len(installer.AnyOfFiles) > 0 {
		found := false
		for _, name := range installer.AnyOfFiles {
			if fileExists(filepath.Join(sourceDir, name)) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: installer %q requires one of %s in %s",
				ErrNotInstallable, installer.Name, strings.Join(installer.AnyOfFiles, ", "), sourceDir)
		}
	}

	return nil
}

// Profile is a set of system packages installed before the source tree
type Profile struct {
	// Name is the unique identifier for this profile
	Name string

	// Description provides a human-readable explanation of what this profile provides
	Description string

	// Dependencies lists other profiles that must be installed before this one
	Dependencies []string

	// DockerfileSnippet contains the Dockerfile commands to install this profile's tools
	DockerfileSnippet string
}

// BuiltinProfiles contains all available built-in profiles
var BuiltinProfiles = map[string]Profile{
	"build-essential": {
		Name:        "build-essential",
		Description: "C/C++ compilers and headers for packages with native extensions",
		DockerfileSnippet: `RUN apt-get update && apt-get install -y --no-install-recommends build-essential && \
    apt-get clean && rm -rf /var/lib/apt/lists/*
`,
	},
	"git": {
		Name:        "git",
		Description: "git, for installers resolving VCS dependencies",
		DockerfileSnippet: `RUN apt-get update && apt-get install -y --no-install-recommends git ca-certificates && \
    apt-get clean && rm -rf /var/lib/apt/lists/*
`,
	},
	"mpi": {
		Name:         "mpi",
		Description:  "OpenMPI runtime and headers (mpi4py and similar)",
		Dependencies: []string{"build-essential"},
		DockerfileSnippet: `RUN apt-get update && apt-get install -y --no-install-recommends openmpi-bin libopenmpi-dev && \
    apt-get clean && rm -rf /var/lib/apt/lists/*
`,
	},
}

// GetProfile retrieves a profile by name
func GetProfile(name string) (Profile, bool) {
	profile, ok := BuiltinProfiles[name]
	return profile, ok
}

// ListProfiles returns a sorted list of all available profile names
func ListProfiles() []string {
	return sortedKeys(BuiltinProfiles)
}

// ResolveProfiles returns the full list of profiles including all dependencies.
// Dependencies are listed before the profiles that depend on them.
func ResolveProfiles(names []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	var resolve func(name string) error
	resolve = func(name string) error {
		if seen[name] {
			return nil
		}

		profile, ok := GetProfile(name)
		if !ok {
			return fmt.Errorf("unknown profile: %s", name)
		}

		seen[name] = true
		for _, dep := range profile.Dependencies {
			if err := resolve(dep); err != nil {
				return err
			}
		}

		result = append(result, name)
		return nil
	}

	for _, name := range names {
		if err := resolve(name); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
