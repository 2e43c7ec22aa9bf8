package dockbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ContractVersion is the current version of the runtime contract format.
// Increment this when making breaking changes to the contract structure.
const ContractVersion = 1

// DefaultContractPath is where the build bakes the contract into the image
const DefaultContractPath = "/etc/dockbox/contract.yaml"

const (
	// ContractPathEnvVar overrides the contract location read by the entrypoint
	ContractPathEnvVar = "DOCKBOX_CONTRACT"

	// EntrypointEnvVar names the entry point when no contract file exists
	EntrypointEnvVar = "DOCKBOX_ENTRYPOINT"

	// WorkdirEnvVar names the working directory when no contract file exists
	WorkdirEnvVar = "DOCKBOX_WORKDIR"
)

// Contract is the runtime contract exchanged between `dockbox build` (host) and
// `dockbox entrypoint` (container). It states what invoking the image runs and where.
type Contract struct {
	// Version is the contract format version for compatibility checking
	Version int `yaml:"version"`

	// Name is the packaged project name
	Name string `yaml:"name"`

	// Entrypoint is the executable name looked up on PATH
	Entrypoint string `yaml:"entrypoint"`

	// Workdir is the directory the entry point starts in
	Workdir string `yaml:"workdir"`

	// InstallRoot is where the source tree was installed
	InstallRoot string `yaml:"install_root,omitempty"`

	// SourceDigest is the digest of the installed source tree
	SourceDigest string `yaml:"source_digest,omitempty"`
}

// NewContract returns the contract of the image built from m
func NewContract(m *Manifest, sourceDigest string) *Contract {
	return &Contract{
		Version:      ContractVersion,
		Name:         m.Name,
		Entrypoint:   m.Entrypoint,
		Workdir:      m.Workdir,
		InstallRoot:  m.InstallRoot,
		SourceDigest: sourceDigest,
	}
}

// MarshalContract serializes the contract, stamping the current version
func MarshalContract(contract *Contract) ([]byte, error) {
	contract.Version = ContractVersion

	data, err := yaml.Marshal(contract)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal contract: %w", err)
	}
	return data, nil
}

// WriteContract writes the contract to path, creating parent directories
func WriteContract(path string, contract *Contract) error {
	data, err := MarshalContract(contract)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create contract directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write contract: %w", err)
	}
	return nil
}

// ReadContract reads the contract at path.
// Returns an error if the contract version is incompatible.
func ReadContract(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract: %w", err)
	}

	var contract Contract
	if err := yaml.Unmarshal(data, &contract); err != nil {
		return nil, fmt.Errorf("failed to parse contract: %w", err)
	}

	if contract.Version == 0 {
		return nil, fmt.Errorf("contract %s missing version field", path)
	}

	if contract.Version > ContractVersion {
		return nil, fmt.Errorf("contract version %d is newer than supported version %d; please update dockbox", contract.Version, ContractVersion)
	}

	if contract.Entrypoint == "" {
		return nil, fmt.Errorf("contract %s has no entrypoint", path)
	}
	if contract.Workdir == "" {
		contract.Workdir = DefaultWorkdir
	}

	return &contract, nil
}

// LoadRuntimeContract reads the contract baked into the image. Without a contract
// file, DOCKBOX_ENTRYPOINT and DOCKBOX_WORKDIR describe it instead.
func LoadRuntimeContract() (*Contract, error) {
	path := os.Getenv(ContractPathEnvVar)
	if path == "" {
		path = DefaultContractPath
	}

	contract, err := ReadContract(path)
	if err == nil {
		return contract, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	entrypoint := os.Getenv(EntrypointEnvVar)
	if entrypoint == "" {
		return nil, fmt.Errorf("no contract at %s and %s is not set", path, EntrypointEnvVar)
	}

	workdir := os.Getenv(WorkdirEnvVar)
	if workdir == "" {
		workdir = DefaultWorkdir
	}

	return &Contract{
		Version:    ContractVersion,
		Entrypoint: entrypoint,
		Workdir:    workdir,
	}, nil
}
