package pdb

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

//go:embed embedded/default.top
var defaultTopology string

// ResidueSet holds the residue names a topology supports
type ResidueSet map[string]struct{}

// Has reports whether name is supported
func (s ResidueSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Add inserts names into the set
func (s ResidueSet) Add(names ...string) {
	for _, name := range names {
		s[name] = struct{}{}
	}
}

// Names returns the sorted residue names
func (s ResidueSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultResidues returns the residues of the embedded topology
func DefaultResidues() ResidueSet {
	set := ResidueSet{}
	names, _ := ReadSupportedResidues(strings.NewReader(defaultTopology))
	set.Add(names...)
	return set
}

// ReadSupportedResidues lists the residues declared in a CNS-style topology, i.e.
// the second word of every line whose first four characters read "resi" in any case.
func ReadSupportedResidues(r io.Reader) ([]string, error) {
	var residues []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		head := line
		if len(head) > 4 {
			head = head[:4]
		}
		if !strings.Contains(strings.ToLower(head), "resi") {
			continue
		}

		words := strings.Fields(line)
		if len(words) < 2 {
			continue
		}
		residues = append(residues, words[1])
	}
	return residues, scanner.Err()
}

// LoadResidues returns the default residues extended with those of every topology file
func LoadResidues(topologyFiles ...string) (ResidueSet, error) {
	set := DefaultResidues()
	for _, path := range topologyFiles {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open topology: %w", err)
		}
		names, err := ReadSupportedResidues(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read topology %s: %w", path, err)
		}
		set.Add(names...)
	}
	return set, nil
}
