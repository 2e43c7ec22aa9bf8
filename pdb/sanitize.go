package pdb

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// removedTags drop any line containing one of them
var removedTags = []string{"REMAR", "CTERB", "CTERA", "NTERA", "NTERB", "CONECT"}

// renames are applied in order, as plain substring replacements
var renames = [][2]string{
	{"HSD", "HIS"},
	{"HSE", "HIS"},
	{"HID", "HIS"},
	{"HIE", "HIS"},
	{"WAT ", "TIP3"},
	{" 0.00969", " 0.00   "},
}

// Sanitizer filters structures down to the residues a topology supports
type Sanitizer struct {
	// Residues are the supported residue names
	Residues ResidueSet

	// KeepRecords lists record names (e.g. "MODEL", "TER") retained even though
	// they carry no residue
	KeepRecords []string
}

// NewSanitizer returns a Sanitizer keeping only supported residues
func NewSanitizer(residues ResidueSet) *Sanitizer {
	return &Sanitizer{Residues: residues}
}

// Sanitize drops lines containing a removed tag, applies residue renames, keeps the
// lines whose residue is supported and terminates the result with END.
func (s *Sanitizer) Sanitize(lines []string) []string {
	var good []string
	for _, line := range lines {
		if containsAny(line, removedTags) {
			continue
		}

		for _, rename := range renames {
			line = strings.ReplaceAll(line, rename[0], rename[1])
		}

		if s.keepRecord(line) {
			good = append(good, line)
			continue
		}

		res := TrimmedField(line, ColResName)
		if res != "" && s.Residues.Has(res) {
			good = append(good, line)
		}
	}

	if len(good) > 0 && good[len(good)-1] != "END" {
		good = append(good, "END")
	}
	return good
}

// SanitizeFile sanitizes a PDB file. With overwrite the file is rewritten in place,
// otherwise the result goes to <stem>_cleaned<ext> next to it. Returns the written path.
func (s *Sanitizer) SanitizeFile(path string, overwrite bool) (string, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return "", err
	}

	good := s.Sanitize(lines)

	target := path
	if !overwrite {
		target = CleanedName(path)
	}
	if err := WriteLines(target, good); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}

	zlog.Debug("sanitized structure",
		zap.String("input", path),
		zap.String("output", target),
		zap.Int("lines_in", len(lines)),
		zap.Int("lines_out", len(good)))

	return target, nil
}

// CleanedName returns <stem>_cleaned<ext> in the directory of path
func CleanedName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_cleaned" + ext
}

func (s *Sanitizer) keepRecord(line string) bool {
	record := TrimmedField(line, ColRecord)
	for _, keep := range s.KeepRecords {
		if record == keep {
			return true
		}
	}
	return false
}

func containsAny(line string, tags []string) bool {
	for _, tag := range tags {
		if strings.Contains(line, tag) {
			return true
		}
	}
	return false
}
