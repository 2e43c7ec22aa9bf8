package pdb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetField(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		col   Column
		value string
		want  string
	}{
		{"pads short line", "TER", ColChainID, "A", "TER" + strings.Repeat(" ", 18) + "A" + strings.Repeat(" ", 58)},
		{"left aligns value", strings.Repeat(" ", 80), ColSegID, "B", strings.Repeat(" ", 72) + "B" + strings.Repeat(" ", 7)},
		{"truncates value", strings.Repeat(" ", 80), ColChainID, "XY", strings.Repeat(" ", 21) + "X" + strings.Repeat(" ", 58)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SetField(tt.line, tt.col, tt.value)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, LineWidth)
		})
	}
}

func TestField(t *testing.T) {
	line := "ATOM      3  CA  ARG B   4      37.080  43.455  -3.421  1.00  0.00           C  "

	assert.Equal(t, "ATOM  ", Field(line, ColRecord))
	assert.Equal(t, "CA", TrimmedField(line, ColName))
	assert.Equal(t, "ARG", Field(line, ColResName))
	assert.Equal(t, "B", Field(line, ColChainID))
	assert.Equal(t, "C", TrimmedField(line, ColElement))
	assert.Equal(t, "", Field("TER", ColSegID))
}

func TestReadSupportedResidues(t *testing.T) {
	topology := strings.Join([]string{
		"remarks custom topology",
		"RESIdue DA2  {nucleotide}",
		"  atom C1 end",
		"resi DE3",
		"Residue DI",
		"RESI DO",
		"RESIdue DU1",
		"presidue not-a-residue",
	}, "\n")

	residues, err := ReadSupportedResidues(strings.NewReader(topology))
	require.NoError(t, err)
	assert.Equal(t, []string{"DA2", "DE3", "DI", "DO", "DU1"}, residues)
}

func TestLoadResidues(t *testing.T) {
	dir := t.TempDir()
	topology := filepath.Join(dir, "ligand.top")
	require.NoError(t, os.WriteFile(topology, []byte("RESIdue LIG\n"), 0644))

	set, err := LoadResidues(topology)
	require.NoError(t, err)
	assert.True(t, set.Has("LIG"))
	assert.True(t, set.Has("ALA"))
	assert.True(t, set.Has("TIP3"))
	assert.False(t, set.Has("XYZ"))

	_, err = LoadResidues(filepath.Join(dir, "missing.top"))
	require.Error(t, err)
}

func TestSanitize(t *testing.T) {
	residues := ResidueSet{}
	residues.Add("ARG", "HIS", "TIP")

	input := []string{
		"REMARK generated",
		"ATOM      1  N   ARG A   1      37.080  43.455  -3.421  1.00  0.00           N  ",
		"ATOM      2  CA  HSD A   2      33.861  45.127  -2.233  1.00  0.00           C  ",
		"ATOM      3  CA  LIG A   3      35.081  45.036   1.305  1.00  0.00           C  ",
		"HETATM    4  O   WAT W   4      35.081  45.036   1.305  1.00  0.00           O  ",
		"CONECT    1    2",
		"TER",
	}

	got := NewSanitizer(residues).Sanitize(input)
	assert.Equal(t, []string{
		"ATOM      1  N   ARG A   1      37.080  43.455  -3.421  1.00  0.00           N  ",
		"ATOM      2  CA  HIS A   2      33.861  45.127  -2.233  1.00  0.00           C  ",
		"HETATM    4  O   TIP3W   4      35.081  45.036   1.305  1.00  0.00           O  ",
		"END",
	}, got)

	t.Run("keeps records", func(t *testing.T) {
		s := &Sanitizer{Residues: residues, KeepRecords: []string{"MODEL", "ENDMDL"}}
		got := s.Sanitize([]string{"MODEL        1", input[1], "ENDMDL", "END"})
		assert.Equal(t, []string{"MODEL        1", input[1], "ENDMDL", "END"}, got)
	})

	t.Run("empty result has no END", func(t *testing.T) {
		assert.Empty(t, NewSanitizer(residues).Sanitize([]string{"REMARK only"}))
	})
}

func TestSanitizeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "complex.pdb")
	require.NoError(t, WriteLines(path, []string{
		"REMARK header",
		"ATOM      1  N   ARG A   1      37.080  43.455  -3.421  1.00  0.00           N  ",
	}))

	s := NewSanitizer(DefaultResidues())

	cleaned, err := s.SanitizeFile(path, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "complex_cleaned.pdb"), cleaned)

	lines, err := ReadLines(cleaned)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Equal(t, "END", lines[1])

	original, err := ReadLines(path)
	require.NoError(t, err)
	assert.Len(t, original, 2)
	assert.Equal(t, "REMARK header", original[0])

	written, err := s.SanitizeFile(path, true)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	lines, err = ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, "END", lines[len(lines)-1])
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdb")
	require.NoError(t, os.WriteFile(path, []byte("ATOM\r\nEND\n\n\n"), 0644))

	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ATOM", "END"}, lines)
}
