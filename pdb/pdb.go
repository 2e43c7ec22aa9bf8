// Package pdb handles molecular structures stored in the fixed-column PDB text format.
//
// Every function works on lines without their trailing newline. Fields are addressed
// by Column values following the wwPDB ATOM/HETATM layout.
package pdb

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/streamingfast/logging"
)

var zlog, _ = logging.PackageLogger("pdb", "github.com/streamingfast/dockbox/pdb")

// LineWidth is the standard width of a PDB record
const LineWidth = 80

// Column is a half-open [Start, End) byte range of a PDB line
type Column struct {
	Start int
	End   int
}

// Width returns the number of characters the column spans
func (c Column) Width() int {
	return c.End - c.Start
}

var (
	ColRecord  = Column{0, 6}
	ColSerial  = Column{6, 11}
	ColName    = Column{12, 16}
	ColAltLoc  = Column{16, 17}
	ColResName = Column{17, 20}
	ColChainID = Column{21, 22}
	ColResSeq  = Column{22, 26}
	ColICode   = Column{26, 27}
	ColX       = Column{30, 38}
	ColY       = Column{38, 46}
	ColZ       = Column{46, 54}
	ColOcc     = Column{54, 60}
	ColTemp    = Column{60, 66}
	ColSegID   = Column{72, 76}
	ColElement = Column{76, 78}
	ColCharge  = Column{78, 80}
)

// Field returns the raw content of col, shorter lines yield whatever part exists
func Field(line string, col Column) string {
	if len(line) <= col.Start {
		return ""
	}
	end := col.End
	if end > len(line) {
		end = len(line)
	}
	return line[col.Start:end]
}

// TrimmedField returns Field with surrounding spaces removed
func TrimmedField(line string, col Column) string {
	return strings.TrimSpace(Field(line, col))
}

// SetField writes value into col. Lines shorter than LineWidth are padded with spaces
// first. value is left-aligned and padded or truncated to the column width.
func SetField(line string, col Column, value string) string {
	if len(line) < LineWidth {
		line += strings.Repeat(" ", LineWidth-len(line))
	}
	if len(line) < col.End {
		line += strings.Repeat(" ", col.End-len(line))
	}

	width := col.Width()
	if len(value) < width {
		value += strings.Repeat(" ", width-len(value))
	}
	return line[:col.Start] + value[:width] + line[col.End:]
}

// IsAtom reports whether line is an ATOM or HETATM record
func IsAtom(line string) bool {
	return strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM")
}

// HasChainID reports whether line is a record carrying a chain identifier
func HasChainID(line string) bool {
	return IsAtom(line) || strings.HasPrefix(line, "TER") || strings.HasPrefix(line, "ANISOU")
}

// ReadLines reads a PDB file into lines, trailing empty lines are dropped
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

// WriteLines writes lines to path, one per line with a trailing newline
func WriteLines(path string, lines []string) error {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}
