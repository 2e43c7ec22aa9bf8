package pdb

import (
	"fmt"
	"strconv"
	"strings"
)

// Tidy rewrites lines into a consistent layout. Atom serials are renumbered from 1 in
// every model, chains are closed with TER records, models are closed with ENDMDL and the
// result ends with END. Existing TER, END, CONECT and MASTER records are dropped and
// regenerated where needed. Every record but the final END is padded to LineWidth.
//
// Outside strict mode a gap in residue numbering also opens a new TER block.
func Tidy(lines []string, strict bool) []string {
	out := make([]string, 0, len(lines)+2)
	serial := 0
	inModel := false

	// prev is the last ATOM/HETATM of the open block, empty once it is closed
	var prev string
	closeBlock := func() {
		if strings.HasPrefix(prev, "ATOM") {
			serial++
			out = append(out, terRecord(serial, prev))
		}
		prev = ""
	}

	for _, line := range lines {
		line = padLine(strings.TrimRight(line, " "))

		switch {
		case strings.HasPrefix(line, "ATOM"):
			if prev != "" && startsBlock(prev, line, strict) {
				closeBlock()
			}
			serial++
			line = setSerial(line, serial)
			out = append(out, line)
			prev = line
		case strings.HasPrefix(line, "HETATM"):
			if strings.HasPrefix(prev, "ATOM") {
				closeBlock()
			}
			serial++
			line = setSerial(line, serial)
			out = append(out, line)
			prev = line
		case strings.HasPrefix(line, "ANISOU"):
			if prev != "" {
				line = SetField(line, ColSerial, Field(prev, ColSerial))
			}
			out = append(out, line)
		case strings.HasPrefix(line, "MODEL"):
			if inModel {
				closeBlock()
				out = append(out, padLine("ENDMDL"))
			}
			prev = ""
			serial = 0
			inModel = true
			out = append(out, line)
		case strings.HasPrefix(line, "ENDMDL"):
			closeBlock()
			if inModel {
				out = append(out, padLine("ENDMDL"))
			}
			inModel = false
			serial = 0
		case isRegenerated(line):
			continue
		default:
			closeBlock()
			out = append(out, line)
		}
	}

	closeBlock()
	if inModel {
		out = append(out, padLine("ENDMDL"))
	}
	if len(out) > 0 {
		out = append(out, "END")
	}
	return out
}

// startsBlock reports whether line opens a new chain block after prev
func startsBlock(prev, line string, strict bool) bool {
	if Field(prev, ColChainID) != Field(line, ColChainID) {
		return true
	}
	if strict {
		return false
	}

	before, err := strconv.Atoi(TrimmedField(prev, ColResSeq))
	if err != nil {
		return false
	}
	after, err := strconv.Atoi(TrimmedField(line, ColResSeq))
	if err != nil {
		return false
	}
	return after-before > 1
}

func isRegenerated(line string) bool {
	record := TrimmedField(line, ColRecord)
	switch record {
	case "TER", "END", "CONECT", "MASTER":
		return true
	}
	return false
}

// terRecord closes the chain of atom, the last ATOM record of the block
func terRecord(serial int, atom string) string {
	return padLine(fmt.Sprintf("TER   %5d      %3s %1s%4s%1s",
		serial%100000,
		Field(atom, ColResName),
		Field(atom, ColChainID),
		Field(atom, ColResSeq),
		Field(atom, ColICode)))
}

func setSerial(line string, serial int) string {
	return SetField(line, ColSerial, fmt.Sprintf("%5d", serial%100000))
}

func padLine(line string) string {
	if len(line) >= LineWidth {
		return line
	}
	return line + strings.Repeat(" ", LineWidth-len(line))
}
