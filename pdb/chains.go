package pdb

import "sort"

const chainAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// IdentifyChainSeg returns the distinct segment IDs (first character of the segid
// field) and chain IDs found in ATOM/HETATM records. With sorted false the order
// is the order of first appearance.
func IdentifyChainSeg(lines []string, sorted bool) (segIDs, chainIDs []string) {
	segSeen := map[string]bool{}
	chainSeen := map[string]bool{}

	for _, line := range lines {
		if !IsAtom(line) {
			continue
		}

		if seg := TrimmedField(line, ColSegID); seg != "" {
			seg = seg[:1]
			if !segSeen[seg] {
				segSeen[seg] = true
				segIDs = append(segIDs, seg)
			}
		}
		if chain := TrimmedField(line, ColChainID); chain != "" && !chainSeen[chain] {
			chainSeen[chain] = true
			chainIDs = append(chainIDs, chain)
		}
	}

	if sorted {
		sort.Strings(segIDs)
		sort.Strings(chainIDs)
	}
	return segIDs, chainIDs
}

// ReadChainIDs returns the set of chain IDs of ATOM/HETATM records
func ReadChainIDs(lines []string) map[string]bool {
	return readAtomSection(lines, ColChainID)
}

// ReadSegIDs returns the set of segment IDs of ATOM/HETATM records
func ReadSegIDs(lines []string) map[string]bool {
	return readAtomSection(lines, ColSegID)
}

func readAtomSection(lines []string, col Column) map[string]bool {
	values := map[string]bool{}
	for _, line := range lines {
		if IsAtom(line) {
			values[TrimmedField(line, col)] = true
		}
	}
	return values
}

// ReplaceChain sets the chain ID of every chain-bearing record to chain
func ReplaceChain(lines []string, chain string) []string {
	return mapLines(lines, HasChainID, func(line string) string {
		return SetField(line, ColChainID, chain)
	})
}

// SwapSegIDChain copies the first character of the segment ID into the chain ID
// column. Records without a segment ID are left untouched.
func SwapSegIDChain(lines []string) []string {
	return mapLines(lines, IsAtom, func(line string) string {
		seg := TrimmedField(line, ColSegID)
		if seg == "" {
			return line
		}
		return SetField(line, ColChainID, seg[:1])
	})
}

// PlaceChainOnSeg copies the chain ID into the segment ID column
func PlaceChainOnSeg(lines []string) []string {
	return mapLines(lines, IsAtom, func(line string) string {
		chain := TrimmedField(line, ColChainID)
		if chain == "" {
			return line
		}
		return SetField(line, ColSegID, chain)
	})
}

// SolveNoChainIDNoSegID makes chain and segment IDs agree. Chain IDs win when present,
// otherwise segment IDs are copied onto chains, and when neither exists chain A is
// assigned to everything.
func SolveNoChainIDNoSegID(lines []string) []string {
	segs, chains := IdentifyChainSeg(lines, false)

	switch {
	case len(chains) > 0:
		return PlaceChainOnSeg(lines)
	case len(segs) > 0:
		return SwapSegIDChain(lines)
	default:
		return PlaceChainOnSeg(mapLines(lines, IsAtom, func(line string) string {
			return SetField(line, ColChainID, "A")
		}))
	}
}

// HomogenizeChains gives every record of a structure holding several chains the
// first chain ID found, and mirrors it into the segment ID.
func HomogenizeChains(lines []string) []string {
	_, chains := IdentifyChainSeg(lines, false)
	if len(chains) < 2 {
		return lines
	}
	return PlaceChainOnSeg(ReplaceChain(lines, chains[0]))
}

// CorrectEqualChainSegIDs renames chains repeated across structures. The first structure
// using a chain ID keeps it, later ones get the first letter no structure uses yet,
// mirrored into the segment ID.
func CorrectEqualChainSegIDs(structures [][]string) [][]string {
	used := map[string]bool{}
	for _, structure := range structures {
		for chain := range ReadChainIDs(structure) {
			used[chain] = true
		}
	}

	seen := map[string]bool{}
	result := make([][]string, len(structures))
	for i, structure := range structures {
		_, chains := IdentifyChainSeg(structure, true)

		renamed := structure
		for _, chain := range chains {
			if !seen[chain] {
				seen[chain] = true
				continue
			}

			newChain := nextFreeChain(used)
			if newChain == "" {
				zlog.Warn("no free chain identifier left, keeping duplicate")
				continue
			}
			used[newChain] = true
			seen[newChain] = true
			renamed = renameChain(renamed, chain, newChain)
		}
		result[i] = renamed
	}
	return result
}

func renameChain(lines []string, from, to string) []string {
	return mapLines(lines, IsAtom, func(line string) string {
		if TrimmedField(line, ColChainID) != from {
			return line
		}
		return SetField(SetField(line, ColChainID, to), ColSegID, to)
	})
}

func nextFreeChain(used map[string]bool) string {
	for _, r := range chainAlphabet {
		if !used[string(r)] {
			return string(r)
		}
	}
	return ""
}

func mapLines(lines []string, match func(string) bool, fn func(string) string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		if match(line) {
			line = fn(line)
		}
		out[i] = line
	}
	return out
}
