package pdb

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// SplitEnsemble writes every MODEL of the ensemble at path to <stem>_<model><ext> in
// dest, the directory of path when dest is empty. The written paths are returned
// sorted by model number.
func SplitEnsemble(path, dest string) ([]string, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, err
	}
	if dest == "" {
		dest = filepath.Dir(path)
	}

	models := ReadModels(lines)
	if len(models) == 0 {
		return []string{path}, nil
	}

	paths := make([]string, 0, len(models))
	for _, model := range models {
		target := suffixedName(path, dest, strconv.Itoa(model.Number))
		if err := WriteLines(target, terminate(model.Lines)); err != nil {
			return nil, fmt.Errorf("failed to write model %d: %w", model.Number, err)
		}
		paths = append(paths, target)
	}
	SortNumbered(paths)

	zlog.Debug("split ensemble", zap.String("input", path), zap.Int("models", len(models)))
	return paths, nil
}

// SplitByChain writes the records of each chain of path to <stem>_<chain><ext> next to it
func SplitByChain(path string) ([]string, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, err
	}

	var order []string
	byChain := map[string][]string{}
	for _, line := range lines {
		if !HasChainID(line) {
			continue
		}
		chain := TrimmedField(line, ColChainID)
		if chain == "" {
			continue
		}
		if _, ok := byChain[chain]; !ok {
			order = append(order, chain)
		}
		byChain[chain] = append(byChain[chain], line)
	}

	if len(order) == 0 {
		return []string{path}, nil
	}

	dir := filepath.Dir(path)
	paths := make([]string, 0, len(order))
	for _, chain := range order {
		target := suffixedName(path, dir, chain)
		if err := WriteLines(target, terminate(byChain[chain])); err != nil {
			return nil, fmt.Errorf("failed to write chain %s: %w", chain, err)
		}
		paths = append(paths, target)
	}
	return paths, nil
}

// SuffixVariations lists the files <stem><sep>*<ext> of fileName found in dir
func SuffixVariations(fileName, dir, sep string) ([]string, error) {
	base := filepath.Base(fileName)
	ext := filepath.Ext(base)
	pattern := filepath.Join(dir, strings.TrimSuffix(base, ext)+sep+"*"+ext)

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// NewModels returns the "_" suffix variations of path in dir, or path itself when
// there is none.
func NewModels(path, dir string) ([]string, error) {
	variations, err := SuffixVariations(path, dir, "_")
	if err != nil {
		return nil, err
	}
	if len(variations) == 0 {
		return []string{path}, nil
	}
	return variations, nil
}

// SortNumbered sorts paths by the trailing number of their stem, paths
// without one go last in lexical order.
func SortNumbered(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		ni, oki := trailingNumber(paths[i])
		nj, okj := trailingNumber(paths[j])
		switch {
		case oki && okj && ni != nj:
			return ni < nj
		case oki != okj:
			return oki
		}
		return paths[i] < paths[j]
	})
}

func trailingNumber(path string) (int, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndex(stem, "_")
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(stem[idx+1:])
	return n, err == nil
}

func suffixedName(path, dir, suffix string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+"_"+suffix+ext)
}

func terminate(lines []string) []string {
	out := append([]string(nil), lines...)
	if len(out) == 0 || out[len(out)-1] != "END" {
		out = append(out, "END")
	}
	return out
}
