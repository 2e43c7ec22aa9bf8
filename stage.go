package dockbox

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/streamingfast/dockbox/pdb"
)

// StageOptions controls the preparation of PDB inputs in a working directory
type StageOptions struct {
	// Dir is the working directory holding the structures
	Dir string

	// Files restricts staging to these structures, relative to Dir. Empty stages
	// every *.pdb file of Dir.
	Files []string

	// TopologyFiles extend the supported residues of the embedded topology
	TopologyFiles []string

	// SplitModels writes every MODEL of an ensemble to its own file
	SplitModels bool

	// SplitChains writes every chain of a single structure to its own file
	SplitChains bool

	// InPlace rewrites inputs instead of writing <stem>_cleaned.pdb next to them
	InPlace bool

	// StrictTidy only closes chains on chain ID changes, not on residue numbering gaps
	StrictTidy bool

	// Concurrency bounds the structures processed at once, 0 means one per CPU
	Concurrency int
}

// StageResult lists the structures read and written by Stage
type StageResult struct {
	Inputs  []string
	Outputs []string
}

type stagedStructure struct {
	path     string
	lines    []string
	ensemble bool
}

// Stage prepares the structures of opts.Dir for the wrapped tool. Each structure
// gets ion charges, consistent chain and segment IDs and is filtered to the supported
// residues. Chain IDs are then made unique across structures and every structure is
// tidied before being written. The first failure cancels the remaining work.
func Stage(ctx context.Context, opts StageOptions) (*StageResult, error) {
	inputs, err := stageInputs(opts)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		zlog.Info("no structures to stage", zap.String("dir", opts.Dir))
		return &StageResult{}, nil
	}

	residues, err := pdb.LoadResidues(opts.TopologyFiles...)
	if err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	structures := make([]*stagedStructure, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := prepareStructure(path, residues)
			if err != nil {
				return err
			}
			structures[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chains := make([][]string, len(structures))
	for i, s := range structures {
		chains[i] = s.lines
	}
	for i, lines := range pdb.CorrectEqualChainSegIDs(chains) {
		structures[i].lines = lines
	}

	outputs := make([][]string, len(structures))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, s := range structures {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			written, err := writeStructure(s, opts)
			if err != nil {
				return err
			}
			outputs[i] = written
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &StageResult{Inputs: inputs}
	for _, written := range outputs {
		result.Outputs = append(result.Outputs, written...)
	}

	zlog.Info("staging complete",
		zap.String("dir", opts.Dir),
		zap.Int("inputs", len(result.Inputs)),
		zap.Int("outputs", len(result.Outputs)))
	return result, nil
}

func stageInputs(opts StageOptions) ([]string, error) {
	if len(opts.Files) > 0 {
		inputs := make([]string, 0, len(opts.Files))
		for _, file := range opts.Files {
			if !filepath.IsAbs(file) {
				file = filepath.Join(opts.Dir, file)
			}
			inputs = append(inputs, file)
		}
		return inputs, nil
	}

	matches, err := filepath.Glob(filepath.Join(opts.Dir, "*.pdb"))
	if err != nil {
		return nil, fmt.Errorf("failed to list structures: %w", err)
	}
	sort.Strings(matches)

	var inputs []string
	for _, match := range matches {
		if isStagedOutput(match) {
			continue
		}
		inputs = append(inputs, match)
	}
	return inputs, nil
}

// isStagedOutput matches <stem>_cleaned.pdb and the <stem>_cleaned_<n>.pdb split files
func isStagedOutput(path string) bool {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.HasSuffix(stem, "_cleaned") || strings.Contains(stem, "_cleaned_")
}

func prepareStructure(path string, residues pdb.ResidueSet) (*stagedStructure, error) {
	lines, err := pdb.ReadLines(path)
	if err != nil {
		return nil, err
	}

	ensemble := pdb.IsEnsemble(lines)

	lines = pdb.AddChargesToIons(lines)
	lines = pdb.SolveNoChainIDNoSegID(lines)
	lines = pdb.HomogenizeChains(lines)

	sanitizer := pdb.NewSanitizer(residues)
	if ensemble {
		if err := pdb.ModelsHaveSameLabels(lines); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		sanitizer.KeepRecords = []string{"MODEL", "ENDMDL"}
	}
	lines = sanitizer.Sanitize(lines)

	zlog.Debug("prepared structure",
		zap.String("path", path),
		zap.Bool("ensemble", ensemble),
		zap.Int("lines", len(lines)))

	return &stagedStructure{path: path, lines: lines, ensemble: ensemble}, nil
}

func writeStructure(s *stagedStructure, opts StageOptions) ([]string, error) {
	target := s.path
	if !opts.InPlace {
		target = pdb.CleanedName(s.path)
	}
	if err := pdb.WriteLines(target, pdb.Tidy(s.lines, opts.StrictTidy)); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", target, err)
	}

	switch {
	case s.ensemble && opts.SplitModels:
		return pdb.SplitEnsemble(target, filepath.Dir(target))
	case !s.ensemble && opts.SplitChains:
		return pdb.SplitByChain(target)
	}
	return []string{target}, nil
}
