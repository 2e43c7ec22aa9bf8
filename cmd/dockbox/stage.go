package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/dockbox"
)

var StageCommand = Command(stageE,
	"stage [files...]",
	"Prepare PDB structures of a working directory",
	Description(`
		Prepares PDB structures the way 'dockbox run --stage' does, without
		running anything. Without files, every *.pdb file of the working
		directory is staged.

		For each structure, ions get explicit charges, missing chain or
		segment IDs are filled in and residues unknown to the topology are
		removed. Chain IDs are then made unique across structures, atoms are
		renumbered and chains closed with TER records. Results are written next
		to the inputs as <name>_cleaned.pdb unless --in-place.
	`),
	Flags(func(flags *pflag.FlagSet) {
		flags.StringP("workdir", "w", "", "Directory holding the structures (default: current directory)")
		flags.StringArray("topology", nil, "Extra topology file declaring supported residues (repeatable)")
		flags.Bool("split-models", false, "Split ensembles into one file per model")
		flags.Bool("split-chains", false, "Split structures into one file per chain")
		flags.Bool("in-place", false, "Overwrite the inputs instead of writing <name>_cleaned.pdb")
		flags.Bool("strict-tidy", false, "Only insert TER records between chains, not at residue numbering gaps")
		flags.Int("concurrency", 0, "Structures processed at once (default: one per CPU)")
	}),
)

func stageE(cmd *cobra.Command, args []string) error {
	workingDir, err := getDirFlag(cmd, "workdir")
	if err != nil {
		return err
	}

	topologies, _ := cmd.Flags().GetStringArray("topology")
	splitModels, _ := cmd.Flags().GetBool("split-models")
	splitChains, _ := cmd.Flags().GetBool("split-chains")
	inPlace, _ := cmd.Flags().GetBool("in-place")
	strictTidy, _ := cmd.Flags().GetBool("strict-tidy")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	ctx, cancel := commandContext()
	defer cancel()

	result, err := dockbox.Stage(ctx, dockbox.StageOptions{
		Dir:           workingDir,
		Files:         args,
		TopologyFiles: topologies,
		SplitModels:   splitModels,
		SplitChains:   splitChains,
		InPlace:       inPlace,
		StrictTidy:    strictTidy,
		Concurrency:   concurrency,
	})
	if err != nil {
		return fmt.Errorf("staging failed: %w", err)
	}

	if len(result.Inputs) == 0 {
		cmd.Println(warnStyle.Render("No structures found"))
		return nil
	}

	for _, output := range result.Outputs {
		rel, err := filepath.Rel(workingDir, output)
		if err != nil {
			rel = output
		}
		cmd.Println(dimStyle.Render("  " + rel))
	}
	cmd.Println(successStyle.Render(fmt.Sprintf("Staged %d structure(s), wrote %d file(s)", len(result.Inputs), len(result.Outputs))))
	return nil
}
