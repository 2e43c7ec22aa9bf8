package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/dockbox"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var RunCommand = Command(runE,
	"run [flags] [--] [args...]",
	"Run the packaged tool against a working directory",
	Description(`
		Runs the project's entry point in a fresh container. The working
		directory (default: current directory) is mounted at the image
		workdir and every argument after the flags is forwarded to the tool
		unmodified, use -- to forward arguments that look like dockbox flags.

		The image is built first when it doesn't exist for the current
		source, unless --no-build is given. The tool's exit status becomes
		the exit status of this command.

		With --stage, the PDB structures of the working directory are
		prepared for the tool before it starts (ion charges, chain and
		segment IDs, unsupported residues removed).
	`),
	Flags(func(flags *pflag.FlagSet) {
		// Everything after the first positional argument belongs to the tool
		flags.SetInterspersed(false)

		projectFlags(flags)
		flags.StringP("workdir", "w", "", "Host directory mounted as the tool's working directory (default: current directory)")
		flags.Bool("no-build", false, "Fail instead of building a missing image")
		flags.Bool("rebuild", false, "Force an image build before running")
		flags.StringArrayP("env", "e", nil, "Environment variable for the tool, NAME=VALUE or NAME to pass the host value (repeatable)")
		flags.StringArrayP("volume", "v", nil, "Extra mount, hostpath:containerpath[:ro] (repeatable)")
		flags.BoolP("tty", "t", false, "Allocate a pseudo terminal (default: when stdin and stdout are terminals)")
		flags.Bool("map-user", true, "Run the tool as the calling user so outputs stay owned by you (default: from config)")

		flags.Bool("stage", false, "Prepare the PDB structures of the working directory before running")
		flags.StringArray("topology", nil, "Extra topology file declaring supported residues (repeatable, implies --stage)")
		flags.Bool("split-models", false, "Split ensembles into one file per model (implies --stage)")
		flags.Bool("split-chains", false, "Split structures into one file per chain (implies --stage)")
	}),
)

func runE(cmd *cobra.Command, args []string) error {
	project, err := LoadProjectContext(cmd)
	if err != nil {
		return err
	}
	defer project.Backend.Close()

	workingDir, err := getDirFlag(cmd, "workdir")
	if err != nil {
		return err
	}

	noBuild, _ := cmd.Flags().GetBool("no-build")
	rebuild, _ := cmd.Flags().GetBool("rebuild")
	envs, _ := cmd.Flags().GetStringArray("env")
	volumes, _ := cmd.Flags().GetStringArray("volume")

	if noBuild && rebuild {
		return fmt.Errorf("--no-build and --rebuild are mutually exclusive")
	}

	tty, _ := cmd.Flags().GetBool("tty")
	if !cmd.Flags().Changed("tty") {
		tty = term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	}

	mapUser := project.Config.MapUser
	if cmd.Flags().Changed("map-user") {
		mapUser, _ = cmd.Flags().GetBool("map-user")
	}

	opts := dockbox.RunOptions{
		WorkingDir: workingDir,
		Args:       args,
		NoBuild:    noBuild,
		Rebuild:    rebuild,
		Env:        dockbox.ResolveEnvs(project.Config.Envs, envs),
		Volumes:    volumes,
		TTY:        tty,
		MapUser:    mapUser,
		Stage:      stageOptionsFromFlags(cmd, workingDir),

		BuildContextDir: project.Config.BuildDir(),

		Stdin:  cmd.InOrStdin(),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}

	zlog.Debug("running packaged tool",
		zap.String("working_dir", workingDir),
		zap.Strings("args", args),
		zap.Bool("tty", tty),
		zap.Bool("stage", opts.Stage != nil))

	ctx, cancel := commandContext()
	defer cancel()

	return dockbox.NewWrapper(project.Location, project.Backend, nil).Run(ctx, opts)
}

// stageOptionsFromFlags returns nil when no staging flag is set
func stageOptionsFromFlags(cmd *cobra.Command, workingDir string) *dockbox.StageOptions {
	stage, _ := cmd.Flags().GetBool("stage")
	topologies, _ := cmd.Flags().GetStringArray("topology")
	splitModels, _ := cmd.Flags().GetBool("split-models")
	splitChains, _ := cmd.Flags().GetBool("split-chains")

	if !stage && len(topologies) == 0 && !splitModels && !splitChains {
		return nil
	}

	return &dockbox.StageOptions{
		Dir:           workingDir,
		TopologyFiles: topologies,
		SplitModels:   splitModels,
		SplitChains:   splitChains,
	}
}
