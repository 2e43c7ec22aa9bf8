package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/dockbox"
	"go.uber.org/zap"
)

var BuildCommand = Command(buildE,
	"build",
	"Build the container image of the project",
	Description(`
		Builds the image described by the project manifest (dockbox.yaml).
		The image is tagged with a digest of the generated Dockerfile and of
		the source tree, so an unchanged project is never rebuilt unless
		--force is given.
	`),
	Flags(func(flags *pflag.FlagSet) {
		projectFlags(flags)
		flags.Bool("force", false, "Rebuild even when an image for the current source already exists")
		flags.String("platform", "", "Target platform passed to docker build (e.g. linux/amd64)")
	}),
)

func buildE(cmd *cobra.Command, args []string) error {
	project, err := LoadProjectContext(cmd)
	if err != nil {
		return err
	}
	defer project.Backend.Close()

	force, _ := cmd.Flags().GetBool("force")
	platform, _ := cmd.Flags().GetString("platform")

	ctx, cancel := commandContext()
	defer cancel()

	wrapper := dockbox.NewWrapper(project.Location, project.Backend, nil)
	plan, err := wrapper.Build(ctx, dockbox.BuildOptions{
		Force:      force,
		Platform:   platform,
		ContextDir: project.Config.BuildDir(),
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	zlog.Debug("build completed", zap.String("reference", plan.Reference), zap.Bool("skipped", plan.Skipped))

	if plan.Skipped {
		cmd.Println(dimStyle.Render(fmt.Sprintf("Up to date: %s", plan.Reference)))
		return nil
	}

	cmd.Println(successStyle.Render(fmt.Sprintf("Built %s", plan.Reference)))
	return nil
}
