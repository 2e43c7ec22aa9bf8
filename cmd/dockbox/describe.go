package main

import (
	"fmt"
	"os"
	"strings"

	"charm.land/glamour/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/dockbox"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var DescribeCommand = Command(describeE,
	"describe",
	"Show the resolved manifest and the image it builds",
	Description(`
		Resolves the project manifest (defaults, --set and --override applied)
		and shows what 'dockbox build' would produce: the image reference,
		the installer, the system profiles and whether the image already
		exists. Nothing is built.
	`),
	Flags(func(flags *pflag.FlagSet) {
		projectFlags(flags)
		flags.Bool("dockerfile", false, "Print the generated Dockerfile only")
		flags.Bool("plain", false, "Print markdown without terminal rendering")
	}),
)

func describeE(cmd *cobra.Command, args []string) error {
	project, err := LoadProjectContext(cmd)
	if err != nil {
		return err
	}
	defer project.Backend.Close()

	plan, err := dockbox.NewImageBuilder(project.Location, project.Backend, nil).Plan()
	if err != nil {
		return err
	}

	if dockerfileOnly, _ := cmd.Flags().GetBool("dockerfile"); dockerfileOnly {
		cmd.Print(plan.Dockerfile)
		return nil
	}

	ctx, cancel := commandContext()
	defer cancel()

	exists, err := project.Backend.ImageExists(ctx, plan.Reference)
	if err != nil {
		zlog.Debug("unable to check image existence", zap.Error(err))
	}

	md := describeMarkdown(project, plan, exists, err == nil)

	plain, _ := cmd.Flags().GetBool("plain")
	if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		cmd.Print(md)
		return nil
	}

	rendered, err := glamour.Render(md, "dark")
	if err != nil {
		zlog.Debug("markdown rendering failed, printing raw", zap.Error(err))
		cmd.Print(md)
		return nil
	}
	cmd.Print(rendered)
	return nil
}

func describeMarkdown(project *ProjectContext, plan *dockbox.BuildPlan, exists, checked bool) string {
	m := project.Location.Manifest

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", m.Name)

	manifestPath := project.Location.Path
	if manifestPath == "" {
		manifestPath = "(none, defaults)"
	}

	status := "not built"
	switch {
	case !checked:
		status = "unknown (backend unreachable)"
	case exists:
		status = "built"
	}

	sb.WriteString("| Field | Value |\n|---|---|\n")
	row := func(field, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&sb, "| %s | `%s` |\n", field, value)
	}
	row("Manifest", manifestPath)
	row("Source", plan.SourceDir)
	row("Source digest", shortDigest(plan.SourceDigest))
	row("Image", plan.Reference)
	row("Status", status)
	row("Base image", m.BaseImage)
	row("Installer", m.Installer)
	row("Install command", m.ResolvedInstallCommand())
	row("Install root", m.InstallRoot)
	row("Entry point", m.Entrypoint)
	row("Workdir", m.Workdir)
	row("Shim", fmt.Sprintf("%t", m.UseShim()))
	row("Backend", string(project.BackendType))

	if len(plan.Profiles) > 0 {
		sb.WriteString("\n## Profiles\n\n")
		for _, name := range plan.Profiles {
			profile, _ := dockbox.GetProfile(name)
			fmt.Fprintf(&sb, "- **%s**: %s\n", name, profile.Description)
		}
	}

	if len(m.Env) > 0 {
		sb.WriteString("\n## Image environment\n\n")
		for _, env := range m.Env {
			fmt.Fprintf(&sb, "- `%s`\n", env)
		}
	}

	if len(m.Volumes) > 0 {
		sb.WriteString("\n## Volumes\n\n")
		for _, vol := range m.Volumes {
			fmt.Fprintf(&sb, "- `%s`\n", vol)
		}
	}

	return sb.String()
}
