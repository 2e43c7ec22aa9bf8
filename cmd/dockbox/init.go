package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/dockbox"
)

var InitCommand = Command(initE,
	"init [dir]",
	"Create a dockbox.yaml manifest for a source tree",
	Description(`
		Writes a dockbox.yaml manifest in the given directory (default: current
		directory). Omitted fields fall back to the defaults shown by
		'dockbox describe'. The source tree is checked against the chosen
		installer so a manifest is never written for a tree that can't be
		installed.
	`),
	Flags(func(flags *pflag.FlagSet) {
		flags.String("name", "", "Project name (default: directory name)")
		flags.String("entrypoint", "", "Executable invoked by the image (default: project name)")
		flags.String("installer", dockbox.DefaultInstaller, fmt.Sprintf("Installer, one of %v", dockbox.ListInstallers()))
		flags.String("base-image", "", "FROM image (default: from config)")
		flags.StringSlice("profile", nil, fmt.Sprintf("System profiles, from %v", dockbox.ListProfiles()))
		flags.Bool("force", false, "Overwrite an existing manifest")
	}),
)

func initE(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if len(args) > 1 {
		return fmt.Errorf("accepts at most one directory, received %d", len(args))
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	force, _ := cmd.Flags().GetBool("force")
	manifestPath := filepath.Join(absDir, dockbox.ManifestFileNames[0])
	if _, err := os.Stat(manifestPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", manifestPath)
	}

	manifest := &dockbox.Manifest{}
	manifest.Name, _ = cmd.Flags().GetString("name")
	manifest.Entrypoint, _ = cmd.Flags().GetString("entrypoint")
	manifest.Installer, _ = cmd.Flags().GetString("installer")
	manifest.BaseImage, _ = cmd.Flags().GetString("base-image")
	manifest.Profiles, _ = cmd.Flags().GetStringSlice("profile")

	config, err := dockbox.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Validate a defaulted copy, the file keeps only what was asked for
	resolved := *manifest
	resolved.ApplyDefaults(absDir, config)
	if err := resolved.Validate(); err != nil {
		return err
	}
	installer, _ := dockbox.GetInstaller(resolved.Installer)
	if err := dockbox.CheckInstallable(absDir, installer); err != nil {
		return err
	}

	if err := dockbox.SaveManifest(manifestPath, manifest); err != nil {
		return err
	}

	cmd.Println(successStyle.Render(fmt.Sprintf("Wrote %s", manifestPath)))
	cmd.Println(dimStyle.Render(fmt.Sprintf("  project %s, entry point %s", resolved.Name, resolved.Entrypoint)))
	return nil
}
