package main

import (
	"strings"

	"github.com/spf13/cobra"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/dockbox"
)

var ListCommand = Group("list", "List built-in installers and system profiles",
	Command(listInstallersE,
		"installers",
		"List the installers a manifest can name",
	),
	Command(listProfilesE,
		"profiles",
		"List the system profiles a manifest can install",
	),
)

func listInstallersE(cmd *cobra.Command, args []string) error {
	for _, name := range dockbox.ListInstallers() {
		installer, _ := dockbox.GetInstaller(name)
		cmd.Println(headerStyle.Render(name))
		cmd.Printf("  %s\n", installer.Description)

		command := installer.Command
		if command == "" {
			command = "(install_command from the manifest)"
		}
		cmd.Println(dimStyle.Render("  runs: " + command))

		if len(installer.RequiredFiles)+len(installer.AnyOfFiles) > 0 {
			cmd.Println(dimStyle.Render("  needs: " + describeRequirements(installer)))
		}
	}
	return nil
}

func listProfilesE(cmd *cobra.Command, args []string) error {
	for _, name := range dockbox.ListProfiles() {
		profile, _ := dockbox.GetProfile(name)
		line := headerStyle.Render(name) + "  " + profile.Description
		if len(profile.Dependencies) > 0 {
			line += dimStyle.Render(" (requires " + strings.Join(profile.Dependencies, ", ") + ")")
		}
		cmd.Println(line)
	}
	return nil
}

func describeRequirements(installer dockbox.Installer) string {
	var parts []string
	if len(installer.RequiredFiles) > 0 {
		parts = append(parts, strings.Join(installer.RequiredFiles, " and "))
	}
	if len(installer.AnyOfFiles) > 0 {
		parts = append(parts, "one of "+strings.Join(installer.AnyOfFiles, ", "))
	}
	return strings.Join(parts, " plus ")
}
