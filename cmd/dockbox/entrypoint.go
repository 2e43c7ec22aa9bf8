package main

import (
	"github.com/spf13/cobra"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/dockbox"
)

var EntrypointCommand = Command(entrypointE,
	"entrypoint -- [args...]",
	"Internal command: image entrypoint (not for direct use)",
	Description(`
		This command is the ENTRYPOINT of images built by dockbox. It changes
		into the working directory recorded in /etc/dockbox/contract.yaml and
		replaces itself with the packaged tool, forwarding every argument
		unmodified.

		Do not run this command directly - it is invoked automatically when
		the container starts.
	`),
)

// entrypointE is only reached through cobra when main's argv dispatch is bypassed
func entrypointE(cmd *cobra.Command, args []string) error {
	return dockbox.RunEntrypoint(args)
}
