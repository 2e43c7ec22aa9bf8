package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/dockbox"
)

var CleanCommand = Command(cleanE,
	"clean [name]",
	"Remove images built by dockbox",
	Description(`
		Removes every image labeled as built by dockbox, or only the images of
		the named project. Images of other tools are never touched.
	`),
	Flags(func(flags *pflag.FlagSet) {
		backendFlag(flags)
		flags.BoolP("yes", "y", false, "Don't ask for confirmation")
	}),
)

func cleanE(cmd *cobra.Command, args []string) error {
	backend, err := LoadBackend(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	if len(args) > 1 {
		return fmt.Errorf("accepts at most one project name, received %d", len(args))
	}

	name := ""
	if len(args) == 1 {
		name = args[0]
	}

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		target := "all dockbox images"
		if name != "" {
			target = fmt.Sprintf("the images of project %q", name)
		}
		confirmed, _ := AskConfirmation("Remove %s?", target)
		if !confirmed {
			cmd.Println("Aborted")
			return nil
		}
	}

	ctx, cancel := commandContext()
	defer cancel()

	removed, err := dockbox.CleanImages(ctx, backend, name)
	if err != nil {
		return err
	}

	for _, ref := range removed {
		cmd.Println(dimStyle.Render("  removed " + ref))
	}
	cmd.Println(successStyle.Render(fmt.Sprintf("Removed %d image(s)", len(removed))))
	return nil
}
