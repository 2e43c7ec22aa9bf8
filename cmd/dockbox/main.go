package main

import (
	"errors"
	"fmt"
	"os"

	. "github.com/streamingfast/cli"
	"github.com/streamingfast/dockbox"
	"github.com/streamingfast/logging"
	"go.uber.org/zap"
)

// Version is set via ldflags at build time
var version = "dev"

var zlog, _ = logging.PackageLogger("dockbox", "github.com/streamingfast/dockbox/cmd/dockbox")

func init() {
	logging.InstantiateLoggers(logging.WithDefaultLevel(zap.DPanicLevel))
}

func main() {
	// Inside images the entrypoint owns the whole argument list, cobra must not see it
	if args, ok := entrypointArgs(os.Args[1:]); ok {
		if err := dockbox.RunEntrypoint(args); err != nil {
			fmt.Fprintf(os.Stderr, "dockbox entrypoint: %s\n", err)
			os.Exit(dockbox.ExitCode(err))
		}
		return
	}

	dockbox.Version = version

	Run(
		"dockbox <command>",
		"Package a command-line tool into a container image and run it against a working directory",

		ConfigureVersion(version),
		ConfigureViper("DOCKBOX"),

		BuildCommand,
		RunCommand,
		EntrypointCommand,
		StageCommand,
		ImagesCommand,
		CleanCommand,
		DescribeCommand,
		ConfigCommand,
		InitCommand,
		ListCommand,

		OnCommandError(onCommandError),
	)
}

// onCommandError exits with the wrapped tool's own status when there is one
func onCommandError(err error) {
	var exitErr *dockbox.ExitError
	if errors.As(err, &exitErr) {
		zlog.Debug("propagating exit status", zap.Int("code", exitErr.Code))
		os.Exit(exitErr.Code)
	}

	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	zlog.Debug("command error", zap.Error(err))
	os.Exit(dockbox.ExitCode(err))
}

// entrypointArgs recognizes `dockbox entrypoint [--] ARGS...` and returns ARGS verbatim
func entrypointArgs(args []string) ([]string, bool) {
	if len(args) == 0 || args[0] != "entrypoint" {
		return nil, false
	}

	rest := args[1:]
	if len(rest) > 0 && rest[0] == "--" {
		rest = rest[1:]
	}
	return append([]string{}, rest...), true
}
