package dockbox

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInstallable is returned when the source tree lacks the files its installer needs
	ErrNotInstallable = errors.New("source tree is not installable")

	// ErrManifestNotFound is returned when no dockbox manifest exists in the directory chain
	ErrManifestNotFound = errors.New("no dockbox manifest found")

	// ErrImageNotFound is returned when a run needs an image that was never built
	ErrImageNotFound = errors.New("image not found")

	// ErrShimUnavailable is returned when a dev build would copy the shim from a release
	// image that does not exist
	ErrShimUnavailable = errors.New("dockbox shim image unavailable")

	// ErrEntrypointNotFound is returned by the entrypoint when the tool is not on PATH
	ErrEntrypointNotFound = errors.New("entry point not found on PATH")
)

// ExitCommandNotFound is the shell convention for a command that cannot be found
const ExitCommandNotFound = 127

// BuildError reports a failed image build. No image is tagged when it is returned.
type BuildError struct {
	Image string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build of %s failed: %s", e.Image, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// ExitError carries the exit status of the wrapped tool (or of the docker process
// running it) so the CLI can exit with the very same code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the process exit code that best represents err.
// A nil error is 0, an ExitError is its own code, a missing entry point is 127
// and anything else is 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, ErrEntrypointNotFound) {
		return ExitCommandNotFound
	}
	return 1
}
