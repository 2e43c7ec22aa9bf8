package dockbox

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// DockerBinaryEnvVar overrides the docker executable (e.g. "podman")
const DockerBinaryEnvVar = "DOCKBOX_DOCKER"

// Command is a single invocation of the docker CLI
type Command struct {
	// Args are passed to docker, without the binary itself
	Args []string

	// Dir is the working directory of the docker process, empty inherits ours
	Dir string

	// Env is appended to our environment
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner runs docker commands. The default implementation forks the docker
// CLI, MockRunner records commands for tests.
type Runner interface {
	Run(ctx context.Context, cmd *Command) error
}

// DefaultRunner is used when no Runner is given explicitly
var DefaultRunner Runner = NewDockerRunner()

type dockerRunner struct {
	binary string
}

// NewDockerRunner returns a Runner forking the docker CLI, or the binary named by
// DOCKBOX_DOCKER when set
func NewDockerRunner() Runner {
	binary := os.Getenv(DockerBinaryEnvVar)
	if binary == "" {
		binary = "docker"
	}
	return &dockerRunner{binary: binary}
}

// Run executes the command. A non-zero exit status is returned as *ExitError.
func (r *dockerRunner) Run(ctx context.Context, c *Command) error {
	zlog.Debug("executing docker command",
		zap.String("cmd", r.binary),
		zap.Strings("args", c.Args))

	cmd := exec.CommandContext(ctx, r.binary, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitStatus(exitErr)}
	}
	return err
}

// exitStatus follows the shell convention of 128+signal for a process killed by a signal
func exitStatus(err *exec.ExitError) int {
	if status, ok := err.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return err.ExitCode()
}

// MockRunner records every command. Handler, when set, is called for each one and
// may write to the command's Stdout or fail it.
type MockRunner struct {
	Handler func(cmd *Command) error

	mu   sync.Mutex
	Cmds []*Command
}

func (r *MockRunner) Run(_ context.Context, c *Command) error {
	r.mu.Lock()
	r.Cmds = append(r.Cmds, c)
	r.mu.Unlock()

	if r.Handler != nil {
		return r.Handler(c)
	}
	return nil
}

// Args returns the arguments of every recorded command
func (r *MockRunner) Args() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	args := make([][]string, 0, len(r.Cmds))
	for _, c := range r.Cmds {
		args = append(args, c.Args)
	}
	return args
}

var _ Runner = &MockRunner{}
