package dockbox

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// entrypointLogFile is the path for entrypoint debug logging, stdout and stderr
// belong to the wrapped tool
const entrypointLogFile = "/tmp/dockbox-entrypoint.log"

// elog is the entrypoint file logger (initialized by initEntrypointLog)
var elog = slog.New(slog.NewTextHandler(io.Discard, nil))

// initEntrypointLog initializes the file logger for entrypoint debugging.
// Logs are appended to /tmp/dockbox-entrypoint.log
func initEntrypointLog() func() {
	f, err := os.OpenFile(entrypointLogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return func() {}
	}

	fmt.Fprintf(f, "\n========== dockbox entrypoint new run at %s ==========\n", time.Now().Format(time.RFC3339))

	elog = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	return func() { f.Close() }
}

// Entrypoint hands the container process over to the tool named by a contract.
// The function fields default to the real system calls and are replaced in tests.
type Entrypoint struct {
	Contract *Contract

	LookPath func(file string) (string, error)
	Chdir    func(dir string) error
	Exec     func(argv0 string, argv []string, envv []string) error
	Environ  func() []string
}

// NewEntrypoint returns an Entrypoint executing the contract's tool for real
func NewEntrypoint(contract *Contract) *Entrypoint {
	return &Entrypoint{
		Contract: contract,
		LookPath: exec.LookPath,
		Chdir:    os.Chdir,
		Exec:     syscall.Exec,
		Environ:  os.Environ,
	}
}

// Run changes into the working directory and replaces the current process with the
// entry point, args forwarded exactly as received. It only returns on failure.
func (e *Entrypoint) Run(args []string) error {
	workdir := e.Contract.Workdir
	if err := e.Chdir(workdir); err != nil {
		elog.Error("failed to enter working directory", "workdir", workdir, "error", err)
		return fmt.Errorf("failed to enter working directory %s: %w", workdir, err)
	}

	path, err := e.LookPath(e.Contract.Entrypoint)
	if err != nil {
		elog.Error("entry point not found", "entrypoint", e.Contract.Entrypoint, "error", err)
		return fmt.Errorf("%w: %s: %s", ErrEntrypointNotFound, e.Contract.Entrypoint, err)
	}

	argv := make([]string, 0, len(args)+1)
	argv = append(argv, e.Contract.Entrypoint)
	argv = append(argv, args...)

	env := withEnv(e.Environ(), "PWD", workdir)

	elog.Info("executing entry point (syscall.Exec)", "path", path, "argv", argv, "workdir", workdir)
	zlog.Info("executing entry point",
		zap.String("path", path),
		zap.Strings("args", args),
		zap.String("workdir", workdir))

	if err := e.Exec(path, argv, env); err != nil {
		return fmt.Errorf("failed to exec %s: %w", path, err)
	}
	return nil
}

// RunEntrypoint loads the runtime contract and executes its entry point with args
func RunEntrypoint(args []string) error {
	// The log file is never closed explicitly, exec replaces the process
	_ = initEntrypointLog()

	elog.Info("=== RunEntrypoint starting ===", "args", args, "pid", os.Getpid())

	contract, err := LoadRuntimeContract()
	if err != nil {
		elog.Error("failed to load runtime contract", "error", err)
		return err
	}

	elog.Info("loaded runtime contract",
		"version", contract.Version,
		"name", contract.Name,
		"entrypoint", contract.Entrypoint,
		"workdir", contract.Workdir)

	return NewEntrypoint(contract).Run(args)
}

// withEnv returns env with name set to value
func withEnv(env []string, name, value string) []string {
	out := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if strings.HasPrefix(entry, name+"=") {
			continue
		}
		out = append(out, entry)
	}
	return append(out, name+"="+value)
}
