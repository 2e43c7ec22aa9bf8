package dockbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Wrapper runs the packaged tool: it makes sure the image exists, then runs it against
// a mounted working directory.
type Wrapper struct {
	Location *ManifestLocation
	Backend  Backend
	Runner   Runner
}

// RunOptions controls a run
type RunOptions struct {
	// WorkingDir is the host directory mounted as the container working directory
	WorkingDir string

	// Args are forwarded to the entry point unmodified
	Args []string

	// NoBuild fails with ErrImageNotFound instead of building a missing image
	NoBuild bool

	// Rebuild forces an image build before running
	Rebuild bool

	// Env entries, "NAME" passes the host value through
	Env []string

	// Volumes are extra "host:container[:ro]" mounts, relative host paths resolve
	// against the current directory
	Volumes []string

	// TTY allocates a pseudo terminal
	TTY bool

	// MapUser runs the container as the calling uid:gid
	MapUser bool

	// BuildContextDir is passed to builds triggered by the run
	BuildContextDir string

	// Stage, when set, prepares the PDB inputs of the working directory first
	Stage *StageOptions

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewWrapper creates a Wrapper, a nil runner uses DefaultRunner
func NewWrapper(location *ManifestLocation, backend Backend, runner Runner) *Wrapper {
	if runner == nil {
		runner = DefaultRunner
	}
	return &Wrapper{Location: location, Backend: backend, Runner: runner}
}

// Build builds the image of the wrapped manifest
func (w *Wrapper) Build(ctx context.Context, opts BuildOptions) (*BuildPlan, error) {
	return NewImageBuilder(w.Location, w.Backend, w.Runner).Build(ctx, opts)
}

// EnsureImage returns the reference of the image to run, building it when needed
func (w *Wrapper) EnsureImage(ctx context.Context, opts RunOptions) (string, error) {
	builder := NewImageBuilder(w.Location, w.Backend, w.Runner)

	if opts.NoBuild {
		plan, err := builder.Plan()
		if err != nil {
			return "", err
		}
		exists, err := w.Backend.ImageExists(ctx, plan.Reference)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("%w: %s (run 'dockbox build' first)", ErrImageNotFound, plan.Reference)
		}
		return plan.Reference, nil
	}

	plan, err := builder.Build(ctx, BuildOptions{
		Force:      opts.Rebuild,
		ContextDir: opts.BuildContextDir,
		Stdout:     opts.Stderr,
		Stderr:     opts.Stderr,
	})
	if err != nil {
		return "", err
	}
	return plan.Reference, nil
}

// Run runs the entry point in a container. The tool's exit status is returned
// unchanged as *ExitError when non-zero.
func (w *Wrapper) Run(ctx context.Context, opts RunOptions) error {
	workingDir := opts.WorkingDir
	if workingDir == "" {
		workingDir = "."
	}
	absDir, err := filepath.Abs(workingDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory %s is not a directory", absDir)
	}
	opts.WorkingDir = absDir

	ref, err := w.EnsureImage(ctx, opts)
	if err != nil {
		return err
	}

	if opts.Stage != nil {
		stage := *opts.Stage
		stage.Dir = absDir
		result, err := Stage(ctx, stage)
		if err != nil {
			return fmt.Errorf("staging failed: %w", err)
		}
		zlog.Info("staged structures", zap.Int("inputs", len(result.Inputs)), zap.Int("outputs", len(result.Outputs)))
	}

	args := BuildRunArgs(w.Location, ref, opts)

	zlog.Info("running container",
		zap.String("image", ref),
		zap.String("workspace", absDir),
		zap.Strings("args", opts.Args))

	err = w.Runner.Run(ctx, &Command{Args: args, Stdin: opts.Stdin, Stdout: opts.Stdout, Stderr: opts.Stderr})
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			zlog.Debug("container exited with non-zero status", zap.Int("code", exitErr.Code))
			return exitErr
		}
		return fmt.Errorf("docker run failed: %w", err)
	}

	zlog.Info("container exited successfully")
	return nil
}

// BuildRunArgs constructs the docker run command arguments. opts.WorkingDir must
// be absolute. opts.Args come last, untouched.
func BuildRunArgs(location *ManifestLocation, ref string, opts RunOptions) []string {
	m := location.Manifest
	args := []string{"run", "--rm", "-i"}
	if opts.TTY {
		args = append(args, "-t")
	}

	args = append(args, "-v", fmt.Sprintf("%s:%s", opts.WorkingDir, m.Workdir))
	args = append(args, "-w", m.Workdir)

	if opts.MapUser {
		if uid, gid := os.Getuid(), os.Getgid(); uid >= 0 && gid >= 0 {
			args = append(args, "--user", fmt.Sprintf("%d:%d", uid, gid))
		}
	}

	args = append(args, "--label", LabelWorkspace+"="+opts.WorkingDir)

	for _, env := range opts.Env {
		args = append(args, "-e", env)
	}

	cwd, _ := os.Getwd()
	args = appendVolumes(args, m.Volumes, location.Dir)
	args = appendVolumes(args, opts.Volumes, cwd)

	args = append(args, ref)
	return append(args, opts.Args...)
}

func appendVolumes(args []string, volumes []string, baseDir string) []string {
	for _, vol := range volumes {
		hostPath, containerPath, readOnly, err := ParseVolumeSpec(vol)
		if err != nil {
			zlog.Warn("invalid volume specification, skipping", zap.String("spec", vol), zap.Error(err))
			continue
		}

		hostPath, err = ResolveVolumePath(hostPath, baseDir)
		if err != nil {
			zlog.Warn("failed to resolve volume path, skipping", zap.String("spec", vol), zap.Error(err))
			continue
		}

		if _, err := os.Stat(hostPath); err != nil {
			zlog.Warn("volume host path not found, skipping",
				zap.String("host_path", hostPath),
				zap.String("container_path", containerPath),
				zap.Error(err))
			continue
		}

		mountSpec := fmt.Sprintf("%s:%s", hostPath, containerPath)
		if readOnly {
			mountSpec += ":ro"
		}
		args = append(args, "-v", mountSpec)
	}
	return args
}
