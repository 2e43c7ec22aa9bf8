package dockbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Shim images copy the dockbox binary from the release image of Version
	Version = "v0.0.0-test"
	os.Exit(m.Run())
}

// fakeDocker answers the docker commands dockbox issues from an in-memory image set
type fakeDocker struct {
	images   map[string]bool
	buildErr error
	runCode  int
	runner   *MockRunner
}

func newFakeDocker() *fakeDocker {
	f := &fakeDocker{images: map[string]bool{}}
	f.runner = &MockRunner{Handler: f.handle}
	return f
}

func (f *fakeDocker) handle(c *Command) error {
	switch {
	case len(c.Args) >= 2 && c.Args[0] == "image" && c.Args[1] == "inspect":
		var images []map[string]any
		for _, ref := range c.Args[2:] {
			if !f.images[ref] {
				fmt.Fprintf(c.Stderr, "Error: No such image: %s\n", ref)
				return &ExitError{Code: 1}
			}
			images = append(images, map[string]any{
				"Id":       "sha256:" + strings.Repeat("a", 64),
				"RepoTags": []string{ref},
				"Created":  "2026-01-02T03:04:05.123456789Z",
				"Size":     1234,
				"Config": map[string]any{"Labels": map[string]string{
					LabelManagedBy: ManagedByValue,
					LabelName:      "tool",
				}},
			})
		}
		return json.NewEncoder(c.Stdout).Encode(images)

	case len(c.Args) >= 1 && c.Args[0] == "build":
		if f.buildErr != nil {
			return f.buildErr
		}
		for i, arg := range c.Args {
			if arg == "-t" && i+1 < len(c.Args) {
				f.images[c.Args[i+1]] = true
			}
		}
		return nil

	case len(c.Args) >= 1 && c.Args[0] == "run":
		if f.runCode != 0 {
			return &ExitError{Code: f.runCode}
		}
		return nil
	}
	return nil
}

func (f *fakeDocker) commands(name string) [][]string {
	var out [][]string
	for _, args := range f.runner.Args() {
		if len(args) > 0 && args[0] == name {
			out = append(out, args)
		}
	}
	return out
}

// newProject creates an installable python source tree with its manifest
func newProject(t *testing.T, manifest string) *ManifestLocation {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), "[project]\nname = \"tool\"\n")
	writeFile(t, filepath.Join(dir, "tool", "__init__.py"), "def main(): pass\n")
	writeFile(t, filepath.Join(dir, "dockbox.yaml"), manifest)

	location, err := ResolveManifest(dir, DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	return location
}

func TestGenerateDockerfile(t *testing.T) {
	noShim := false

	tests := []struct {
		name        string
		manifest    *Manifest
		devMode     bool
		profiles    []string
		contains    []string
		notContains []string
	}{
		{
			name:     "shim from release image",
			manifest: &Manifest{Name: "tool"},
			contains: []string{
				"FROM ghcr.io/streamingfast/dockbox:" + Version + " AS dockbox-bin",
				"FROM python:3.9\n",
				`LABEL io.dockbox.managed-by="dockbox"`,
				`LABEL io.dockbox.entrypoint="tool"`,
				"COPY src/ /opt/tool/",
				"RUN pip install --no-cache-dir .",
				"RUN command -v tool",
				"COPY --from=dockbox-bin /dockbox /usr/local/bin/dockbox",
				"COPY contract.yaml /etc/dockbox/contract.yaml",
				"WORKDIR /data\n",
				`ENTRYPOINT ["/usr/local/bin/dockbox","entrypoint","--"]`,
			},
			notContains: []string{"CMD"},
		},
		{
			name:        "shim from build context in dev mode",
			manifest:    &Manifest{Name: "tool"},
			devMode:     true,
			contains:    []string{"COPY dockbox /usr/local/bin/dockbox"},
			notContains: []string{"dockbox-bin"},
		},
		{
			name:        "direct entry point without shim",
			manifest:    &Manifest{Name: "tool", Entrypoint: "tool-cli", Shim: &noShim},
			contains:    []string{`ENTRYPOINT ["tool-cli"]`, "RUN command -v tool-cli"},
			notContains: []string{"dockbox-bin", "/usr/local/bin/dockbox", "CMD"},
		},
		{
			name:     "profiles and env",
			manifest: &Manifest{Name: "tool", Env: []string{"OMP_NUM_THREADS=1"}},
			profiles: []string{"build-essential", "mpi"},
			contains: []string{
				"# Profile: build-essential",
				"# Profile: mpi",
				"openmpi-bin",
				`ENV OMP_NUM_THREADS="1"`,
			},
		},
		{
			name:     "custom install command",
			manifest: &Manifest{Name: "tool", Installer: "custom", InstallCommand: "make install"},
			contains: []string{"RUN make install"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.manifest.ApplyDefaults("/src/tool", nil)

			dockerfile, err := GenerateDockerfile(tt.manifest, "digest", tt.profiles, tt.devMode)
			require.NoError(t, err)

			for _, s := range tt.contains {
				assert.Contains(t, dockerfile, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, dockerfile, s)
			}
		})
	}
}

func TestGenerateDockerfile_Order(t *testing.T) {
	m := &Manifest{Name: "tool"}
	m.ApplyDefaults("/src/tool", nil)

	dockerfile, err := GenerateDockerfile(m, "digest", []string{"git"}, false)
	require.NoError(t, err)

	order := []string{"FROM python", "# Profile: git", "COPY src/", "RUN pip install", "RUN command -v", "COPY contract.yaml", "WORKDIR /data", "ENTRYPOINT"}
	last := -1
	for _, s := range order {
		idx := strings.Index(dockerfile, s)
		require.GreaterOrEqual(t, idx, 0, "missing %q", s)
		assert.Greater(t, idx, last, "%q out of order", s)
		last = idx
	}
	assert.True(t, strings.HasSuffix(dockerfile, "\n"))
}

func TestGenerateDockerfile_DevVersion(t *testing.T) {
	defer func(previous string) { Version = previous }(Version)
	Version = "dev"
	noShim := false

	tests := []struct {
		name     string
		manifest *Manifest
		devMode  bool
		wantErr  bool
	}{
		{"shim without release image", &Manifest{Name: "tool"}, false, true},
		{"shim cross-compiled in dev mode", &Manifest{Name: "tool"}, true, false},
		{"no shim", &Manifest{Name: "tool", Shim: &noShim}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.manifest.ApplyDefaults("/src/tool", nil)

			dockerfile, err := GenerateDockerfile(tt.manifest, "digest", nil, tt.devMode)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrShimUnavailable)
				assert.Contains(t, err.Error(), DevModeEnvVar+"=1")
				return
			}
			require.NoError(t, err)
			assert.NotContains(t, dockerfile, BinaryImage+":dev")
		})
	}
}

func TestPlan_DevVersion(t *testing.T) {
	defer func(previous string) { Version = previous }(Version)
	Version = "dev"
	t.Setenv(DevModeEnvVar, "")

	_, err := NewImageBuilder(newProject(t, "name: tool\n"), nil, nil).Plan()
	require.ErrorIs(t, err, ErrShimUnavailable)

	_, err = NewImageBuilder(newProject(t, "name: tool\nshim: false\n"), nil, nil).Plan()
	require.NoError(t, err)
}

func TestDockerfileQuote(t *testing.T) {
	tests := []struct {
		value   string
		want    string
		wantErr bool
	}{
		{"1", `"1"`, false},
		{"", `""`, false},
		{`say "hi"`, `"say \"hi\""`, false},
		{"$HOME/bin", `"\$HOME/bin"`, false},
		{`C:\tools`, `"C:\\tools"`, false},
		{"héllo", `"héllo"`, false},
		{"two\nlines", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := dockerfileQuote(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	m := &Manifest{Name: "tool", Env: []string{"GREETING=say \"hi\" to $USER"}}
	m.ApplyDefaults("/src/tool", nil)
	dockerfile, err := GenerateDockerfile(m, "digest", nil, false)
	require.NoError(t, err)
	assert.Contains(t, dockerfile, `ENV GREETING="say \"hi\" to \$USER"`)

	m.Env = []string{"BROKEN=a\nRUN rm -rf /"}
	_, err = GenerateDockerfile(m, "digest", nil, false)
	require.Error(t, err)
}

func TestImageTag(t *testing.T) {
	tag := ImageTag("FROM python:3.9\n", "digest")
	assert.Len(t, tag, 12)
	assert.Equal(t, tag, ImageTag("FROM python:3.9\n", "digest"))
	assert.NotEqual(t, tag, ImageTag("FROM python:3.9\n", "other"))
	assert.NotEqual(t, tag, ImageTag("FROM python:3.10\n", "digest"))
}

func TestPlan_Idempotent(t *testing.T) {
	location := newProject(t, "name: tool\n")

	builder := NewImageBuilder(location, nil, &MockRunner{})
	first, err := builder.Plan()
	require.NoError(t, err)
	second, err := builder.Plan()
	require.NoError(t, err)

	assert.Equal(t, first.Reference, second.Reference)
	assert.True(t, strings.HasPrefix(first.Reference, "dockbox/tool:"))
	assert.Equal(t, "dockbox/tool:latest", first.LatestReference)
	assert.Equal(t, "tool", first.Contract.Entrypoint)
	assert.Equal(t, first.SourceDigest, first.Contract.SourceDigest)

	writeFile(t, filepath.Join(location.SourceDir(), "tool", "__init__.py"), "def main(): return 1\n")
	third, err := builder.Plan()
	require.NoError(t, err)
	assert.NotEqual(t, first.Reference, third.Reference)
}

func TestBuild(t *testing.T) {
	location := newProject(t, "name: tool\n")
	docker := newFakeDocker()
	builder := NewImageBuilder(location, NewCLIBackend(docker.runner), docker.runner)

	plan, err := builder.Build(context.Background(), BuildOptions{Platform: "linux/amd64"})
	require.NoError(t, err)
	assert.False(t, plan.Skipped)

	builds := docker.commands("build")
	require.Len(t, builds, 1)
	args := builds[0]
	assert.Equal(t, []string{"build", "--platform", "linux/amd64", "-t", plan.Reference, "-t", plan.LatestReference, "-f"}, args[:8])
	assert.Equal(t, "Dockerfile", filepath.Base(args[8]))
	assert.Equal(t, filepath.Dir(args[8]), args[9])
	assert.NoDirExists(t, args[9], "build context is removed after the build")

	// Unchanged source, nothing is built again
	plan, err = builder.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.True(t, plan.Skipped)
	assert.Len(t, docker.commands("build"), 1)

	plan, err = builder.Build(context.Background(), BuildOptions{Force: true})
	require.NoError(t, err)
	assert.False(t, plan.Skipped)
	assert.Len(t, docker.commands("build"), 2)
}

func TestBuild_ContextDir(t *testing.T) {
	location := newProject(t, "name: tool\n")
	docker := newFakeDocker()
	contextDir := filepath.Join(t.TempDir(), "build")

	_, err := NewImageBuilder(location, NewCLIBackend(docker.runner), docker.runner).
		Build(context.Background(), BuildOptions{ContextDir: contextDir})
	require.NoError(t, err)

	builds := docker.commands("build")
	require.Len(t, builds, 1)
	assert.Equal(t, contextDir, filepath.Dir(builds[0][len(builds[0])-1]))
}

func TestBuild_Failure(t *testing.T) {
	location := newProject(t, "name: tool\n")
	docker := newFakeDocker()
	docker.buildErr = &ExitError{Code: 1}

	_, err := NewImageBuilder(location, NewCLIBackend(docker.runner), docker.runner).Build(context.Background(), BuildOptions{})
	require.Error(t, err)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.True(t, strings.HasPrefix(buildErr.Image, "dockbox/tool:"))
	assert.Empty(t, docker.images)
}

func TestBuild_NotInstallable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "README.md"), "no python project here\n")

	location, err := ResolveManifest(dir, nil)
	require.NoError(t, err)

	docker := newFakeDocker()
	_, err = NewImageBuilder(location, NewCLIBackend(docker.runner), docker.runner).Build(context.Background(), BuildOptions{})
	require.ErrorIs(t, err, ErrNotInstallable)
	assert.Empty(t, docker.runner.Args(), "docker is never invoked")
}

func TestWriteContext(t *testing.T) {
	location := newProject(t, "name: tool\nworkdir: /work\n")
	builder := NewImageBuilder(location, nil, &MockRunner{})

	plan, err := builder.Plan()
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, builder.writeContext(dir, plan))

	data, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)
	assert.Equal(t, plan.Dockerfile, string(data))

	contract, err := ReadContract(filepath.Join(dir, "contract.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "tool", contract.Entrypoint)
	assert.Equal(t, "/work", contract.Workdir)

	assert.FileExists(t, filepath.Join(dir, "src", "pyproject.toml"))
	assert.FileExists(t, filepath.Join(dir, "src", "tool", "__init__.py"))
}

func TestGetTargetArch(t *testing.T) {
	tests := []struct {
		arch    string
		fail    bool
		want    string
		wantErr bool
	}{
		{arch: "x86_64", want: "linux/amd64"},
		{arch: "aarch64", want: "linux/arm64"},
		{fail: true, want: "linux/amd64"},
		{arch: "s390x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arch, func(t *testing.T) {
			runner := &MockRunner{Handler: func(c *Command) error {
				if tt.fail {
					return &ExitError{Code: 1}
				}
				fmt.Fprintln(c.Stdout, tt.arch)
				return nil
			}}

			arch, err := GetTargetArch(context.Background(), runner)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, arch.DockerPlatform)
		})
	}
}

func TestCLIBackend(t *testing.T) {
	docker := newFakeDocker()
	docker.images["dockbox/tool:abc"] = true
	backend := NewCLIBackend(docker.runner)
	ctx := context.Background()

	exists, err := backend.ImageExists(ctx, "dockbox/tool:abc")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = backend.ImageExists(ctx, "dockbox/tool:missing")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = backend.InspectImage(ctx, "dockbox/tool:missing")
	require.ErrorIs(t, err, ErrImageNotFound)

	info, err := backend.InspectImage(ctx, "dockbox/tool:abc")
	require.NoError(t, err)
	assert.Equal(t, "tool", info.Name)
	assert.Equal(t, "dockbox/tool:abc", info.Reference())
	assert.Equal(t, int64(1234), info.Size)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC), info.Created.UTC())
}

func TestCLIBackend_ListAndRemove(t *testing.T) {
	runner := &MockRunner{Handler: func(c *Command) error {
		switch {
		case c.Args[0] == "image" && c.Args[1] == "ls":
			fmt.Fprintln(c.Stdout, "sha256:111")
			fmt.Fprintln(c.Stdout, "sha256:111")
			fmt.Fprintln(c.Stdout, "sha256:222")
		case c.Args[0] == "image" && c.Args[1] == "inspect":
			fmt.Fprint(c.Stdout, `[
				{"Id": "sha256:111", "RepoTags": ["dockbox/a:latest"], "Config": {"Labels": {"io.dockbox.name": "a"}}},
				{"Id": "sha256:222", "RepoTags": [], "Config": {"Labels": {"io.dockbox.name": "b"}}}
			]`)
		}
		return nil
	}}
	backend := NewCLIBackend(runner)

	images, err := backend.ListImages(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "a", images[0].Name)
	assert.Equal(t, "sha256:222", images[1].Reference())

	args := runner.Args()
	assert.Equal(t, []string{"image", "ls", "--no-trunc", "--filter", "label=io.dockbox.managed-by=dockbox", "--format", "{{.ID}}"}, args[0])
	assert.Equal(t, []string{"image", "inspect", "sha256:111", "sha256:222"}, args[1])

	require.NoError(t, backend.RemoveImage(context.Background(), "sha256:111", true))
	assert.Equal(t, []string{"image", "rm", "--force", "sha256:111"}, runner.Args()[2])
}

func TestCleanImages(t *testing.T) {
	backend := &fakeBackend{images: []ImageInfo{
		{ID: "1", Name: "a", Tags: []string{"dockbox/a:1"}},
		{ID: "2", Name: "b", Tags: []string{"dockbox/b:1"}},
		{ID: "3", Name: "a", Tags: []string{"dockbox/a:2"}},
	}}

	removed, err := CleanImages(context.Background(), backend, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"dockbox/a:1", "dockbox/a:2"}, removed)
	assert.Equal(t, []string{"1", "3"}, backend.removed)

	removed, err = CleanImages(context.Background(), backend, "")
	require.NoError(t, err)
	assert.Len(t, removed, 3)
}

type fakeBackend struct {
	images  []ImageInfo
	removed []string
}

func (b *fakeBackend) Name() BackendType { return BackendCLI }

func (b *fakeBackend) Ping(ctx context.Context) error { return nil }

func (b *fakeBackend) ImageExists(ctx context.Context, ref string) (bool, error) {
	return false, nil
}

func (b *fakeBackend) InspectImage(ctx context.Context, ref string) (*ImageInfo, error) {
	return nil, ErrImageNotFound
}

func (b *fakeBackend) ListImages(ctx context.Context) ([]ImageInfo, error) {
	return b.images, nil
}

func (b *fakeBackend) RemoveImage(ctx context.Context, ref string, force bool) error {
	b.removed = append(b.removed, ref)
	return nil
}

func (b *fakeBackend) Close() error { return nil }

func TestGetBackend(t *testing.T) {
	backend, err := GetBackend("", nil)
	require.NoError(t, err)
	assert.Equal(t, BackendCLI, backend.Name())

	_, err = GetBackend("podman", nil)
	require.Error(t, err)
}

func TestResolveBackendType(t *testing.T) {
	config := &Config{Backend: "engine"}

	assert.Equal(t, BackendCLI, ResolveBackendType("", nil, nil))
	assert.Equal(t, BackendEngine, ResolveBackendType("", nil, config))
	assert.Equal(t, BackendCLI, ResolveBackendType("", &Manifest{Backend: "cli"}, config))
	assert.Equal(t, BackendEngine, ResolveBackendType("engine", &Manifest{Backend: "cli"}, nil))
}
