package dockbox

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDockerRunner_ExitStatus(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"success", "exit 0", 0},
		{"exit code", "exit 3", 3},
		{"killed", "kill -9 $$", 137},
		{"terminated", "kill -15 $$", 143},
	}

	runner := &dockerRunner{binary: "sh"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runner.Run(context.Background(), &Command{Args: []string{"-c", tt.script}})
			if tt.want == 0 {
				require.NoError(t, err)
				return
			}

			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr), "got %v", err)
			assert.Equal(t, tt.want, exitErr.Code)
			assert.Equal(t, tt.want, ExitCode(err))
		})
	}
}
