package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	defer func() {
		Version, GitCommit, BuildDate = origVersion, origCommit, origDate
	}()

	Version = "1.2.0"
	GitCommit = "abc123"
	BuildDate = "2024-04-01T12:00:00Z"

	root := newRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())

	out := buf.String()
	assert.Contains(t, out, "eventmap 1.2.0")
	assert.Contains(t, out, "commit: abc123")
	assert.Contains(t, out, "built:  2024-04-01T12:00:00Z")
}

func TestVersionCommandNeedsNoConfig(t *testing.T) {
	root := newRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"version", "--config", "/nonexistent/dir/config.yaml"})

	require.NoError(t, root.Execute())
	assert.NotZero(t, buf.Len())
}
