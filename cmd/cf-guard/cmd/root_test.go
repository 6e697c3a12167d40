package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/cf-guard/internal/version"
)

// TestRootCommand_RejectsArgs ensures the run takes no positional arguments.
func TestRootCommand_RejectsArgs(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	root.SetArgs([]string{"extra"})
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))

	require.Error(t, root.Execute())
}

// TestRootCommand_Version prints build metadata without reconciling.
func TestRootCommand_Version(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	version.AttachCobraVersionCommand(root)

	var out bytes.Buffer

	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), version.Full())
}
