package alert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/cf-guard/internal/domain/guard"
)

// TestBuildCommand substitutes or appends the quoted message.
func TestBuildCommand(t *testing.T) {
	t.Parallel()

	msg := "web-1: it's $HOME; rm -rf /"

	words, err := shellquote.Split(BuildCommand("notify --text #MSG# --urgent", msg))
	require.NoError(t, err)
	require.Equal(t, []string{"notify", "--text", msg, "--urgent"}, words)

	words, err = shellquote.Split(BuildCommand("logger -t cf-guard", msg))
	require.NoError(t, err)
	require.Equal(t, []string{"logger", "-t", "cf-guard", msg}, words)
}

// TestCommandChannel_Send runs the template through the shell.
func TestCommandChannel_Send(t *testing.T) {
	t.Parallel()

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	out := filepath.Join(t.TempDir(), "alert.txt")
	event := testEvent(KindEntered, domain.UnderAttack)

	ch := NewCommandChannel("printf '%s' #MSG# > " + shellquote.Join(out))
	require.NoError(t, ch.Send(context.Background(), event))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, event.Text(), string(got))
}

// TestCommandChannel_SendManualChange passes the load context of a manual change.
func TestCommandChannel_SendManualChange(t *testing.T) {
	t.Parallel()

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	out := filepath.Join(t.TempDir(), "alert.txt")
	event := Event{
		Kind:      KindManualChange,
		Host:      "web-1",
		Time:      time.Unix(1700000000, 0),
		Mode:      domain.Medium,
		Load:      1.23,
		Threshold: 7.45,
	}

	ch := NewCommandChannel("printf '%s' #MSG# > " + shellquote.Join(out))
	require.NoError(t, ch.Send(context.Background(), event))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(got), "load=1.23 / threshold=7.45")
	require.Contains(t, string(got), "mode=medium")
}

// TestCommandChannel_Errors reports empty templates and failing commands.
func TestCommandChannel_Errors(t *testing.T) {
	t.Parallel()

	event := testEvent(KindEntered, domain.UnderAttack)

	require.ErrorIs(t, NewCommandChannel("").Send(context.Background(), event), errCommandRequired)

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	require.Error(t, NewCommandChannel("exit 3 #MSG#").Send(context.Background(), event))
}
