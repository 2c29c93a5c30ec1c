package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDaemonCommand_Args verifies the hidden daemon sub-command is passed first.
func TestDaemonCommand_Args(t *testing.T) {
	cmd := daemonCommand("/usr/local/bin/focuslock", "--data-dir", "/tmp/fl")

	assert.Equal(t, "/usr/local/bin/focuslock", cmd.Path)
	assert.Equal(t, []string{"/usr/local/bin/focuslock", "daemon", "--data-dir", "/tmp/fl"}, cmd.Args)
}

// TestDaemonCommand_Detached verifies the child gets its own session and no stdio.
func TestDaemonCommand_Detached(t *testing.T) {
	cmd := daemonCommand("/usr/local/bin/focuslock")

	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setsid)
	assert.Nil(t, cmd.Stdin)
	assert.Nil(t, cmd.Stdout)
	assert.Nil(t, cmd.Stderr)
}

// TestStartDaemonWithPath_MissingBinary verifies spawn errors are returned.
func TestStartDaemonWithPath_MissingBinary(t *testing.T) {
	err := StartDaemonWithPath("/nonexistent/focuslock")
	assert.Error(t, err)
}
