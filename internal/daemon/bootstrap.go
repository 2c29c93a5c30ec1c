package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// StartDaemon spawns the daemon from the running executable.
// The daemon is detached from the parent process (runs independently).
func StartDaemon() error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	return StartDaemonWithPath(executable)
}

// StartDaemonWithPath spawns the daemon from a specific binary path.
func StartDaemonWithPath(binaryPath string, extraArgs ...string) error {
	return daemonCommand(binaryPath, extraArgs...).Start()
}

// daemonCommand builds the hidden "daemon" self-exec: focuslock daemon [args...]
func daemonCommand(binaryPath string, extraArgs ...string) *exec.Cmd {
	args := append([]string{"daemon"}, extraArgs...)
	cmd := exec.Command(binaryPath, args...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	return cmd
}
