//go:build !windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs detaches the background server into its own session
// so it survives the launching terminal.
func setDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// shutdownSignals returns the signals that trigger graceful shutdown.
func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// sigTERM returns the polite termination signal for the platform.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

// sigKILL returns the forced kill signal for the platform.
func sigKILL() syscall.Signal { return syscall.SIGKILL }
