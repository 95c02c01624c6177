//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs is a no-op on Windows, which has no Setsid equivalent.
func setDaemonAttrs(_ *exec.Cmd) {}

// shutdownSignals returns the signals that trigger graceful shutdown.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// sigTERM returns the polite termination signal for the platform.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

// sigKILL returns the forced kill signal for the platform.
func sigKILL() syscall.Signal { return syscall.SIGKILL }
