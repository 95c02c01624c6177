package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/promptsense/promptsense/internal/api"
	"github.com/promptsense/promptsense/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve results over HTTP",
	Long: `Start the results server: a dashboard at / and a read-only JSON API
under /api/v1 (datasets, runs, results, metrics), plus rendered HTML
reports at /runs/{id}/report.

Runs in the foreground; use 'serve start' to run it in the background.
By default it listens on port 8080. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the results server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background results server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the PID file for the background server.
func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "promptsense-serve.pid"))
}

// serveLogPath returns the log file path for the background server.
func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "promptsense-serve.log")
}

// serveRun starts the HTTP server in the foreground and blocks until
// a shutdown signal arrives.
func serveRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	port := viper.GetInt("serve.port")
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: api.NewServer(s, buildVersion).Router(),
	}

	// Track our own PID so 'serve stop' works against a foreground
	// server too (e.g. the child process 'serve start' spawned).
	pf := pidFile()
	if err := pf.Write(); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() { _ = pf.Remove() }()

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("results server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(ui.Out, "Serving results at http://localhost%s\n", srv.Addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// serveStartRun launches 'promptsense serve' as a detached background
// process, logging to serveLogPath().
func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	port := viper.GetInt("serve.port")
	child := exec.Command(exe, "serve", "--port", fmt.Sprintf("%d", port))
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if dryRun {
		ui.DryRunMsg("Would start background server on port %d (log: %s)", port, serveLogPath())
		return nil
	}

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	// The child overwrites this with its own PID on startup; writing it
	// here closes the window where stop/status would miss a starting server.
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	ui.Success("Server started (pid %d) at http://localhost:%d", child.Process.Pid, port)
	ui.Info("Log: %s", serveLogPath())
	return nil
}

// serveStopRun terminates the background server, escalating to KILL
// when it ignores TERM.
func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return fmt.Errorf("server is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}
	if !pf.WaitExit(5 * time.Second) {
		ui.Warning("Server did not exit, killing pid %d", pid)
		_ = pf.Signal(sigKILL())
	}
	_ = pf.Remove()

	ui.Success("Server stopped (pid %d)", pid)
	return nil
}

// serveStatusRun reports whether the background server is running.
func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		ui.Info("Server is not running")
		return nil
	}
	ui.Success("Server running (pid %d) on port %d", pid, viper.GetInt("serve.port"))
	ui.Info("Log: %s", serveLogPath())
	return nil
}
