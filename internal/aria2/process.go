package aria2

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/italolelis/mocap_installer/internal/logctx"
)

const stopTimeout = 5 * time.Second

// ProcessConfig describes a daemon the installer starts on its own.
type ProcessConfig struct {
	Binary string
	Port   int
	Secret string
	// Dir is the default download directory of the daemon.
	Dir string
	// MaxConcurrentDownloads bounds active jobs inside the daemon; zero keeps its default.
	MaxConcurrentDownloads int
}

// Process is a daemon started by this process. Stop must be called on shutdown.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Args renders the daemon command line for cfg.
func (cfg ProcessConfig) Args() []string {
	args := []string{
		"--enable-rpc=true",
		"--rpc-listen-all=false",
		"--rpc-listen-port=" + strconv.Itoa(cfg.Port),
		"--continue=true",
		"--auto-file-renaming=false",
		"--allow-overwrite=true",
		"--console-log-level=warn",
		"--summary-interval=0",
	}

	if cfg.Secret != "" {
		args = append(args, "--rpc-secret="+cfg.Secret)
	}

	if cfg.Dir != "" {
		args = append(args, "--dir="+cfg.Dir)
	}

	if cfg.MaxConcurrentDownloads > 0 {
		args = append(args, "--max-concurrent-downloads="+strconv.Itoa(cfg.MaxConcurrentDownloads))
	}

	return args
}

// StartProcess launches the daemon binary. The process is not tied to ctx; it lives
// until Stop so in-flight jobs survive request-scoped cancellation.
func StartProcess(ctx context.Context, cfg ProcessConfig) (*Process, error) {
	logger := logctx.LoggerFromContext(ctx)

	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("download daemon binary %q not found: %w", cfg.Binary, err)
	}

	cmd := exec.Command(path, cfg.Args()...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start download daemon: %w", err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}

	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	logger.Info("started download daemon", "binary", path, "port", cfg.Port, "pid", cmd.Process.Pid)

	return p, nil
}

// Stop interrupts the daemon and kills it if it has not exited within a few seconds.
func (p *Process) Stop(ctx context.Context) error {
	if p == nil {
		return nil
	}

	logger := logctx.LoggerFromContext(ctx)

	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Warn("failed to interrupt download daemon", "err", err)
	}

	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		logger.Warn("download daemon did not exit, killing it")

		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill download daemon: %w", err)
		}

		<-p.done
	}

	logger.Info("download daemon stopped")

	return nil
}
