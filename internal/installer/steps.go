package installer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/italolelis/mocap_installer/internal/logctx"
)

// Step is one core setup action of a pipeline, such as cloning its repository or
// installing its requirements. Steps of a batch run in order.
type Step interface {
	Name() string
	Run(ctx context.Context) error
}

// StepError reports which core step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CommandStep runs an external command, streaming its output to the logger.
type CommandStep struct {
	Label   string
	Command []string
	Dir     string
	Env     []string
}

func (s *CommandStep) Name() string {
	if s.Label != "" {
		return s.Label
	}

	if len(s.Command) > 0 {
		return s.Command[0]
	}

	return "command"
}

func (s *CommandStep) Run(ctx context.Context) error {
	if len(s.Command) == 0 {
		return errors.New("empty command")
	}

	ctx, logger := logctx.With(ctx, "step", s.Name())

	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
	}

	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	logger.Info("running step", "command", strings.Join(s.Command, " "), "dir", s.Dir)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.Command[0], err)
	}

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		pipeLines(stdout, func(line string) { logger.Debug(line, "stream", "stdout") })
	}()

	go func() {
		defer wg.Done()
		pipeLines(stderr, func(line string) { logger.Debug(line, "stream", "stderr") })
	}()

	// pipes must be drained before Wait closes them
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return err
	}

	logger.Info("step finished")

	return nil
}

func pipeLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		fn(sc.Text())
	}

	_, _ = io.Copy(io.Discard, r)
}
