package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Transport executes a shell command on the scheduler's submit host.
type Transport interface {
	Run(ctx context.Context, command string) (RunResult, error)
	Describe() string
}

// RunError is returned when a scheduler command cannot be started or exits
// non-zero. It always carries the captured output.
type RunError struct {
	Command  string
	Target   string
	Stdout   string
	Stderr   string
	ExitCode int
	Timeout  bool
	Err      error
}

func (e *RunError) Error() string {
	base := fmt.Sprintf("command failed on %s", e.Target)
	if e.Timeout {
		base += " (timeout)"
	}
	if e.ExitCode != 0 {
		base += fmt.Sprintf(" [exit=%d]", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		base += ": " + s
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// ShellQuote single-quotes s for a POSIX shell.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// WithSettings prefixes command with sourcing the SGE settings file.
func WithSettings(settings, command string) string {
	if strings.TrimSpace(settings) == "" {
		return command
	}
	return ". " + ShellQuote(settings) + " && " + command
}

// runProcess executes name with args and converts failures into *RunError.
func runProcess(ctx context.Context, target, command, name string, args ...string) (RunResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	started := time.Now()
	err := cmd.Run()
	result := RunResult{
		Stdout: outBuf.String(),
		Stderr: errBuf.String(),
	}
	log.Debug().
		Str("target", target).
		Str("command", command).
		Dur("elapsed", time.Since(started)).
		Err(err).
		Msg("ran scheduler command")
	if err == nil {
		return result, nil
	}

	runErr := &RunError{
		Command: command,
		Target:  target,
		Stdout:  result.Stdout,
		Stderr:  result.Stderr,
		Err:     err,
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		runErr.ExitCode = exitErr.ExitCode()
		result.ExitCode = runErr.ExitCode
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		runErr.Timeout = true
	}

	return result, runErr
}
