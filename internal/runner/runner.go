// Package runner executes external build and package-manager tools.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Command describes one external program invocation.
type Command struct {
	// Name is the program to run, resolved through PATH.
	Name string
	// Args are passed verbatim, without a shell.
	Args []string
	// Dir is the working directory.
	Dir string
	// Env is appended to the current process environment.
	Env []string
	// Capture collects stdout/stderr into the Result instead of
	// inheriting the caller's streams.
	Capture bool
}

// String renders the command line for messages.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the outcome of a finished command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// SubprocessError reports a command that could not start or exited non-zero.
type SubprocessError struct {
	Command  string
	Dir      string
	ExitCode int
	Err      error
}

func (e *SubprocessError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("command '%s' in %s exited with code %d", e.Command, e.Dir, e.ExitCode)
	}
	return fmt.Sprintf("command '%s' in %s failed: %v", e.Command, e.Dir, e.Err)
}

func (e *SubprocessError) Unwrap() error {
	return e.Err
}

// Runner runs external commands. Implementations block until the
// command exits and return a *SubprocessError for any failure.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Executor runs commands as child processes.
type Executor struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
}

// Option customises an Executor.
type Option func(*Executor)

// WithStreams overrides the inherited standard streams.
func WithStreams(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(e *Executor) {
		e.stdin = stdin
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithLogger sets the logger used for command tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates an Executor wired to the process's standard streams.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes cmd and waits for it to exit.
func (e *Executor) Run(ctx context.Context, cmd Command) (*Result, error) {
	e.logger.Debug("running command", zap.String("command", cmd.String()), zap.String("dir", cmd.Dir))

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)

	var stdout, stderr bytes.Buffer
	if cmd.Capture {
		c.Stdout = &stdout
		c.Stderr = &stderr
	} else {
		c.Stdin = e.stdin
		c.Stdout = e.stdout
		c.Stderr = e.stderr
	}

	err := c.Run()
	result := &Result{
		ExitCode: c.ProcessState.ExitCode(),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}
	if err == nil {
		return result, nil
	}

	subErr := &SubprocessError{
		Command:  cmd.String(),
		Dir:      cmd.Dir,
		ExitCode: result.ExitCode,
		Err:      err,
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		subErr.ExitCode = -1
	}

	e.logger.Debug("command failed", zap.String("command", cmd.String()), zap.Int("exitCode", subErr.ExitCode))
	return result, subErr
}
