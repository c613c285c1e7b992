// Package runtime wraps the container runtime's CLI as an opaque
// subprocess, exactly as spec.md §1 mandates ("the container runtime itself
// is invoked as an opaque subprocess") rather than a client SDK.
//
// Grounded on pkg/commands/os.go's OSCommand: a struct holding an
// injectable command func and getenv func for testability, plus
// pkg/commands/errors.go's WrapError/ComplexError pattern.
package runtime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/kill"
	"github.com/mgutz/str"
	"github.com/sirupsen/logrus"
)

// Runner executes runtime CLI commands, optionally elevated via sudo.
type Runner struct {
	Log     *logrus.Entry
	Bin     string // "docker" or "podman"
	command func(string, ...string) *exec.Cmd
	getenv  func(string) string
	sudo    []string
}

// NewRunner builds a Runner bound to the given runtime binary, resolving
// the elevated-privilege prefix once at construction time.
func NewRunner(log *logrus.Entry, bin string) *Runner {
	r := &Runner{
		Log:     log,
		Bin:     bin,
		command: exec.Command,
		getenv:  os.Getenv,
	}
	r.sudo = sudoPrefix(bin, os.Geteuid, exec.LookPath, defaultCanRun)
	if len(r.sudo) > 0 {
		log.WithField("prefix", r.sudo).Debug("elevating runtime invocations via sudo")
	}
	return r
}

// NewTestRunner builds a Runner with no sudo resolution and an injected
// command func, for use by other packages' tests.
func NewTestRunner(log *logrus.Entry, bin string, command func(string, ...string) *exec.Cmd) *Runner {
	return &Runner{Log: log, Bin: bin, command: command, getenv: os.Getenv}
}

// SetCommand overrides the command func, for tests only.
func (r *Runner) SetCommand(cmd func(string, ...string) *exec.Cmd) {
	r.command = cmd
}

// Argv prefixes args with the runtime binary and, if applicable, sudo.
func (r *Runner) Argv(args ...string) []string {
	full := make([]string, 0, len(r.sudo)+1+len(args))
	full = append(full, r.sudo...)
	full = append(full, r.Bin)
	full = append(full, args...)
	return full
}

func (r *Runner) newCmd(args ...string) *exec.Cmd {
	argv := r.Argv(args...)
	cmd := r.command(argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	return cmd
}

// Run executes the runtime with args and returns its stdout, untrimmed; on
// a non-zero exit the error carries the captured stderr.
// The command is built through the injectable command func (so tests can
// substitute a fake binary) and raced against ctx so an operator interrupt
// kills the subprocess instead of leaking it (spec.md §5 Cancellation).
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	argv := r.Argv(args...)
	cmd := r.newCmd(args...)
	before := time.Now()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		out, err := cmd.Output()
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		_ = r.Kill(cmd)
		return "", NewError(Interrupt, "command interrupted: %v", argv)
	case res := <-done:
		r.Log.WithField("duration", time.Since(before)).Debugf("%v", argv)
		return sanitisedOutput(res.output, res.err)
	}
}

// RunTTY executes the runtime with args, streaming stdout/stderr/stdin
// directly to the operator's terminal -- used for layer exec steps, which
// must not buffer output (spec.md §4.E step 3). Built through the same
// injectable command func as Run, so it's substitutable in tests, and
// raced against ctx the same way for interrupt handling.
func (r *Runner) RunTTY(ctx context.Context, args ...string) error {
	cmd := r.newCmd(args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	kill.PrepareForChildren(cmd)

	done := make(chan error, 1)
	go func() { done <- cmd.Run() }()

	select {
	case <-ctx.Done():
		_ = r.Kill(cmd)
		return NewError(Interrupt, "exec interrupted: %v", r.Argv(args...))
	case err := <-done:
		if err != nil {
			return WrapError(err)
		}
		return nil
	}
}

// RunShellString tokenizes a shell-like command string via str.ToArgv and
// runs the resulting argv directly with exec.CommandContext, matching
// OSCommand.ExecutableFromString's approach. It does not go through Run: no
// runtime binary or sudo prefix is added and the injected command func is
// not used.
func (r *Runner) RunShellString(ctx context.Context, commandStr string) (string, error) {
	argv := str.ToArgv(commandStr)
	if len(argv) == 0 {
		return "", goerrors.New("empty command")
	}
	before := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	output, err := sanitisedOutput(cmd.Output())
	r.Log.WithField("duration", time.Since(before)).Debugf("%s", commandStr)
	return output, err
}

// Kill terminates a running subprocess and its process group, via
// github.com/jesseduffield/kill, on operator interrupt (spec.md §5 Cancellation).
func (r *Runner) Kill(cmd *exec.Cmd) error {
	return kill.Kill(cmd)
}

func sanitisedOutput(output []byte, err error) (string, error) {
	outputString := string(output)
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return outputString, goerrors.New(fmt.Sprintf("%s", exitErr.Stderr))
		}
		return "", WrapError(err)
	}
	return outputString, nil
}
