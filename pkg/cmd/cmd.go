// Package cmd wraps external process invocation. The container engine and
// everything else this tool shells out to goes through the Runner interface,
// so orchestration code can be exercised with test doubles.
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Result captures the outcome of one external command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns combined stdout and stderr, for error reporting.
func (r Result) Output() string {
	return strings.TrimRight(r.Stdout+r.Stderr, "\n")
}

// Runner executes external commands. ExecRunner is the real implementation.
type Runner interface {
	Run(ctx context.Context, c *Cmd) (Result, error)
}

type Cmd struct {
	cmd     string
	args    []string
	dir     string
	verbose bool
	preText string
	// arguments whose values must not reach logs, like passwords
	secrets []string
}

func New(c string) *Cmd {
	return &Cmd{cmd: c}
}

func (c *Cmd) Arg(args ...string) *Cmd {
	c.args = append(c.args, args...)
	return c
}

// SecretArg appends an argument whose value is redacted in logs.
func (c *Cmd) SecretArg(arg string) *Cmd {
	c.args = append(c.args, arg)
	c.secrets = append(c.secrets, arg)
	return c
}

// Dir sets the working directory for the command.
func (c *Cmd) Dir(dir string) *Cmd {
	c.dir = dir
	return c
}

func (c *Cmd) SetVerbose(verbosity bool) *Cmd {
	c.verbose = verbosity
	return c
}

func (c *Cmd) PreInfo(msg string) *Cmd {
	c.preText = msg
	return c
}

func (c *Cmd) Equal(cmd *Cmd) bool {
	return c.String() == cmd.String()
}

// Command, Args and WorkDir expose the assembled invocation, so Runner
// implementations other than ExecRunner can inspect it.
func (c *Cmd) Command() string {
	return c.cmd
}

func (c *Cmd) Args() []string {
	return append([]string{}, c.args...)
}

func (c *Cmd) WorkDir() string {
	return c.dir
}

func (c *Cmd) String() string {
	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = a
		for _, s := range c.secrets {
			if a == s {
				args[i] = "********"
			}
		}
	}
	return strings.Trim(fmt.Sprintf("%s %s", c.cmd, strings.Join(args, " ")), " ")
}

// DryRunRunner logs each command instead of executing it and reports
// success.
type DryRunRunner struct{}

func (DryRunRunner) Run(_ context.Context, c *Cmd) (Result, error) {
	if c.preText != "" {
		log.Info().Msg(c.preText)
	}
	log.Info().Str("cmd", c.String()).Msg("Would run")
	return Result{}, nil
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c *Cmd) (Result, error) {
	if c.cmd == "" {
		return Result{}, errors.New("command not set")
	}
	if c.preText != "" {
		log.Info().Msg(c.preText)
	}

	cmd := exec.CommandContext(ctx, c.cmd, c.args...)
	cmd.Dir = c.dir

	var stdout, stderr bytes.Buffer
	if c.verbose {
		// stream to the terminal and keep a copy for error reporting
		cmd.Stdout = io.MultiWriter(os.Stdout, &stdout)
		cmd.Stderr = io.MultiWriter(os.Stderr, &stderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	log.Debug().Str("cmd", c.String()).Str("dir", c.dir).Msg("Running")
	err := cmd.Run()

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Warn().Str("cmd", c.cmd).Msg("Command was cancelled")
		} else if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn().Str("cmd", c.cmd).Msg("Command timed out")
		}
		return Result{}, ctx.Err()
	}

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		log.Error().Err(err).Str("cmd", c.String()).Msg("Could not run command")
		if out := result.Output(); out != "" {
			log.Error().Msg(out)
		}
		return result, err
	}
	return result, nil
}
