// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pebble

import (
	"fmt"
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/state"
)

// ExecOptions describes a command to execute in the container.
type ExecOptions struct {
	Command     []string
	Environment map[string]string
	WorkingDir  string
	Timeout     time.Duration
	User        string
	Group       string

	// Stdin is the standard input passed to the command, if any.
	Stdin io.Reader

	// Stdout and Stderr receive the command output when set.
	Stdout io.Writer
	Stderr io.Writer
}

// ExecRecord is the journal entry of an executed command.
type ExecRecord struct {
	Container   string
	Command     []string
	Environment map[string]string
	WorkingDir  string
	Timeout     time.Duration
	User        string
	Group       string
	Stdin       string

	// Prefix is the registered command prefix that matched.
	Prefix []string
}

// ExitError is returned by Wait when the command exits with a non-zero
// code.
type ExitError struct {
	Code   int
	Stderr string
}

// Error implements error.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ExecProcess is a command started by Exec. The command has already
// completed: Wait only delivers its canned result.
type ExecProcess struct {
	exec   state.Exec
	stdout io.Writer
	stderr io.Writer
	waited bool
}

// Exec runs a command, resolving its result against the container's
// registered exec mocks. The longest registered prefix of the command wins;
// a command matching no prefix fails with NoMatchingExec.
func (c *Client) Exec(opts ExecOptions) (*ExecProcess, error) {
	if err := c.connect(); err != nil {
		return nil, errors.Trace(err)
	}
	if len(opts.Command) == 0 {
		return nil, coreerrors.Errorf(coreerrors.ProtocolError, "must specify command")
	}
	exec, ok := c.container.MatchExec(opts.Command)
	if !ok {
		err := coreerrors.Errorf(coreerrors.NoMatchingExec,
			"container %q: no exec mock registered matching %q", c.container.Name, shellquote.Join(opts.Command...))
		if c.onMisuse != nil {
			err = c.onMisuse(err)
		}
		return nil, err
	}
	var stdin string
	if opts.Stdin != nil {
		data, err := io.ReadAll(opts.Stdin)
		if err != nil {
			return nil, errors.Annotate(err, "reading stdin")
		}
		stdin = string(data)
	}
	record := ExecRecord{
		Container:   c.container.Name,
		Command:     append([]string(nil), opts.Command...),
		Environment: copyData(opts.Environment),
		WorkingDir:  opts.WorkingDir,
		Timeout:     opts.Timeout,
		User:        opts.User,
		Group:       opts.Group,
		Stdin:       stdin,
		Prefix:      append([]string(nil), exec.Command...),
	}
	if c.onExec != nil {
		c.onExec(record)
	}
	logger.Debugf("container %q exec %s matched %q", c.container.Name,
		shellquote.Join(opts.Command...), exec.String())
	return &ExecProcess{
		exec:   exec,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
	}, nil
}

// Wait writes the command output to the configured writers and returns an
// *ExitError for a non-zero exit code.
func (p *ExecProcess) Wait() error {
	if p.waited {
		return coreerrors.Errorf(coreerrors.ProtocolError, "process already waited for")
	}
	p.waited = true
	if p.stdout != nil {
		if _, err := io.WriteString(p.stdout, p.exec.Stdout); err != nil {
			return errors.Trace(err)
		}
	}
	if p.stderr != nil {
		if _, err := io.WriteString(p.stderr, p.exec.Stderr); err != nil {
			return errors.Trace(err)
		}
	}
	if p.exec.ReturnCode != 0 {
		return &ExitError{Code: p.exec.ReturnCode, Stderr: p.exec.Stderr}
	}
	return nil
}

// WaitOutput returns the command output. It cannot be used when Stdout was
// set in the options.
func (p *ExecProcess) WaitOutput() (stdout, stderr string, err error) {
	if p.stdout != nil {
		return "", "", coreerrors.Errorf(coreerrors.ProtocolError, "cannot call WaitOutput with Stdout set")
	}
	if p.waited {
		return "", "", coreerrors.Errorf(coreerrors.ProtocolError, "process already waited for")
	}
	p.waited = true
	if p.stderr != nil {
		if _, err := io.WriteString(p.stderr, p.exec.Stderr); err != nil {
			return "", "", errors.Trace(err)
		}
	} else {
		stderr = p.exec.Stderr
	}
	if p.exec.ReturnCode != 0 {
		return p.exec.Stdout, stderr, &ExitError{Code: p.exec.ReturnCode, Stderr: p.exec.Stderr}
	}
	return p.exec.Stdout, stderr, nil
}
