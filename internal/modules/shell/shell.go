// Package shell runs task commands on the control machine itself, for hosts
// using the local connection.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/eniac111/ansimple/internal/types"
)

// DefaultShell interprets commands when Local.Shell is empty.
const DefaultShell = "/bin/sh"

// waitDelay bounds how long Execute waits for output pipes after the command
// was killed.
const waitDelay = time.Second

// Local executes commands with a local shell. It satisfies engine.Remote; the
// identity is ignored since commands run as the current user.
type Local struct {
	Shell string
}

func (l Local) shell() string {
	if l.Shell == "" {
		return DefaultShell
	}
	return l.Shell
}

// Probe checks that the shell can be found.
func (l Local) Probe(ctx context.Context, identity string, host types.Host) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := exec.LookPath(l.shell()); err != nil {
		return fmt.Errorf("local shell unavailable: %w", err)
	}
	return nil
}

// Execute runs command with "<shell> -c" in its own process group. The whole
// group is killed when ctx ends.
func (l Local) Execute(ctx context.Context, identity string, host types.Host, command string) (types.CommandResult, error) {
	cmd := exec.CommandContext(ctx, l.shell(), "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	res := types.CommandResult{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitStatus = -1
		return res, fmt.Errorf("command interrupted: %w", ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitStatus = exitErr.ExitCode()
		return res, nil
	}
	res.ExitStatus = -1
	return res, fmt.Errorf("failed to run command: %w", err)
}
