package exitcode

import (
	"errors"
	"io/fs"
	"os"

	"github.com/eniac111/ansimple/internal/config"
	"github.com/eniac111/ansimple/internal/engine"
	"github.com/eniac111/ansimple/internal/inventory"
	"github.com/eniac111/ansimple/internal/playbook"
	"github.com/eniac111/ansimple/internal/ssh"
	"github.com/eniac111/ansimple/internal/types"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// InvalidInput indicates the playbook or inventory could not be read or is malformed
	InvalidInput = 3

	// ConfigError indicates missing identity, bad settings or SSH setup failure
	ConfigError = 4

	// HostFailures indicates at least one task failed or host was unreachable
	// and the run was asked to fail on errors
	HostFailures = 5

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

var (
	// ErrUsage marks command line misuse.
	ErrUsage = errors.New("usage error")
	// ErrHostFailures is returned when a run had failed or unreachable hosts.
	ErrHostFailures = errors.New("one or more hosts failed")
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode classifies err by the sentinels it wraps.
func DetermineExitCode(err error) int {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, engine.ErrInterrupted):
		return Interrupted
	case errors.Is(err, ErrUsage):
		return UsageError
	case errors.Is(err, types.ErrMissingIdentity),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, ssh.ErrNoAuthMethods):
		return ConfigError
	case errors.Is(err, playbook.ErrParse),
		errors.Is(err, playbook.ErrInvalidPlaybook),
		errors.Is(err, inventory.ErrParse),
		errors.Is(err, inventory.ErrDuplicateSection),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission):
		return InvalidInput
	case errors.Is(err, ErrHostFailures):
		return HostFailures
	default:
		return GeneralError
	}
}

// Description returns a human-readable description of an exit code
func Description(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case InvalidInput:
		return "Invalid playbook or inventory"
	case ConfigError:
		return "Configuration error"
	case HostFailures:
		return "Host failures"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
