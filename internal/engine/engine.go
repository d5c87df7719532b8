// Package engine runs playbooks against an inventory.
//
// For every play, the hosts of the selected group are visited in inventory
// order; on each host the play's tasks run one after the other. Each task is
// preceded by a reachability probe. An unreachable host is reported once and
// skipped for the rest of the play; a failing command is reported and the host
// moves on to its next task. Nothing that happens on one host stops another.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/eniac111/ansimple/internal/log"
	"github.com/eniac111/ansimple/internal/types"
)

// ErrInterrupted is returned when the run context is cancelled before all
// work was issued.
var ErrInterrupted = errors.New("run interrupted")

// Remote opens non-interactive sessions to hosts. Implementations must never
// prompt and must honour ctx deadlines.
type Remote interface {
	// Probe returns nil when a session to identity@host can be established.
	Probe(ctx context.Context, identity string, host types.Host) error
	// Execute runs command on host. A non-zero exit status is reported in the
	// result, not as an error; errors are reserved for transport failures.
	Execute(ctx context.Context, identity string, host types.Host, command string) (types.CommandResult, error)
}

// Start announces that a task is about to be attempted on a host.
type Start struct {
	Group    string
	Host     string
	Identity string
	Task     types.Task
}

// Reporter receives run events. Calls are made from a single goroutine.
type Reporter interface {
	TaskStarted(Start)
	Outcome(types.Outcome)
}

type nopReporter struct{}

func (nopReporter) TaskStarted(Start)     {}
func (nopReporter) Outcome(types.Outcome) {}

const (
	DefaultProbeTimeout   = 10 * time.Second
	DefaultCommandTimeout = 10 * time.Minute
	DefaultRetryInterval  = 500 * time.Millisecond
)

// Options tune the engine. Zero values are replaced with defaults.
type Options struct {
	// Forks bounds how many hosts of a play run at once. 1 keeps the run
	// strictly sequential.
	Forks          int
	ProbeTimeout   time.Duration
	CommandTimeout time.Duration
	// ProbeRetries is the number of extra probe attempts after a failure.
	ProbeRetries  int
	RetryInterval time.Duration
	Logger        *log.Logger
}

// Engine executes playbooks through a Remote.
type Engine struct {
	remote   Remote
	reporter Reporter
	opts     Options
	logger   *log.Logger
}

// New returns an Engine. reporter may be nil.
func New(remote Remote, reporter Reporter, opts Options) *Engine {
	if opts.Forks < 1 {
		opts.Forks = 1
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.ProbeRetries < 0 {
		opts.ProbeRetries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Engine{remote: remote, reporter: reporter, opts: opts, logger: opts.Logger}
}

type event struct {
	start   *Start
	outcome *types.Outcome
}

// Run executes pb against inv as identity. The returned error is nil unless
// identity is empty (types.ErrMissingIdentity, nothing is contacted) or ctx
// was cancelled (ErrInterrupted, the summary covers what completed).
func (e *Engine) Run(ctx context.Context, pb types.Playbook, inv *types.Inventory, identity string) (*Summary, error) {
	if identity == "" {
		return nil, types.ErrMissingIdentity
	}

	summary := NewSummary()
	events := make(chan event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.start != nil {
				e.reporter.TaskStarted(*ev.start)
				continue
			}
			summary.add(*ev.outcome)
			e.reporter.Outcome(*ev.outcome)
		}
	}()

	var interrupted atomic.Bool
	for _, group := range pb {
		if ctx.Err() != nil {
			interrupted.Store(true)
			break
		}
		hosts := inv.Lookup(group.Hosts)
		if len(hosts) == 0 {
			e.logger.Debug("no hosts matched, skipping play", "group", group.Hosts)
			continue
		}

		g := new(errgroup.Group)
		g.SetLimit(e.opts.Forks)
		for _, host := range hosts {
			if ctx.Err() != nil {
				interrupted.Store(true)
				break
			}
			g.Go(func() error {
				if !e.runHost(ctx, group, host, identity, events) {
					interrupted.Store(true)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	close(events)
	<-done

	if interrupted.Load() {
		return summary, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
	}
	return summary, nil
}

// runHost runs the tasks of group on host in order. It returns false when it
// stopped early because ctx was cancelled.
func (e *Engine) runHost(ctx context.Context, group types.HostGroup, host types.Host, identity string, events chan<- event) bool {
	logger := e.logger.With("group", group.Hosts, "host", host.Name)

	for _, task := range group.Tasks {
		if task.Bash == "" {
			logger.Debug("skipping task without a command", "task", task.Name)
			continue
		}
		if ctx.Err() != nil {
			return false
		}

		events <- event{start: &Start{Group: group.Hosts, Host: host.Name, Identity: identity, Task: task}}

		started := time.Now()
		outcome := types.Outcome{
			Group:    group.Hosts,
			Host:     host.Name,
			Identity: identity,
			Task:     task,
		}

		if err := e.probe(ctx, logger, identity, host); err != nil {
			// A probe cut short by cancellation says nothing about the host.
			if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, ctxErr) || errors.Is(err, context.Cause(ctx))) {
				return false
			}
			outcome.Kind = types.OutcomeUnreachable
			outcome.Err = err
			outcome.Duration = time.Since(started)
			events <- event{outcome: &outcome}
			return true
		}

		res, err := e.execute(ctx, identity, host, task.Bash)
		outcome.Stdout = res.Stdout
		outcome.Stderr = res.Stderr
		outcome.ExitStatus = res.ExitStatus
		outcome.Duration = time.Since(started)
		switch {
		case err != nil:
			logger.WithError(err).Debug("command failed to run", "task", task.Name)
			outcome.Kind = types.OutcomeFailure
			outcome.Err = err
			if outcome.Stderr == "" {
				outcome.Stderr = err.Error() + "\n"
			}
		case res.ExitStatus != 0:
			outcome.Kind = types.OutcomeFailure
		default:
			outcome.Kind = types.OutcomeSuccess
		}
		events <- event{outcome: &outcome}
	}
	return true
}

// probe checks reachability, retrying with exponential backoff. Each attempt
// is bounded by ProbeTimeout and survives cancellation of ctx once started.
func (e *Engine) probe(ctx context.Context, logger *log.Logger, identity string, host types.Host) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.RetryInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ProbeTimeout)
		defer cancel()

		err := e.remote.Probe(pctx, identity, host)
		if err != nil {
			if errors.Is(pctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("probe timed out after %s: %w", e.opts.ProbeTimeout, err)
			}
			logger.WithError(err).Debug("probe failed", "attempt", attempt)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(e.opts.ProbeRetries+1)))
	return err
}

func (e *Engine) execute(ctx context.Context, identity string, host types.Host, command string) (types.CommandResult, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.CommandTimeout)
	defer cancel()

	res, err := e.remote.Execute(cctx, identity, host, command)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("command timed out after %s: %w", e.opts.CommandTimeout, err)
	}
	return res, err
}
