// Package cmd wires the ansimple command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/eniac111/ansimple/internal/config"
	"github.com/eniac111/ansimple/internal/exitcode"
	"github.com/eniac111/ansimple/internal/log"
	"github.com/eniac111/ansimple/internal/report"
)

// app carries flag values and output streams for one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer

	envDir         string
	hosts          string
	playbook       string
	user           string
	forks          int
	timeout        time.Duration
	commandTimeout time.Duration
	retries        int
	privateKey     string
	knownHosts     string
	insecure       bool
	connection     string
	port           int
	output         string
	failOnError    bool
	logLevel       string
	logFormat      string
}

// NewRootCommand builds the command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "ansimple",
		Short: "Run shell tasks from a playbook on inventory hosts over SSH",
		Long: `ansimple reads a YAML playbook and an INI inventory, then runs each task's
bash command on every host of the play's group. Hosts are probed before each
command; unreachable hosts are reported and skipped for the rest of the play.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          a.runPlaybook,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", exitcode.ErrUsage, err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&a.hosts, "hosts", "i", config.DefaultInventory, "inventory file ($ANSIMPLE_INVENTORY)")
	pf.StringVarP(&a.playbook, "playbook", "p", config.DefaultPlaybook, "playbook file ($ANSIMPLE_PLAYBOOK)")
	pf.StringVarP(&a.connection, "connection", "c", config.DefaultConnection, "default connection: ssh or local ($ANSIMPLE_CONNECTION)")
	pf.StringVarP(&a.output, "output", "o", report.FormatText, "output format: text or json")
	pf.StringVar(&a.envDir, "env-dir", ".", "directory holding the .env file")
	pf.StringVar(&a.logLevel, "log-level", config.DefaultLogLevel, "diagnostic log level ($ANSIMPLE_LOG_LEVEL)")
	pf.StringVar(&a.logFormat, "log-format", config.DefaultLogFormat, "diagnostic log format: text or json ($ANSIMPLE_LOG_FORMAT)")

	f := root.Flags()
	f.StringVarP(&a.user, "user", "u", "", "remote user (defaults to $USER)")
	f.IntVarP(&a.forks, "forks", "f", config.DefaultForks, "hosts handled in parallel ($ANSIMPLE_FORKS)")
	f.DurationVarP(&a.timeout, "timeout", "T", config.DefaultTimeout, "connection probe timeout ($ANSIMPLE_TIMEOUT)")
	f.DurationVar(&a.commandTimeout, "command-timeout", config.DefaultCommandTimeout, "per-command timeout ($ANSIMPLE_COMMAND_TIMEOUT)")
	f.IntVar(&a.retries, "retries", 0, "extra probe attempts per host ($ANSIMPLE_RETRIES)")
	f.StringVar(&a.privateKey, "private-key", "", "private key file ($ANSIMPLE_PRIVATE_KEY)")
	f.StringVar(&a.knownHosts, "known-hosts", "", "known_hosts file ($ANSIMPLE_KNOWN_HOSTS)")
	f.BoolVar(&a.insecure, "insecure-ignore-host-key", false, "skip host key verification")
	f.IntVar(&a.port, "port", 0, "SSH port for hosts without ansible_port")
	f.BoolVar(&a.failOnError, "fail-on-error", false, "exit non-zero when any host failed or was unreachable")

	root.AddCommand(a.newCheckCommand(), a.newInventoryCommand())
	return root
}

// ExecuteContext runs the command line with os.Args against stdout/stderr.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", exitcode.ErrUsage, err)
		}
		return nil
	}
}

// settings loads the environment and overlays every flag set explicitly.
func (a *app) settings(cmd *cobra.Command) (config.Settings, error) {
	s, err := config.Load(a.envDir)
	if err != nil {
		return s, err
	}

	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("hosts") {
		s.Inventory = a.hosts
	}
	if changed("playbook") {
		s.Playbook = a.playbook
	}
	if changed("connection") {
		s.Connection = a.connection
	}
	if changed("log-level") {
		s.LogLevel = a.logLevel
	}
	if changed("log-format") {
		s.LogFormat = a.logFormat
	}
	if changed("forks") {
		s.Forks = a.forks
	}
	if changed("timeout") {
		s.Timeout = a.timeout
	}
	if changed("command-timeout") {
		s.CommandTimeout = a.commandTimeout
	}
	if changed("retries") {
		s.Retries = a.retries
	}
	if changed("private-key") {
		s.PrivateKey = a.privateKey
	}
	if changed("known-hosts") {
		s.KnownHosts = a.knownHosts
	}
	if changed("insecure-ignore-host-key") {
		s.HostKeyChecking = !a.insecure
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	if a.output != report.FormatText && a.output != report.FormatJSON {
		return s, fmt.Errorf("%w: unknown output format %q", exitcode.ErrUsage, a.output)
	}
	return s, nil
}

func (a *app) logger(s config.Settings) *log.Logger {
	return log.New(log.Config{
		Level:  log.ParseLevel(s.LogLevel),
		Format: log.ParseFormat(s.LogFormat),
		Output: a.errOut,
	})
}
