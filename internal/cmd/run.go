package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eniac111/ansimple/internal/config"
	"github.com/eniac111/ansimple/internal/connection"
	"github.com/eniac111/ansimple/internal/engine"
	"github.com/eniac111/ansimple/internal/exitcode"
	"github.com/eniac111/ansimple/internal/inventory"
	"github.com/eniac111/ansimple/internal/modules/shell"
	"github.com/eniac111/ansimple/internal/playbook"
	"github.com/eniac111/ansimple/internal/report"
	"github.com/eniac111/ansimple/internal/ssh"
)

func (a *app) runPlaybook(cmd *cobra.Command, _ []string) error {
	s, err := a.settings(cmd)
	if err != nil {
		return err
	}
	logger := a.logger(s)

	identity, err := config.ResolveIdentity(a.user, s)
	if err != nil {
		return err
	}

	inv, err := inventory.Load(s.Inventory)
	if err != nil {
		return err
	}
	pb, err := playbook.Load(s.Playbook)
	if err != nil {
		return err
	}

	router := connection.Router{Default: s.Connection, Local: shell.Local{}}
	if connection.NeedsSSH(pb, inv, s.Connection) {
		client, err := ssh.New(ssh.Config{
			Port:                  a.port,
			KeyPath:               s.PrivateKey,
			Agent:                 true,
			KnownHostsPath:        s.KnownHosts,
			InsecureIgnoreHostKey: !s.HostKeyChecking,
			Logger:                logger,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		defer client.Close()
		router.SSH = client
	}

	reporter, err := report.New(a.output, a.out)
	if err != nil {
		return fmt.Errorf("%w: %w", exitcode.ErrUsage, err)
	}

	eng := engine.New(router, reporter, engine.Options{
		Forks:          s.Forks,
		ProbeTimeout:   s.Timeout,
		CommandTimeout: s.CommandTimeout,
		ProbeRetries:   s.Retries,
		Logger:         logger,
	})

	logger.Debug("starting run", "playbook", s.Playbook, "inventory", s.Inventory, "identity", identity, "forks", s.Forks)
	summary, err := eng.Run(cmd.Context(), pb, inv, identity)
	if summary != nil {
		reporter.Recap(summary)
	}
	if err != nil {
		return err
	}
	if a.failOnError && summary.Failed() {
		return exitcode.ErrHostFailures
	}
	return nil
}
