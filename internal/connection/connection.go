// Package connection picks the transport for each host, following the
// ansible_connection inventory variable.
package connection

import (
	"context"
	"fmt"

	"github.com/eniac111/ansimple/internal/types"
)

const (
	SSH   = "ssh"
	Local = "local"
)

// Remote mirrors engine.Remote.
type Remote interface {
	Probe(ctx context.Context, identity string, host types.Host) error
	Execute(ctx context.Context, identity string, host types.Host, command string) (types.CommandResult, error)
}

// Router dispatches to SSH or Local per host. Hosts without an
// ansible_connection variable use Default, which must be SSH or Local.
type Router struct {
	Default string
	SSH     Remote
	Local   Remote
}

// Valid reports whether name is a supported connection type.
func Valid(name string) bool {
	return name == SSH || name == Local
}

// For returns the connection type host will use when default is in effect.
func For(host types.Host, def string) string {
	if c := host.Var("ansible_connection"); c != "" {
		return c
	}
	return def
}

// NeedsSSH reports whether any host targeted by pb would connect over SSH.
func NeedsSSH(pb types.Playbook, inv *types.Inventory, def string) bool {
	for _, group := range pb {
		for _, host := range inv.Lookup(group.Hosts) {
			if For(host, def) == SSH {
				return true
			}
		}
	}
	return false
}

func (r Router) pick(host types.Host) (Remote, error) {
	name := For(host, r.Default)
	var remote Remote
	switch name {
	case SSH:
		remote = r.SSH
	case Local:
		remote = r.Local
	default:
		return nil, fmt.Errorf("host %s: unsupported connection %q", host.Name, name)
	}
	if remote == nil {
		return nil, fmt.Errorf("host %s: %s connection is not configured", host.Name, name)
	}
	return remote, nil
}

func (r Router) Probe(ctx context.Context, identity string, host types.Host) error {
	remote, err := r.pick(host)
	if err != nil {
		return err
	}
	return remote.Probe(ctx, identity, host)
}

func (r Router) Execute(ctx context.Context, identity string, host types.Host, command string) (types.CommandResult, error) {
	remote, err := r.pick(host)
	if err != nil {
		return types.CommandResult{ExitStatus: -1}, err
	}
	return remote.Execute(ctx, identity, host, command)
}
