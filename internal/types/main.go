package types

import "time"

// UngroupedGroup collects inventory hosts listed before any [group] header.
const UngroupedGroup = "ungrouped"

// Host represents one machine in the inventory.
type Host struct {
	Name string            `json:"name" yaml:"name"`
	Vars map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// Var returns the inline inventory variable key, or "" when unset.
func (h Host) Var(key string) string {
	if h.Vars == nil {
		return ""
	}
	return h.Vars[key]
}

// Address is the name used to reach the host: ansible_host when set, else Name.
func (h Host) Address() string {
	if addr := h.Var("ansible_host"); addr != "" {
		return addr
	}
	return h.Name
}

// Inventory holds hosts grouped by name. The zero value is an empty inventory.
type Inventory struct {
	groups map[string][]Host
	order  []string
}

// NewInventory returns an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{groups: map[string][]Host{}}
}

// Add appends host to group, declaring the group on first use.
func (inv *Inventory) Add(group string, host Host) {
	if inv.groups == nil {
		inv.groups = map[string][]Host{}
	}
	if _, ok := inv.groups[group]; !ok {
		inv.order = append(inv.order, group)
	}
	inv.groups[group] = append(inv.groups[group], host)
}

// Lookup returns the hosts of group in inventory order. Unknown groups yield an
// empty slice; a lookup never fails.
func (inv *Inventory) Lookup(group string) []Host {
	if inv == nil {
		return []Host{}
	}
	hosts, ok := inv.groups[group]
	if !ok {
		return []Host{}
	}
	out := make([]Host, len(hosts))
	copy(out, hosts)
	return out
}

// Groups returns the group names in the order they were first declared.
func (inv *Inventory) Groups() []string {
	if inv == nil {
		return nil
	}
	out := make([]string, len(inv.order))
	copy(out, inv.order)
	return out
}

// Map returns a copy of the inventory as group name to host names.
func (inv *Inventory) Map() map[string][]string {
	out := map[string][]string{}
	if inv == nil {
		return out
	}
	for group, hosts := range inv.groups {
		names := make([]string, 0, len(hosts))
		for _, h := range hosts {
			names = append(names, h.Name)
		}
		out[group] = names
	}
	return out
}

// Playbook is the ordered list of plays read from a playbook file.
type Playbook []HostGroup

// HostGroup targets one inventory group with an ordered list of tasks.
type HostGroup struct {
	Hosts string `json:"hosts" yaml:"hosts"`
	Tasks []Task `json:"tasks" yaml:"tasks"`
}

// Task is a named shell command.
type Task struct {
	Name string `json:"name" yaml:"name"`
	Bash string `json:"bash" yaml:"bash"`
}

// CommandResult is what a remote execution returns once the command ran.
type CommandResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitStatus int    `json:"exit_status"`
}

// OutcomeKind classifies the result of one task on one host.
type OutcomeKind int

const (
	OutcomeUnreachable OutcomeKind = iota
	OutcomeSuccess
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeSuccess:
		return "ok"
	case OutcomeFailure:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is reported once per attempted (task, host) pair.
type Outcome struct {
	Kind       OutcomeKind   `json:"kind"`
	Group      string        `json:"group"`
	Host       string        `json:"host"`
	Identity   string        `json:"identity"`
	Task       Task          `json:"task"`
	Stdout     string        `json:"stdout,omitempty"`
	Stderr     string        `json:"stderr,omitempty"`
	ExitStatus int           `json:"exit_status"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}
