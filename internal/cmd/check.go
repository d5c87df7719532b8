package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eniac111/ansimple/internal/connection"
	"github.com/eniac111/ansimple/internal/inventory"
	"github.com/eniac111/ansimple/internal/playbook"
	"github.com/eniac111/ansimple/internal/report"
	"github.com/eniac111/ansimple/internal/types"
)

func (a *app) newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the playbook and inventory and print the plan without contacting hosts",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.settings(cmd)
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
			if a.output == report.FormatJSON {
				return a.writeJSON(plan(pb, inv, s.Connection))
			}
			printPlan(a, pb, inv, s.Connection)
			return nil
		},
	}
}

type plannedHost struct {
	Name       string `json:"name"`
	Connection string `json:"connection"`
}

type plannedPlay struct {
	Hosts   string        `json:"hosts"`
	Targets []plannedHost `json:"targets"`
	Tasks   []types.Task  `json:"tasks"`
}

func plan(pb types.Playbook, inv *types.Inventory, def string) []plannedPlay {
	plays := make([]plannedPlay, 0, len(pb))
	for _, group := range pb {
		p := plannedPlay{Hosts: group.Hosts, Targets: []plannedHost{}, Tasks: group.Tasks}
		for _, h := range inv.Lookup(group.Hosts) {
			p.Targets = append(p.Targets, plannedHost{Name: h.Name, Connection: connection.For(h, def)})
		}
		plays = append(plays, p)
	}
	return plays
}

func printPlan(a *app, pb types.Playbook, inv *types.Inventory, def string) {
	tasks := 0
	for i, p := range plan(pb, inv, def) {
		fmt.Fprintf(a.out, "play %d: %s\n", i+1, p.Hosts)
		if len(p.Targets) == 0 {
			fmt.Fprintln(a.out, "  no matching hosts")
		}
		for _, h := range p.Targets {
			fmt.Fprintf(a.out, "  host %s (%s)\n", h.Name, h.Connection)
		}
		for _, t := range p.Tasks {
			fmt.Fprintf(a.out, "  task %q: %s\n", t.Name, firstLine(t.Bash))
		}
		tasks += len(p.Tasks)
	}
	fmt.Fprintf(a.out, "%d plays, %d tasks\n", len(pb), tasks)
}

func firstLine(s string) string {
	line, rest, found := strings.Cut(strings.TrimSpace(s), "\n")
	if found && strings.TrimSpace(rest) != "" {
		return line + " ..."
	}
	return line
}

func (a *app) newInventoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "List inventory groups and their hosts",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.settings(cmd)
			if err != nil {
				return err
			}
			inv, err := inventory.Load(s.Inventory)
			if err != nil {
				return err
			}
			if a.output == report.FormatJSON {
				return a.writeJSON(inv.Map())
			}
			for _, group := range inv.Groups() {
				fmt.Fprintf(a.out, "[%s]\n", group)
				for _, h := range inv.Lookup(group) {
					fmt.Fprintln(a.out, hostLine(h))
				}
			}
			return nil
		},
	}
}

func hostLine(h types.Host) string {
	var b strings.Builder
	b.WriteString(h.Name)
	for _, k := range slices.Sorted(maps.Keys(h.Vars)) {
		fmt.Fprintf(&b, " %s=%s", k, h.Vars[k])
	}
	return b.String()
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
