// Package playbook reads and validates YAML playbooks.
package playbook

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eniac111/ansimple/internal/types"
)

var (
	// ErrParse marks playbook text that is not well-formed YAML.
	ErrParse = errors.New("playbook parse error")
	// ErrInvalidPlaybook marks well-formed YAML that is not a usable playbook.
	ErrInvalidPlaybook = errors.New("invalid playbook")
)

// ParseError wraps the YAML decoder error for malformed source text.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse playbook %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to parse playbook: %v", e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// ValidationError describes a structurally incomplete playbook. Play and Task
// are zero-based indexes, -1 when not applicable.
type ValidationError struct {
	Play   int
	Task   int
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Play < 0:
		return fmt.Sprintf("invalid playbook: %s", e.Reason)
	case e.Task < 0:
		return fmt.Sprintf("invalid playbook: play %d: %s", e.Play+1, e.Reason)
	default:
		return fmt.Sprintf("invalid playbook: play %d, task %d: %s", e.Play+1, e.Task+1, e.Reason)
	}
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPlaybook }

func invalid(play, task int, reason string) *ValidationError {
	return &ValidationError{Play: play, Task: task, Reason: reason}
}

// rawPlay keeps pointers so a missing key can be told apart from an empty one.
type rawPlay struct {
	Hosts *string    `yaml:"hosts"`
	Tasks *[]rawTask `yaml:"tasks"`
}

type rawTask struct {
	Name *string `yaml:"name"`
	Bash *string `yaml:"bash"`
}

// Load reads the playbook at path.
func Load(path string) (types.Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook: %w", err)
	}
	pb, err := Parse(data)
	var perr *ParseError
	if errors.As(err, &perr) {
		perr.Path = path
	}
	return pb, err
}

// Parse decodes and validates playbook text. Every play is checked for hosts
// and tasks, and every task for name and bash.
func Parse(data []byte) (types.Playbook, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid(-1, -1, "empty playbook")
		}
		return nil, &ParseError{Err: err}
	}
	// A second document would be silently ignored; reject it instead.
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return nil, invalid(-1, -1, "playbook must contain a single YAML document")
	} else if !errors.Is(err, io.EOF) {
		return nil, &ParseError{Err: err}
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, invalid(-1, -1, "empty playbook")
		}
		root = root.Content[0]
	}
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, invalid(-1, -1, "empty playbook")
	}
	if root.Kind != yaml.SequenceNode {
		return nil, invalid(-1, -1, "playbook must be a sequence of plays")
	}
	if len(root.Content) == 0 {
		return nil, invalid(-1, -1, "empty playbook")
	}

	pb := make(types.Playbook, 0, len(root.Content))
	for i, node := range root.Content {
		if node.Kind != yaml.MappingNode {
			return nil, invalid(i, -1, "play must be a mapping")
		}
		var raw rawPlay
		if err := node.Decode(&raw); err != nil {
			return nil, invalid(i, -1, err.Error())
		}
		group, err := convertPlay(i, raw)
		if err != nil {
			return nil, err
		}
		pb = append(pb, group)
	}
	return pb, nil
}

func convertPlay(i int, raw rawPlay) (types.HostGroup, error) {
	if raw.Hosts == nil {
		return types.HostGroup{}, invalid(i, -1, "missing hosts")
	}
	if *raw.Hosts == "" {
		return types.HostGroup{}, invalid(i, -1, "empty hosts")
	}
	if raw.Tasks == nil {
		return types.HostGroup{}, invalid(i, -1, "missing tasks")
	}
	group := types.HostGroup{Hosts: *raw.Hosts, Tasks: make([]types.Task, 0, len(*raw.Tasks))}
	for j, t := range *raw.Tasks {
		if t.Name == nil || *t.Name == "" {
			return types.HostGroup{}, invalid(i, j, "missing description of the task")
		}
		if t.Bash == nil || *t.Bash == "" {
			return types.HostGroup{}, invalid(i, j, "missing bash command to run")
		}
		group.Tasks = append(group.Tasks, types.Task{Name: *t.Name, Bash: *t.Bash})
	}
	return group, nil
}
