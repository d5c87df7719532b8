package playbook

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/eniac111/ansimple/internal/types"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want types.Playbook
	}{
		{
			name: "single play",
			src: `
---
- hosts: dbservers
  tasks:

    - name: Server uptime
      bash: uptime

    - name: Server disk usage
      bash: df -h
`,
			want: types.Playbook{
				{Hosts: "dbservers", Tasks: []types.Task{
					{Name: "Server uptime", Bash: "uptime"},
					{Name: "Server disk usage", Bash: "df -h"},
				}},
			},
		},
		{
			name: "two plays",
			src: `
---
- hosts: dbservers
  tasks:
    - name: Server uptime
      bash: uptime
    - name: Server disk usage
      bash: df -h
- hosts: webservers
  tasks:
    - name: Server CPU info
      bash: lscpu
`,
			want: types.Playbook{
				{Hosts: "dbservers", Tasks: []types.Task{
					{Name: "Server uptime", Bash: "uptime"},
					{Name: "Server disk usage", Bash: "df -h"},
				}},
				{Hosts: "webservers", Tasks: []types.Task{
					{Name: "Server CPU info", Bash: "lscpu"},
				}},
			},
		},
		{
			name: "empty task list is legal",
			src: `
- hosts: dbservers
  tasks: []
`,
			want: types.Playbook{{Hosts: "dbservers", Tasks: []types.Task{}}},
		},
		{
			name: "multi-line command",
			src: `
- hosts: web
  tasks:
    - name: Script
      bash: |
        set -e
        echo hi
`,
			want: types.Playbook{{Hosts: "web", Tasks: []types.Task{
				{Name: "Script", Bash: "set -e\necho hi\n"},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb, err := Parse([]byte(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, pb)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		reason string
	}{
		{name: "empty source", src: "", reason: "empty playbook"},
		{name: "document marker only", src: "---\n", reason: "empty playbook"},
		{name: "empty sequence", src: "[]\n", reason: "empty playbook"},
		{
			name: "task missing name",
			src: `
- hosts: dbservers
  tasks:
    - name: Server uptime
      bash: uptime
    - bash: df -h
`,
			reason: "missing description of the task",
		},
		{
			name: "task missing bash",
			src: `
- hosts: dbservers
  tasks:
    - name: Server uptime
      bash: uptime
    - name: Server disk usage
`,
			reason: "missing bash command to run",
		},
		{
			name: "missing hosts",
			src: `
- tasks:
    - name: Server uptime
      bash: uptime
`,
			reason: "missing hosts",
		},
		{
			name:   "missing tasks",
			src:    "- hosts: dbservers\n",
			reason: "missing tasks",
		},
		{
			name: "second play missing tasks",
			src: `
- hosts: dbservers
  tasks:
    - name: Server uptime
      bash: uptime
- hosts: webservers
`,
			reason: "missing tasks",
		},
		{name: "mapping root", src: "hosts: dbservers\n", reason: "sequence of plays"},
		{name: "scalar play", src: "- dbservers\n", reason: "play must be a mapping"},
		{
			name: "task is a scalar",
			src: `
- hosts: dbservers
  tasks:
    - uptime
`,
			reason: "play 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb, err := Parse([]byte(tt.src))
			require.Error(t, err)
			assert.Nil(t, pb)
			assert.True(t, errors.Is(err, ErrInvalidPlaybook), "want validation error, got %v", err)
			assert.False(t, errors.Is(err, ErrParse))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestParse_ValidationErrorLocatesTask(t *testing.T) {
	_, err := Parse([]byte(`
- hosts: a
  tasks:
    - name: one
      bash: "true"
- hosts: b
  tasks:
    - name: two
      bash: "true"
    - name: three
`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Play)
	assert.Equal(t, 1, verr.Task)
	assert.Equal(t, "invalid playbook: play 2, task 2: missing bash command to run", err.Error())
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte(`
---
- hosts: dbservers
  tasks:
][]
    - name: Server uptime
      bash: uptime
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
	assert.False(t, errors.Is(err, ErrInvalidPlaybook))

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "playbook.yaml")
	require.NoError(t, os.WriteFile(good, []byte("- hosts: all\n  tasks:\n    - name: id\n      bash: id\n"), 0o644))
	pb, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, "all", pb[0].Hosts)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- hosts: [unclosed\n"), 0o644))
	_, err = Load(bad)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, bad, perr.Path)
	assert.Contains(t, err.Error(), bad)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

// Any well-formed playbook survives a marshal/parse cycle unchanged.
func TestProperty_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genTask := gopter.CombineGens(
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
	).Map(func(vals []interface{}) types.Task {
		return types.Task{
			Name: vals[0].(string),
			Bash: vals[1].(string) + " " + vals[2].(string),
		}
	})

	genGroup := gopter.CombineGens(
		gen.Identifier(),
		gen.SliceOf(genTask),
	).Map(func(vals []interface{}) types.HostGroup {
		tasks := vals[1].([]types.Task)
		if tasks == nil {
			tasks = []types.Task{}
		}
		return types.HostGroup{Hosts: vals[0].(string), Tasks: tasks}
	})

	genPlaybook := gopter.CombineGens(
		genGroup,
		gen.SliceOf(genGroup),
	).Map(func(vals []interface{}) types.Playbook {
		return append(types.Playbook{vals[0].(types.HostGroup)}, vals[1].([]types.HostGroup)...)
	})

	properties.Property("parse(marshal(pb)) == pb", prop.ForAll(
		func(pb types.Playbook) bool {
			data, err := yaml.Marshal(pb)
			if err != nil {
				return false
			}
			got, err := Parse(data)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(pb, got)
		},
		genPlaybook,
	))

	properties.TestingRun(t)
}
