package inventory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	inv, err := Parse([]byte(`
machine-ungrouped

[dbservers]
localhost
othervm

[webservers]
127.0.0.1

[other]
localhost
`))
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"ungrouped":  {"machine-ungrouped"},
		"dbservers":  {"localhost", "othervm"},
		"webservers": {"127.0.0.1"},
		"other":      {"localhost"},
	}, inv.Map())
	assert.Equal(t, []string{"ungrouped", "dbservers", "webservers", "other"}, inv.Groups())
}

func TestParse_UngroupedKeepsOrder(t *testing.T) {
	inv, err := Parse([]byte("c\na\nb\n[g]\nx\n"))
	require.NoError(t, err)

	var names []string
	for _, h := range inv.Lookup("ungrouped") {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestParse_DuplicateSection(t *testing.T) {
	_, err := Parse([]byte(`
[dbservers]
localhost
othervm
[dbservers]
localhost
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateSection))

	var dup *DuplicateSectionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "dbservers", dup.Section)
	assert.Equal(t, 5, dup.Line)
}

func TestParse_ExplicitUngroupedIsDuplicate(t *testing.T) {
	for _, text := range []string{
		"[ungrouped]\nlonely\n",
		"implicit\n[ungrouped]\nexplicit\n",
		"[web]\nw1\n[ungrouped]\nlonely\n",
	} {
		_, err := Parse([]byte(text))
		assert.True(t, errors.Is(err, ErrDuplicateSection), "input %q", text)

		var dup *DuplicateSectionError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "ungrouped", dup.Section)
	}
}

func TestParse_HostVars(t *testing.T) {
	inv, err := Parse([]byte("[db]\ndb1 ansible_host=10.0.0.5 ansible_port=2222\ndb2\n"))
	require.NoError(t, err)

	hosts := inv.Lookup("db")
	require.Len(t, hosts, 2)
	assert.Equal(t, "db1", hosts[0].Name)
	assert.Equal(t, "10.0.0.5", hosts[0].Address())
	assert.Equal(t, "2222", hosts[0].Var("ansible_port"))
	assert.Equal(t, "db2", hosts[1].Address())
	assert.Empty(t, hosts[1].Var("ansible_port"))
}

func TestParse_CommentsAndBlankLines(t *testing.T) {
	inv, err := Parse([]byte("# comment\n; another\n\n[web]\n  web1  \n# web2\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"web": {"web1"}}, inv.Map())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		reason string
	}{
		{name: "unterminated header", src: "[web\nhost\n", reason: "unterminated section header"},
		{name: "empty header", src: "[ ]\nhost\n", reason: "empty section name"},
		{name: "duplicate host", src: "[web]\na\na\n", reason: "listed twice"},
		{name: "malformed var", src: "[web]\na port\n", reason: "malformed host variable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestLookup_UnknownGroup(t *testing.T) {
	inv, err := Parse([]byte("[web]\nweb1\n"))
	require.NoError(t, err)

	hosts := inv.Lookup("dbservers")
	assert.NotNil(t, hosts)
	assert.Empty(t, hosts)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte("[a]\nh\n[a]\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateSection))
	assert.Contains(t, err.Error(), path)
}
