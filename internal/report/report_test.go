package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eniac111/ansimple/internal/engine"
	"github.com/eniac111/ansimple/internal/types"
)

var uptime = types.Task{Name: "Get uptime", Bash: "uptime"}

func sampleOutcomes() []types.Outcome {
	return []types.Outcome{
		{Kind: types.OutcomeSuccess, Group: "dbservers", Host: "localhost", Identity: "alice", Task: uptime, Stdout: "up 3 days\n"},
		{Kind: types.OutcomeUnreachable, Group: "dbservers", Host: "db1.example.org", Identity: "alice", Task: uptime, ExitStatus: -1, Err: errors.New("dial tcp: refused")},
		{Kind: types.OutcomeFailure, Group: "dbservers", Host: "localhost", Identity: "alice", Task: types.Task{Name: "fail", Bash: "false"}, Stderr: "boom", ExitStatus: 1, Duration: 1500 * time.Millisecond},
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	r := NewText(&buf)

	r.TaskStarted(engine.Start{Group: "dbservers", Host: "localhost", Identity: "alice", Task: uptime})
	outs := sampleOutcomes()
	r.Outcome(outs[0])
	r.TaskStarted(engine.Start{Group: "dbservers", Host: "db1.example.org", Identity: "alice", Task: uptime})
	r.Outcome(outs[1])
	r.Outcome(outs[2])
	r.Recap(engine.NewSummary(outs...))

	want := "===> Running uptime on localhost from dbservers\n" +
		"up 3 days\n" +
		"===> Running uptime on db1.example.org from dbservers\n" +
		"User alice can not connect to db1.example.org\n" +
		"boom\n" +
		"\n" +
		"localhost       : ok=1 failed=1 unreachable=0\n" +
		"db1.example.org : ok=0 failed=0 unreachable=1\n"
	assert.Equal(t, want, buf.String())
}

func TestText_EmptyRecap(t *testing.T) {
	var buf bytes.Buffer
	NewText(&buf).Recap(engine.NewSummary())
	assert.Empty(t, buf.String())
}

func TestText_SilentOutput(t *testing.T) {
	var buf bytes.Buffer
	r := NewText(&buf)
	r.Outcome(types.Outcome{Kind: types.OutcomeSuccess, Host: "h"})
	r.Outcome(types.Outcome{Kind: types.OutcomeFailure, Host: "h", ExitStatus: 1})
	assert.Empty(t, buf.String())
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSON(&buf)
	outs := sampleOutcomes()

	r.TaskStarted(engine.Start{Group: "dbservers", Host: "localhost", Identity: "alice", Task: uptime})
	for _, o := range outs {
		r.Outcome(o)
	}
	r.Recap(engine.NewSummary(outs...))

	var records []map[string]any
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, sc.Err())
	require.Len(t, records, 6)

	assert.Equal(t, "start", records[0]["event"])
	assert.Equal(t, "uptime", records[0]["command"])

	assert.Equal(t, "ok", records[1]["status"])
	assert.Equal(t, "up 3 days\n", records[1]["stdout"])

	assert.Equal(t, "unreachable", records[2]["status"])
	assert.Equal(t, "dial tcp: refused", records[2]["error"])
	assert.EqualValues(t, -1, records[2]["exit_status"])

	assert.Equal(t, "failed", records[3]["status"])
	assert.EqualValues(t, 1500, records[3]["duration_ms"])

	assert.Equal(t, "recap", records[4]["event"])
	assert.Equal(t, "localhost", records[4]["host"])
	assert.EqualValues(t, 1, records[4]["failed"])
	assert.EqualValues(t, 1, records[5]["unreachable"])
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	r, err := New("", &buf)
	require.NoError(t, err)
	assert.IsType(t, &Text{}, r)

	r, err = New(FormatJSON, &buf)
	require.NoError(t, err)
	assert.IsType(t, &JSON{}, r)

	_, err = New("yaml", &buf)
	assert.ErrorContains(t, err, "unknown output format")
}
