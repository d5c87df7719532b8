// Package report renders run events for the operator.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/eniac111/ansimple/internal/engine"
	"github.com/eniac111/ansimple/internal/types"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Reporter is an engine.Reporter that can also print the closing recap.
type Reporter interface {
	engine.Reporter
	Recap(*engine.Summary)
}

// New returns the reporter for format writing to w.
func New(format string, w io.Writer) (Reporter, error) {
	switch format {
	case "", FormatText:
		return NewText(w), nil
	case FormatJSON:
		return NewJSON(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// Text narrates a run the way a human reads it: a header per attempt, the raw
// output of each command, and a per-host recap.
type Text struct {
	out         io.Writer
	marker      lipgloss.Style
	unreachable lipgloss.Style
	ok          lipgloss.Style
	failed      lipgloss.Style
}

// NewText returns a Text reporter. Colors are only emitted when w is a terminal.
func NewText(w io.Writer) *Text {
	r := lipgloss.NewRenderer(w)
	return &Text{
		out:         w,
		marker:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		unreachable: r.NewStyle().Foreground(lipgloss.Color("1")),
		ok:          r.NewStyle().Foreground(lipgloss.Color("2")),
		failed:      r.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

func (t *Text) TaskStarted(s engine.Start) {
	fmt.Fprintf(t.out, "%s Running %s on %s from %s\n", t.marker.Render("===>"), s.Task.Bash, s.Host, s.Group)
}

func (t *Text) Outcome(o types.Outcome) {
	switch o.Kind {
	case types.OutcomeUnreachable:
		fmt.Fprintln(t.out, t.unreachable.Render(fmt.Sprintf("User %s can not connect to %s", o.Identity, o.Host)))
	case types.OutcomeSuccess:
		writeRaw(t.out, o.Stdout)
	case types.OutcomeFailure:
		writeRaw(t.out, o.Stderr)
	}
}

// writeRaw copies captured output, terminating it with a newline so the next
// header starts on its own line.
func writeRaw(w io.Writer, s string) {
	if s == "" {
		return
	}
	io.WriteString(w, s)
	if !strings.HasSuffix(s, "\n") {
		io.WriteString(w, "\n")
	}
}

func (t *Text) Recap(s *engine.Summary) {
	hosts := s.Hosts()
	if len(hosts) == 0 {
		return
	}
	width := 0
	for _, h := range hosts {
		width = max(width, len(h))
	}
	fmt.Fprintln(t.out)
	for _, h := range hosts {
		st := s.Stats(h)
		line := fmt.Sprintf("%-*s : ok=%d failed=%d unreachable=%d", width, h, st.OK, st.Failed, st.Unreachable)
		style := t.ok
		switch {
		case st.Unreachable > 0:
			style = t.unreachable
		case st.Failed > 0:
			style = t.failed
		}
		fmt.Fprintln(t.out, style.Render(line))
	}
}

// JSON writes one JSON object per event.
type JSON struct {
	enc *json.Encoder
}

func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

type startRecord struct {
	Event   string `json:"event"`
	Group   string `json:"group"`
	Host    string `json:"host"`
	Task    string `json:"task"`
	Command string `json:"command"`
}

type outcomeRecord struct {
	Event      string `json:"event"`
	Status     string `json:"status"`
	Group      string `json:"group"`
	Host       string `json:"host"`
	Identity   string `json:"identity"`
	Task       string `json:"task"`
	Command    string `json:"command"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ExitStatus int    `json:"exit_status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type recapRecord struct {
	Event       string `json:"event"`
	Host        string `json:"host"`
	OK          int    `json:"ok"`
	Failed      int    `json:"failed"`
	Unreachable int    `json:"unreachable"`
}

func (j *JSON) TaskStarted(s engine.Start) {
	_ = j.enc.Encode(startRecord{
		Event:   "start",
		Group:   s.Group,
		Host:    s.Host,
		Task:    s.Task.Name,
		Command: s.Task.Bash,
	})
}

func (j *JSON) Outcome(o types.Outcome) {
	rec := outcomeRecord{
		Event:      "outcome",
		Status:     o.Kind.String(),
		Group:      o.Group,
		Host:       o.Host,
		Identity:   o.Identity,
		Task:       o.Task.Name,
		Command:    o.Task.Bash,
		Stdout:     o.Stdout,
		Stderr:     o.Stderr,
		ExitStatus: o.ExitStatus,
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	_ = j.enc.Encode(rec)
}

func (j *JSON) Recap(s *engine.Summary) {
	for _, h := range s.Hosts() {
		st := s.Stats(h)
		_ = j.enc.Encode(recapRecord{Event: "recap", Host: h, OK: st.OK, Failed: st.Failed, Unreachable: st.Unreachable})
	}
}
