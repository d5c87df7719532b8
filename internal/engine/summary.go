package engine

import "github.com/eniac111/ansimple/internal/types"

// HostStats counts outcomes for one host.
type HostStats struct {
	OK          int
	Failed      int
	Unreachable int
}

// Summary collects every outcome of a run in the order it was reported.
type Summary struct {
	Outcomes []types.Outcome
	hosts    map[string]*HostStats
	order    []string
}

// NewSummary returns a Summary holding outcomes.
func NewSummary(outcomes ...types.Outcome) *Summary {
	s := &Summary{hosts: map[string]*HostStats{}}
	for _, o := range outcomes {
		s.add(o)
	}
	return s
}

func (s *Summary) add(o types.Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	st, ok := s.hosts[o.Host]
	if !ok {
		st = &HostStats{}
		s.hosts[o.Host] = st
		s.order = append(s.order, o.Host)
	}
	switch o.Kind {
	case types.OutcomeSuccess:
		st.OK++
	case types.OutcomeFailure:
		st.Failed++
	case types.OutcomeUnreachable:
		st.Unreachable++
	}
}

// Hosts returns the hosts that produced outcomes, in first-seen order.
func (s *Summary) Hosts() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Stats returns the counters for host; unknown hosts yield zero counts.
func (s *Summary) Stats(host string) HostStats {
	if st, ok := s.hosts[host]; ok {
		return *st
	}
	return HostStats{}
}

// Count returns how many outcomes of kind were reported.
func (s *Summary) Count(kind types.OutcomeKind) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Failed reports whether any task failed or any host was unreachable.
func (s *Summary) Failed() bool {
	return s.Count(types.OutcomeFailure) > 0 || s.Count(types.OutcomeUnreachable) > 0
}
