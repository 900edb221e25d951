// Package scope restricts aggregated edges to a state subset and a minimum weight.
package scope

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commuter-cli/internal/attrs"
	"github.com/sells-group/commuter-cli/internal/flow"
	"github.com/sells-group/commuter-cli/internal/geokey"
)

// Scope is a set of state FIPS codes. The zero value means all states.
type Scope struct {
	states map[string]struct{}
}

// All returns the scope covering every state.
func All() Scope { return Scope{} }

// Of returns a scope limited to the given states. Each entry may be a USPS
// abbreviation or a FIPS code. An empty list means all states.
func Of(states ...string) (Scope, error) {
	if len(states) == 0 {
		return All(), nil
	}
	set := make(map[string]struct{}, len(states))
	for _, s := range states {
		st, ok := geokey.LookupState(s)
		if !ok {
			return Scope{}, eris.Errorf("scope: unknown state %q", s)
		}
		set[st.FIPS] = struct{}{}
	}
	return Scope{states: set}, nil
}

// Parse reads a comma-separated state list such as "ca, ny, 36".
// An empty string or "all" means all states.
func Parse(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return All(), nil
	}
	var states []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			states = append(states, p)
		}
	}
	return Of(states...)
}

// IsAll reports whether the scope covers every state.
func (s Scope) IsAll() bool { return len(s.states) == 0 }

// Contains reports whether a 2-digit state FIPS code is in scope.
func (s Scope) Contains(stateFIPS string) bool {
	if s.IsAll() {
		return true
	}
	_, ok := s.states[stateFIPS]
	return ok
}

// States returns the sorted FIPS codes in scope, or every state for All.
func (s Scope) States() []string {
	if s.IsAll() {
		return geokey.AllStateFIPS()
	}
	out := make([]string, 0, len(s.states))
	for fips := range s.states {
		out = append(out, fips)
	}
	slices.Sort(out)
	return out
}

// String renders the scope for logs and the build ledger.
func (s Scope) String() string {
	if s.IsAll() {
		return "all"
	}
	return strings.Join(s.States(), ",")
}

// Params configures Filter.
type Params struct {
	Scope         Scope
	MinWeight     int64
	DropSelfLoops bool
}

// Filter drops edges with an endpoint outside the scope or a weight below
// MinWeight, then prunes nodes to the endpoints of the surviving edges.
// Filtering an already filtered result with the same Params changes nothing.
func Filter(edges []flow.Edge, nodes map[geokey.Key]attrs.NodeAttributes, p Params) ([]flow.Edge, map[geokey.Key]attrs.NodeAttributes) {
	kept := make([]flow.Edge, 0, len(edges))
	endpoints := make(map[geokey.Key]struct{})

	for _, e := range edges {
		if !p.Scope.Contains(e.Source.State()) || !p.Scope.Contains(e.Target.State()) {
			continue
		}
		if e.Weight < p.MinWeight {
			continue
		}
		if p.DropSelfLoops && e.SelfLoop() {
			continue
		}
		kept = append(kept, e)
		endpoints[e.Source] = struct{}{}
		endpoints[e.Target] = struct{}{}
	}

	pruned := make(map[geokey.Key]attrs.NodeAttributes, len(endpoints))
	for k, a := range nodes {
		if _, ok := endpoints[k]; ok {
			pruned[k] = a
		}
	}
	return kept, pruned
}
