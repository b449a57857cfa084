package topology

import (
	"fmt"
	"net/netip"
)

type HopMode int

const (
	SingleHop HopMode = iota
	MultiHop
)

func (m HopMode) String() string {
	if m == MultiHop {
		return "multi-hop"
	}
	return "single-hop"
}

type Expectation int

const (
	ExpectUp Expectation = iota
	ExpectExcluded
)

func (e Expectation) String() string {
	if e == ExpectExcluded {
		return "excluded"
	}
	return "up"
}

type Endpoint struct {
	Router    string
	Interface string
	Addr      netip.Addr
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s/%s", e.Router, e.Addr)
}

// Session is a declared peering resolved against the topology.
type Session struct {
	Local   Endpoint
	Peer    Endpoint
	HopMode HopMode
	Expect  Expectation
	// Reason explains an excluded session.
	Reason string
}

func (s Session) Excluded() bool { return s.Expect == ExpectExcluded }

// Swap returns the session seen from the peer's side.
func (s Session) Swap() Session {
	s.Local, s.Peer = s.Peer, s.Local
	return s
}

// Sessions resolves every declared session in declaration order. A session is
// expected up only when both listen filters accept their side's address and,
// for multi-hop, each side can reach the other.
func (t *Topology) Sessions() []Session {
	out := make([]Session, 0, len(t.SessionSpecs))
	for _, spec := range t.SessionSpecs {
		out = append(out, t.resolve(spec))
	}
	return out
}

// SessionsFor returns the sessions router takes part in, with router as the
// local side.
func (t *Topology) SessionsFor(router string) []Session {
	var out []Session
	for _, s := range t.Sessions() {
		switch router {
		case s.Local.Router:
			out = append(out, s)
		case s.Peer.Router:
			out = append(out, s.Swap())
		}
	}
	return out
}

// Excluded returns the excluded sessions router takes part in.
func (t *Topology) Excluded(router string) []Session {
	var out []Session
	for _, s := range t.SessionsFor(router) {
		if s.Excluded() {
			out = append(out, s)
		}
	}
	return out
}

func (t *Topology) resolve(spec SessionSpec) Session {
	ra, ia, _ := t.Owner(spec.A.Addr)
	rb, ib, _ := t.Owner(spec.B.Addr)

	s := Session{
		Local: Endpoint{Router: ra.Name, Interface: ia.Name, Addr: spec.A.Addr},
		Peer:  Endpoint{Router: rb.Name, Interface: ib.Name, Addr: spec.B.Addr},
	}
	if spec.Multihop {
		s.HopMode = MultiHop
	}

	switch {
	case !ra.Accepts(spec.A.Addr):
		s.Expect, s.Reason = ExpectExcluded, fmt.Sprintf("%s does not listen on %s", ra.Name, spec.A)
	case !rb.Accepts(spec.B.Addr):
		s.Expect, s.Reason = ExpectExcluded, fmt.Sprintf("%s does not listen on %s", rb.Name, spec.B)
	case spec.Multihop && !ra.Reaches(spec.B.Addr):
		s.Expect, s.Reason = ExpectExcluded, fmt.Sprintf("%s has no route to %s", ra.Name, spec.B)
	case spec.Multihop && !rb.Reaches(spec.A.Addr):
		s.Expect, s.Reason = ExpectExcluded, fmt.Sprintf("%s has no route to %s", rb.Name, spec.A)
	}
	return s
}
