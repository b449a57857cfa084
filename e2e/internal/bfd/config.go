package bfd

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/bfdconverge/e2e/internal/topology"
)

// PeerConfig renders the bfdd "bfd" block for router. Excluded sessions are
// configured too so their state can be observed.
func PeerConfig(topo *topology.Topology, router string) string {
	var b strings.Builder
	b.WriteString("bfd\n")
	for _, s := range topo.SessionsFor(router) {
		fmt.Fprintf(&b, " peer %s", s.Peer.Addr)
		if s.HopMode == topology.MultiHop {
			b.WriteString(" multihop")
		}
		fmt.Fprintf(&b, " local-address %s", s.Local.Addr)
		if s.HopMode == topology.SingleHop {
			fmt.Fprintf(&b, " interface %s", s.Local.Interface)
		}
		b.WriteString("\n !\n")
	}
	b.WriteString("!\n")
	return b.String()
}

// ListenOptions returns the bfdd daemon options for the router's listen filter.
func ListenOptions(r *topology.Router) []string {
	opts := make([]string, 0, 2*len(r.Listen))
	for _, l := range r.Listen {
		opts = append(opts, "-l", l.String())
	}
	return opts
}
