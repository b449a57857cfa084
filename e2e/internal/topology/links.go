package topology

import "net/netip"

// Link joins two routers through a switch both are attached to.
type Link struct {
	Switch string
	A, B   string
	// Pairs are the declared single-hop sessions across the link, A side first.
	Pairs []AddrPair
}

type AddrPair struct {
	A, B netip.Addr
}

// Links derives one link per pair of routers sharing a switch, in switch order
// then router order.
func (t *Topology) Links() []Link {
	var links []Link
	for _, sw := range t.Switches {
		var attached []string
		for _, r := range t.Routers {
			for _, iface := range r.Interfaces {
				if iface.Switch == sw.Name {
					attached = append(attached, r.Name)
					break
				}
			}
		}
		for i := range attached {
			for j := i + 1; j < len(attached); j++ {
				link := Link{Switch: sw.Name, A: attached[i], B: attached[j]}
				link.Pairs = t.pairsOn(link)
				links = append(links, link)
			}
		}
	}
	return links
}

func (t *Topology) pairsOn(link Link) []AddrPair {
	var pairs []AddrPair
	for _, spec := range t.SessionSpecs {
		if spec.Multihop {
			continue
		}
		ra, ia, okA := t.Owner(spec.A.Addr)
		rb, ib, okB := t.Owner(spec.B.Addr)
		if !okA || !okB || ia.Switch != link.Switch || ib.Switch != link.Switch {
			continue
		}
		switch {
		case ra.Name == link.A && rb.Name == link.B:
			pairs = append(pairs, AddrPair{A: spec.A.Addr, B: spec.B.Addr})
		case ra.Name == link.B && rb.Name == link.A:
			pairs = append(pairs, AddrPair{A: spec.B.Addr, B: spec.A.Addr})
		}
	}
	return pairs
}
