package topology

import (
	"errors"
	"fmt"
	"net/netip"
)

func (t *Topology) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if len(t.Routers) == 0 {
		return errors.New("at least one router is required")
	}

	switches := map[string]*Switch{}
	for i := range t.Switches {
		sw := &t.Switches[i]
		if sw.Name == "" {
			return fmt.Errorf("switch %d: name is required", i)
		}
		if _, ok := switches[sw.Name]; ok {
			return fmt.Errorf("duplicate switch %q", sw.Name)
		}
		if len(sw.Subnets) == 0 {
			return fmt.Errorf("switch %s: at least one subnet is required", sw.Name)
		}
		switches[sw.Name] = sw
	}

	routers := map[string]bool{}
	owners := map[netip.Addr]string{}
	for _, r := range t.Routers {
		if r.Name == "" {
			return errors.New("router name is required")
		}
		if routers[r.Name] {
			return fmt.Errorf("duplicate router %q", r.Name)
		}
		routers[r.Name] = true

		ifaces := map[string]bool{}
		attached := map[string]bool{}
		for _, iface := range r.Interfaces {
			if iface.Name == "" {
				return fmt.Errorf("router %s: interface name is required", r.Name)
			}
			if ifaces[iface.Name] {
				return fmt.Errorf("router %s: duplicate interface %q", r.Name, iface.Name)
			}
			ifaces[iface.Name] = true

			sw, ok := switches[iface.Switch]
			if !ok {
				return fmt.Errorf("router %s: interface %s references unknown switch %q", r.Name, iface.Name, iface.Switch)
			}
			if attached[sw.Name] {
				return fmt.Errorf("router %s: more than one interface on switch %s", r.Name, sw.Name)
			}
			attached[sw.Name] = true

			for _, p := range iface.Addresses {
				if !sw.contains(p) {
					return fmt.Errorf("router %s: address %s is outside the subnets of switch %s", r.Name, p, sw.Name)
				}
				if owner, ok := owners[p.Addr()]; ok {
					return fmt.Errorf("router %s: address %s already assigned to %s", r.Name, p.Addr(), owner)
				}
				owners[p.Addr()] = r.Name
			}
		}

		for _, l := range r.Listen {
			if l.IsUnspecified() {
				continue
			}
			if owners[l.Addr] != r.Name {
				return fmt.Errorf("router %s: listen address %s is not assigned to it", r.Name, l)
			}
		}

		for _, rt := range r.Routes {
			if !rt.Prefix.IsValid() || !rt.Via.IsValid() {
				return fmt.Errorf("router %s: route requires prefix and via", r.Name)
			}
			if rt.Prefix.Addr().Is4() != rt.Via.Is4() {
				return fmt.Errorf("router %s: route %s via %s mixes address families", r.Name, rt.Prefix, rt.Via)
			}
		}
	}

	seen := map[[2]netip.Addr]bool{}
	for i, s := range t.SessionSpecs {
		if s.A.Is4() != s.B.Is4() {
			return fmt.Errorf("session %d: %s and %s are different address families", i, s.A, s.B)
		}
		ra, ia, ok := t.Owner(s.A.Addr)
		if !ok {
			return fmt.Errorf("session %d: address %s is not assigned to any router", i, s.A)
		}
		rb, ib, ok := t.Owner(s.B.Addr)
		if !ok {
			return fmt.Errorf("session %d: address %s is not assigned to any router", i, s.B)
		}
		if ra.Name == rb.Name {
			return fmt.Errorf("session %d: both endpoints are on router %s", i, ra.Name)
		}
		if !s.Multihop && ia.Switch != ib.Switch {
			return fmt.Errorf("session %d: single-hop endpoints %s and %s do not share a switch", i, s.A, s.B)
		}

		key := [2]netip.Addr{s.A.Addr, s.B.Addr}
		if s.B.Less(s.A.Addr) {
			key = [2]netip.Addr{s.B.Addr, s.A.Addr}
		}
		if seen[key] {
			return fmt.Errorf("session %d: duplicate session %s <-> %s", i, s.A, s.B)
		}
		seen[key] = true
	}
	return nil
}

func (s *Switch) contains(p Prefix) bool {
	for _, sub := range s.Subnets {
		if sub.Masked().Contains(p.Addr()) && p.Bits() == sub.Bits() {
			return true
		}
	}
	return false
}
