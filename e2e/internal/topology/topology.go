// Package topology describes routers, switches, addresses and the BFD sessions
// expected between them.
package topology

import (
	"bytes"
	"fmt"
	"io/fs"
	"net/netip"
	"slices"

	"github.com/malbeclabs/bfdconverge/e2e/internal/netutil"
	"gopkg.in/yaml.v3"
)

type Topology struct {
	Name         string        `yaml:"name"`
	Switches     []Switch      `yaml:"switches"`
	Routers      []Router      `yaml:"routers"`
	SessionSpecs []SessionSpec `yaml:"sessions"`
}

// Switch is a broadcast domain. Every address on an interface attached to it
// must fall inside one of its subnets.
type Switch struct {
	Name    string   `yaml:"name"`
	Subnets []Prefix `yaml:"subnets"`
}

type Router struct {
	Name string `yaml:"name"`
	// Listen restricts the local addresses bfdd accepts sessions on. Empty, or a
	// wildcard address, accepts every address of that family.
	Listen     []Addr      `yaml:"listen"`
	Interfaces []Interface `yaml:"interfaces"`
	Routes     []Route     `yaml:"routes"`
}

type Interface struct {
	Name      string   `yaml:"name"`
	Switch    string   `yaml:"switch"`
	Addresses []Prefix `yaml:"addresses"`
}

type Route struct {
	Prefix Prefix `yaml:"prefix"`
	Via    Addr   `yaml:"via"`
}

// SessionSpec declares a BFD peering between two addresses. A is the local side
// when the session is listed without a node perspective.
type SessionSpec struct {
	A        Addr `yaml:"a"`
	B        Addr `yaml:"b"`
	Multihop bool `yaml:"multihop"`
}

// Addr is a netip.Addr that reads and writes itself as a YAML string.
type Addr struct{ netip.Addr }

func (a *Addr) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	a.Addr = addr
	return nil
}

func (a Addr) MarshalYAML() (any, error) { return a.String(), nil }

// Prefix is a netip.Prefix that keeps its host bits, so 10.1.0.2/24 is both an
// address and its subnet.
type Prefix struct{ netip.Prefix }

func (p *Prefix) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	p.Prefix = prefix
	return nil
}

func (p Prefix) MarshalYAML() (any, error) { return p.String(), nil }

func MustAddr(s string) Addr     { return Addr{netip.MustParseAddr(s)} }
func MustPrefix(s string) Prefix { return Prefix{netip.MustParsePrefix(s)} }

// Parse decodes and validates a YAML topology.
func Parse(data []byte) (*Topology, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t Topology
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode topology: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}
	return &t, nil
}

func Load(fsys fs.FS, name string) (*Topology, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology: %w", err)
	}
	return Parse(data)
}

func (t *Topology) Router(name string) (*Router, bool) {
	i := slices.IndexFunc(t.Routers, func(r Router) bool { return r.Name == name })
	if i < 0 {
		return nil, false
	}
	return &t.Routers[i], true
}

func (t *Topology) Switch(name string) (*Switch, bool) {
	i := slices.IndexFunc(t.Switches, func(s Switch) bool { return s.Name == name })
	if i < 0 {
		return nil, false
	}
	return &t.Switches[i], true
}

func (t *Topology) RouterNames() []string {
	names := make([]string, len(t.Routers))
	for i, r := range t.Routers {
		names[i] = r.Name
	}
	return names
}

// Owner returns the router and interface that carry addr.
func (t *Topology) Owner(addr netip.Addr) (*Router, *Interface, bool) {
	for i := range t.Routers {
		r := &t.Routers[i]
		for j := range r.Interfaces {
			iface := &r.Interfaces[j]
			for _, p := range iface.Addresses {
				if p.Addr() == addr {
					return r, iface, true
				}
			}
		}
	}
	return nil, nil, false
}

// Addresses returns every address assigned to the router in interface order.
func (r *Router) Addresses() []netip.Addr {
	var out []netip.Addr
	for _, iface := range r.Interfaces {
		for _, p := range iface.Addresses {
			out = append(out, p.Addr())
		}
	}
	return out
}

// Accepts reports whether the listen filter admits addr.
func (r *Router) Accepts(addr netip.Addr) bool {
	if len(r.Listen) == 0 {
		return true
	}
	for _, l := range r.Listen {
		if l.Addr == addr {
			return true
		}
		if l.Addr == netutil.Wildcard(addr) {
			return true
		}
	}
	return false
}

// Connected returns the subnets of the router's interface addresses.
func (r *Router) Connected() []netip.Prefix {
	var out []netip.Prefix
	for _, iface := range r.Interfaces {
		for _, p := range iface.Addresses {
			out = append(out, p.Masked())
		}
	}
	return out
}

// Reaches reports whether the router has a path to addr: either addr is on a
// connected subnet, or a static route covers it with a next hop on a connected
// subnet.
func (r *Router) Reaches(addr netip.Addr) bool {
	connected := r.Connected()
	onLink := func(a netip.Addr) bool {
		return slices.ContainsFunc(connected, func(p netip.Prefix) bool { return p.Contains(a) })
	}
	if onLink(addr) {
		return true
	}
	for _, rt := range r.Routes {
		if rt.Prefix.Masked().Contains(addr) && onLink(rt.Via.Addr) {
			return true
		}
	}
	return false
}
