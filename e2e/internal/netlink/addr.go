// Package netlink reads interface state from iproute2 JSON output.
package netlink

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"slices"
)

// Link is one entry of `ip -j addr show`.
type Link struct {
	Name  string     `json:"ifname"`
	State string     `json:"operstate"`
	Addrs []AddrInfo `json:"addr_info"`
}

type AddrInfo struct {
	Family    string `json:"family"`
	Local     string `json:"local"`
	PrefixLen int    `json:"prefixlen"`
	Scope     string `json:"scope"`
	Tentative bool   `json:"tentative"`
}

// Prefix returns the interface address with its prefix length, host bits kept.
func (a AddrInfo) Prefix() (netip.Prefix, error) {
	addr, err := netip.ParseAddr(a.Local)
	if err != nil {
		return netip.Prefix{}, err
	}
	p := netip.PrefixFrom(addr, a.PrefixLen)
	if !p.IsValid() {
		return netip.Prefix{}, fmt.Errorf("invalid prefix length %d for %s", a.PrefixLen, a.Local)
	}
	return p, nil
}

func ParseLinks(data []byte) ([]Link, error) {
	var links []Link
	if err := json.Unmarshal(data, &links); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ip addr output: %w", err)
	}
	return links, nil
}

// HasAddr reports whether ifname carries want. IPv6 addresses still in duplicate
// address detection do not count, since nothing can bind to them yet.
func HasAddr(links []Link, ifname string, want netip.Prefix) bool {
	i := slices.IndexFunc(links, func(l Link) bool { return l.Name == ifname })
	if i < 0 {
		return false
	}
	for _, ai := range links[i].Addrs {
		if ai.Tentative {
			continue
		}
		p, err := ai.Prefix()
		if err == nil && p == want {
			return true
		}
	}
	return false
}

// MissingAddrs returns the members of want that ifname does not carry yet.
func MissingAddrs(links []Link, ifname string, want []netip.Prefix) []netip.Prefix {
	var missing []netip.Prefix
	for _, p := range want {
		if !HasAddr(links, ifname, p) {
			missing = append(missing, p)
		}
	}
	return missing
}
