package netutil

import (
	"fmt"
	"math/big"
	"net/netip"
)

// LastUsable returns the highest address of prefix that is not the IPv4
// broadcast address.
func LastUsable(prefix netip.Prefix) (netip.Addr, error) {
	prefix = prefix.Masked()
	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	if prefix.Addr().Is4() && hostBits < 2 {
		return netip.Addr{}, fmt.Errorf("%s has no usable host addresses", prefix)
	}
	if hostBits < 1 {
		return netip.Addr{}, fmt.Errorf("%s has no usable host addresses", prefix)
	}

	last := new(big.Int).SetBytes(prefix.Addr().AsSlice())
	last.Add(last, new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(hostBits)), big.NewInt(1)))
	if prefix.Addr().Is4() {
		last.Sub(last, big.NewInt(1))
	}
	return fromInt(last, prefix.Addr().Is4())
}

// Wildcard returns the unspecified address of addr's family.
func Wildcard(addr netip.Addr) netip.Addr {
	if addr.Is4() {
		return netip.IPv4Unspecified()
	}
	return netip.IPv6Unspecified()
}

// Overlaps reports whether any prefix in a overlaps any prefix in b.
func Overlaps(a, b []netip.Prefix) (netip.Prefix, netip.Prefix, bool) {
	for _, x := range a {
		for _, y := range b {
			if x.Overlaps(y) {
				return x, y, true
			}
		}
	}
	return netip.Prefix{}, netip.Prefix{}, false
}

func fromInt(i *big.Int, is4 bool) (netip.Addr, error) {
	size := 16
	if is4 {
		size = 4
	}
	b := i.Bytes()
	if len(b) > size {
		return netip.Addr{}, fmt.Errorf("address overflow")
	}
	buf := make([]byte, size)
	copy(buf[size-len(b):], b)
	addr, ok := netip.AddrFromSlice(buf)
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid address bytes %x", buf)
	}
	return addr, nil
}
