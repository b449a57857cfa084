package docker

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/docker/docker/api/types/network"
	"github.com/malbeclabs/bfdconverge/e2e/internal/netutil"
)

var ErrSubnetInUse = errors.New("subnet already in use by a docker network")

// NetworkLister is the subset of the docker client needed to inspect existing
// networks.
type NetworkLister interface {
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
}

// CheckSubnetsAvailable returns ErrSubnetInUse when any of want overlaps the
// IPAM config of an existing docker network.
func CheckSubnetsAvailable(ctx context.Context, cli NetworkLister, want []netip.Prefix) error {
	nets, err := cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, n := range nets {
		existing := make([]netip.Prefix, 0, len(n.IPAM.Config))
		for _, ipam := range n.IPAM.Config {
			if ipam.Subnet == "" {
				continue
			}
			p, err := netip.ParsePrefix(ipam.Subnet)
			if err != nil {
				continue
			}
			existing = append(existing, p)
		}
		if a, b, ok := netutil.Overlaps(want, existing); ok {
			return fmt.Errorf("%w: %s overlaps %s of network %s", ErrSubnetInUse, a, b, n.Name)
		}
	}
	return nil
}
