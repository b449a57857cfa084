package devnet

import (
	"context"
	"fmt"
	"log/slog"

	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/malbeclabs/bfdconverge/e2e/internal/netutil"
	"github.com/malbeclabs/bfdconverge/e2e/internal/topology"
	tcnetwork "github.com/testcontainers/testcontainers-go/network"
)

// Network is the docker bridge network standing in for one switch.
type Network struct {
	dn  *Devnet
	log *slog.Logger

	Switch *topology.Switch

	Name string
	ID   string
}

// IPAM returns the network's address plan. Docker's gateway takes the last usable
// address of each subnet so the low addresses stay free for routers.
func (n *Network) IPAM() (*dockernetwork.IPAM, error) {
	ipam := &dockernetwork.IPAM{Driver: "default"}
	for _, p := range n.Switch.Subnets {
		gw, err := netutil.LastUsable(p.Prefix)
		if err != nil {
			return nil, fmt.Errorf("subnet %s: %w", p, err)
		}
		if owner, _, ok := n.dn.Spec.Topology.Owner(gw); ok {
			return nil, fmt.Errorf("subnet %s: gateway %s is assigned to router %s", p, gw, owner.Name)
		}
		ipam.Config = append(ipam.Config, dockernetwork.IPAMConfig{
			Subnet:  p.Masked().String(),
			Gateway: gw.String(),
		})
	}
	return ipam, nil
}

func (n *Network) hasIPv6() bool {
	for _, p := range n.Switch.Subnets {
		if p.Addr().Is6() {
			return true
		}
	}
	return false
}

func (n *Network) Create(ctx context.Context) error {
	n.log.Info("==> Creating switch network", "subnets", n.Switch.Subnets)

	ipam, err := n.IPAM()
	if err != nil {
		return err
	}

	opts := []tcnetwork.NetworkCustomizer{
		tcnetwork.WithDriver("bridge"),
		tcnetwork.WithAttachable(),
		tcnetwork.WithInternal(),
		tcnetwork.WithLabels(n.dn.labels),
		tcnetwork.WithIPAM(ipam),
	}
	if n.hasIPv6() {
		opts = append(opts, tcnetwork.WithEnableIPv6())
	}

	network, err := tcnetwork.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create network: %w", err)
	}

	n.Name = network.Name
	n.ID = network.ID

	n.log.Info("--> Network created", "network", n.Name)
	return nil
}

// endpointIPAM picks the addresses docker assigns when a router interface is
// attached: the first address of each family. The rest are added afterwards.
func endpointIPAM(iface *topology.Interface) *dockernetwork.EndpointIPAMConfig {
	cfg := &dockernetwork.EndpointIPAMConfig{}
	for _, p := range iface.Addresses {
		addr := p.Addr()
		switch {
		case addr.Is4() && cfg.IPv4Address == "":
			cfg.IPv4Address = addr.String()
		case addr.Is6() && cfg.IPv6Address == "":
			cfg.IPv6Address = addr.String()
		}
	}
	return cfg
}
