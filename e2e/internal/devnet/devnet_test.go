package devnet

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/google/go-cmp/cmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/topology"
	"github.com/stretchr/testify/require"
)

func loadTopo4(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Load(os.DirFS("../../fixtures"), "bfd_topo4/topology.yaml")
	require.NoError(t, err)
	return topo
}

func newTestDevnet(t *testing.T) *Devnet {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	dn, err := New(DevnetSpec{DeployID: "bfd-test", Topology: loadTopo4(t)}, log, nil)
	require.NoError(t, err)
	return dn
}

func TestDevnet_Spec_Validate(t *testing.T) {
	t.Parallel()

	spec := DevnetSpec{DeployID: "bfd-test", Topology: loadTopo4(t)}
	require.NoError(t, spec.Validate())
	require.Equal(t, DefaultFRRImage, spec.FRRImage)
	require.Equal(t, defaultReadyTimeout, spec.ReadyTimeout)

	require.ErrorContains(t, (&DevnetSpec{Topology: loadTopo4(t)}).Validate(), "deployID is required")
	require.ErrorContains(t, (&DevnetSpec{DeployID: "x"}).Validate(), "topology is required")

	topo := loadTopo4(t)
	topo.Routers[1].Interfaces[0].Name, topo.Routers[1].Interfaces[1].Name = "eth1", "eth0"
	err := (&DevnetSpec{DeployID: "x", Topology: topo}).Validate()
	require.ErrorContains(t, err, "router r2: interface 0 must be named eth0")
}

func TestDevnet_New_WiresComponents(t *testing.T) {
	t.Parallel()

	dn := newTestDevnet(t)
	require.Len(t, dn.Routers, 3)
	require.Len(t, dn.Networks, 2)

	r3, ok := dn.Router("r3")
	require.True(t, ok)
	require.Equal(t, "bfd-test-r3", r3.dockerContainerName())
	_, ok = dn.Router("r4")
	require.False(t, ok)

	require.Equal(t, map[string]string{
		"bfdconverge.malbeclabs.com":           "true",
		"bfdconverge.malbeclabs.com/type":      "devnet",
		"bfdconverge.malbeclabs.com/deploy-id": "bfd-test",
	}, dn.labels)
}

func TestDevnet_Labels_ExtraDoNotOverride(t *testing.T) {
	t.Parallel()

	labels := Labels("dep", map[string]string{LabelDeployID: "other", "team": "net"})
	require.Equal(t, "dep", labels[LabelDeployID])
	require.Equal(t, "net", labels["team"])
}

func TestDevnet_Network_IPAM(t *testing.T) {
	t.Parallel()

	dn := newTestDevnet(t)
	ipam, err := dn.Networks["s1"].IPAM()
	require.NoError(t, err)
	want := []dockernetwork.IPAMConfig{
		{Subnet: "10.1.0.0/24", Gateway: "10.1.0.254"},
		{Subnet: "fd00:1::/64", Gateway: "fd00:1::ffff:ffff:ffff:ffff"},
	}
	if diff := cmp.Diff(want, ipam.Config); diff != "" {
		t.Fatalf("unexpected IPAM config (-want +got):\n%s", diff)
	}
	require.True(t, dn.Networks["s1"].hasIPv6())
}

func TestDevnet_Network_IPAM_GatewayCollision(t *testing.T) {
	t.Parallel()

	dn := newTestDevnet(t)
	dn.Spec.Topology.Routers[0].Interfaces[0].Addresses = append(
		dn.Spec.Topology.Routers[0].Interfaces[0].Addresses, topology.MustPrefix("10.1.0.254/24"))
	_, err := dn.Networks["s1"].IPAM()
	require.ErrorContains(t, err, "gateway 10.1.0.254 is assigned to router r1")
}

func TestDevnet_EndpointIPAM_FirstOfEachFamily(t *testing.T) {
	t.Parallel()

	dn := newTestDevnet(t)
	r2, _ := dn.Router("r2")
	require.Equal(t, &dockernetwork.EndpointIPAMConfig{IPv4Address: "10.1.0.12", IPv6Address: "fd00:1::1"}, endpointIPAM(&r2.Interfaces[0]))
	require.Equal(t, &dockernetwork.EndpointIPAMConfig{IPv4Address: "10.3.0.1", IPv6Address: "fd00:3::12"}, endpointIPAM(&r2.Interfaces[1]))
}

func TestDevnet_RenderDaemons(t *testing.T) {
	t.Parallel()

	topo := loadTopo4(t)
	r1, _ := topo.Router("r1")
	out, err := RenderDaemons(r1)
	require.NoError(t, err)
	require.Contains(t, string(out), "bfdd=yes\n")
	require.Contains(t, string(out), `bfdd_options="   -A 127.0.0.1 -l 10.1.0.2 -l fd00:1::2"`)

	r2, _ := topo.Router("r2")
	out, err = RenderDaemons(r2)
	require.NoError(t, err)
	require.Contains(t, string(out), `bfdd_options="   -A 127.0.0.1 -l 0.0.0.0 -l ::"`)
}

func TestDevnet_RenderFRRConfig(t *testing.T) {
	t.Parallel()

	topo := loadTopo4(t)
	r1, _ := topo.Router("r1")
	out, err := RenderFRRConfig(topo, r1)
	require.NoError(t, err)

	conf := string(out)
	require.Contains(t, conf, "hostname r1\n")
	require.Contains(t, conf, " peer 10.1.0.12 local-address 10.1.0.2 interface eth0\n")
	require.Contains(t, conf, " peer 10.3.0.3 multihop local-address 10.1.0.3\n")
	require.Contains(t, conf, " peer fd00:3::2 multihop local-address fd00:1::2\n")
	require.NotContains(t, conf, "fd00:3::12")
}

func TestDevnet_Render_MissingKeyFails(t *testing.T) {
	t.Parallel()

	_, err := render("frr.conf", frrConfigTemplate, map[string]any{"Hostname": "r1"})
	require.ErrorContains(t, err, "failed to render frr.conf")
	require.ErrorContains(t, err, "error executing template")
}

func TestDevnet_SetupError(t *testing.T) {
	t.Parallel()

	cause := errors.New("image not found")
	var err error = &SetupError{Component: "router r1", Err: cause}
	require.True(t, IsSetupError(err))
	require.ErrorIs(t, err, cause)
	require.EqualError(t, err, "devnet setup failed: router r1: image not found")
	require.False(t, IsSetupError(cause))
}
