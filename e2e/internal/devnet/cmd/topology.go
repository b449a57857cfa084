package devnetcmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/netip"
	"path"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/bfd"
	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/topology"
	"github.com/malbeclabs/bfdconverge/e2e/internal/verify"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type TopologyCmd struct {
	router string
	check  bool
}

func NewTopologyCmd() *TopologyCmd {
	return &TopologyCmd{}
}

func (c *TopologyCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Inspect the scenario's topology and the sessions it implies",
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the scenario topology",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			topo := e.topology
			fmt.Fprintf(cmd.OutOrStdout(), "--> Topology %s is valid: %d switches, %d routers, %d sessions\n",
				topo.Name, len(topo.Switches), len(topo.Routers), len(topo.SessionSpecs))
			return nil
		}),
	}

	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "List the BFD sessions and whether each is expected up",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			return writeSessions(cmd.OutOrStdout(), e.topology, c.router)
		}),
	}
	sessions.Flags().StringVar(&c.router, "router", "", "Only list sessions from this router's perspective")

	expect := &cobra.Command{
		Use:   "expect",
		Short: "Print the expected peer state derived from the topology",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			if c.check {
				return checkExpectations(cmd.OutOrStdout(), e.fixtures, e.scenario, e.topology)
			}
			return writeExpected(cmd.OutOrStdout(), e.topology, c.router)
		}),
	}
	expect.Flags().StringVar(&c.router, "router", "", "Router to print (default: all)")
	expect.Flags().BoolVar(&c.check, "check", false, "Compare the derived state with the scenario's expected-state files")

	links := &cobra.Command{
		Use:   "links",
		Short: "List the links between routers and the single-hop pairs across each",
		RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
			writeLinks(cmd.OutOrStdout(), e.topology)
			return nil
		}),
	}

	cmd.AddCommand(validate, links, sessions, expect)
	return cmd
}

func writeSessions(w io.Writer, topo *topology.Topology, router string) error {
	sessions := topo.Sessions()
	if router != "" {
		if _, ok := topo.Router(router); !ok {
			return fmt.Errorf("unknown router %s", router)
		}
		sessions = topo.SessionsFor(router)
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Local", "Peer", "Hop", "Expect", "Reason"})
	for _, s := range sessions {
		table.Append([]string{s.Local.String(), s.Peer.String(), s.HopMode.String(), s.Expect.String(), s.Reason})
	}
	table.Render()
	return nil
}

func writeLinks(w io.Writer, topo *topology.Topology) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Switch", "A", "B", "Pairs"})
	for _, l := range topo.Links() {
		pairs := make([]string, len(l.Pairs))
		for i, p := range l.Pairs {
			pairs[i] = p.A.String() + " <-> " + p.B.String()
		}
		table.Append([]string{l.Switch, l.A, l.B, strings.Join(pairs, ", ")})
	}
	table.Render()
}

func writeExpected(w io.Writer, topo *topology.Topology, router string) error {
	routers := topo.RouterNames()
	if router != "" {
		if _, ok := topo.Router(router); !ok {
			return fmt.Errorf("unknown router %s", router)
		}
		routers = []string{router}
	}
	for _, name := range routers {
		out, err := jsoncmp.MarshalIndent(bfd.ExpectedPeers(topo, name))
		if err != nil {
			return fmt.Errorf("router %s: %w", name, err)
		}
		fmt.Fprintf(w, "# %s\n%s\n", name, out)
	}
	return nil
}

var addrComparer = cmp.Comparer(func(a, b netip.Addr) bool { return a == b })

// checkExpectations compares each router's expected-state file with the state
// the topology implies, so hand-edited fixtures cannot drift from the model.
func checkExpectations(w io.Writer, fixtures fs.FS, scenario string, topo *topology.Topology) error {
	var drifted []string
	for _, name := range topo.RouterNames() {
		raw, err := fs.ReadFile(fixtures, path.Join(scenario, name, verify.ExpectedPeersFile))
		if err != nil {
			return fmt.Errorf("router %s: %w", name, err)
		}
		doc, err := jsoncmp.Parse(raw)
		if err != nil {
			return fmt.Errorf("router %s: %w", name, err)
		}
		doc, err = bfd.Normalize(doc)
		if err != nil {
			return fmt.Errorf("router %s: %w", name, err)
		}
		onDisk, err := bfd.Peers(doc)
		if err != nil {
			return fmt.Errorf("router %s: %w", name, err)
		}
		derived, err := bfd.Peers(bfd.ExpectedPeers(topo, name))
		if err != nil {
			return fmt.Errorf("router %s: %w", name, err)
		}

		if diff := cmp.Diff(derived, onDisk, addrComparer); diff != "" {
			drifted = append(drifted, name)
			fmt.Fprintf(w, "--- %s (-derived +fixture)\n%s", name, diff)
			continue
		}
		fmt.Fprintf(w, "--> %s matches\n", name)
	}
	if len(drifted) > 0 {
		return fmt.Errorf("expected state drifted for %v", drifted)
	}
	return nil
}
