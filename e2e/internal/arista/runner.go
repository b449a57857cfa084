// Package arista queries Arista EOS devices over eAPI and maps their BFD state
// onto the FRR document shape used by the expected-state fixtures.
package arista

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aristanetworks/goeapi"
	"github.com/malbeclabs/bfdconverge/e2e/internal/bfd"
	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/querier"
)

// Commander is the part of *goeapi.Node the runner needs.
type Commander interface {
	RunCommands(commands []string, encoding string) (*goeapi.JSONRPCResponse, error)
}

// Runner sends one command per call over eAPI with json encoding and returns the
// command's result as JSON.
type Runner struct {
	node Commander
}

func NewRunner(node Commander) *Runner {
	return &Runner{node: node}
}

// Connect dials a device's eAPI HTTP endpoint.
func Connect(host string, port int, username, password string) (*Runner, error) {
	node, err := goeapi.Connect("http", host, username, password, port)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to eAPI on %s:%d: %w", host, port, err)
	}
	return NewRunner(node), nil
}

func (r *Runner) Run(ctx context.Context, command string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := r.node.RunCommands([]string{command}, "json")
	if err != nil {
		return nil, fmt.Errorf("eAPI request failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("eAPI error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result) != 1 {
		return nil, fmt.Errorf("expected 1 eAPI result, got %d", len(resp.Result))
	}
	return json.Marshal(resp.Result[0])
}

// ShowPeers queries "show bfd peers" and normalises it into the FRR peer list.
func ShowPeers() querier.Command {
	return querier.Command{
		Name:      "eos-bfd-peers",
		Text:      ShowBFDPeersCmd(),
		Normalize: NormalizePeers,
	}
}

// NormalizePeers converts an EOS "show bfd peers" document into the same
// {"peers": [...]} document bfd.Normalize produces for FRR.
func NormalizePeers(v jsoncmp.Value) (jsoncmp.Value, error) {
	raw, err := jsoncmp.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out ShowBFDPeers
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unexpected show bfd peers document: %w", err)
	}
	if out.VRFs == nil {
		return nil, errors.New(`document has no "vrfs" key`)
	}

	var seq jsoncmp.Sequence
	for _, vrf := range slices.Sorted(maps.Keys(out.VRFs)) {
		for _, neighbors := range []map[string]BFDNeighbor{out.VRFs[vrf].IPv4Neighbors, out.VRFs[vrf].IPv6Neighbors} {
			for peer, n := range neighbors {
				for intf, st := range n.PeerStats {
					rec := jsoncmp.Mapping{
						"peer":     jsoncmp.String(peer),
						"local":    jsoncmp.String(st.LocalAddr),
						"multihop": jsoncmp.Bool(st.SessType == SessTypeMultihop),
						"status":   jsoncmp.String(strings.ToLower(st.Status)),
						"vrf":      jsoncmp.String(vrf),
					}
					if intf != "" {
						rec["interface"] = jsoncmp.String(intf)
					}
					seq = append(seq, rec)
				}
			}
		}
	}
	if seq == nil {
		seq = jsoncmp.Sequence{}
	}
	return bfd.Normalize(seq)
}
