package arista_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aristanetworks/goeapi"
	"github.com/malbeclabs/bfdconverge/e2e/internal/arista"
	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/querier"
	"github.com/stretchr/testify/require"
)

const eosPeers = `{
  "vrfs": {
    "default": {
      "ipv4Neighbors": {
        "10.1.0.12": {"peerStats": {"Ethernet1": {"peerAddress": "10.1.0.12", "status": "up", "sessType": "sessionTypeNormal", "localAddr": "10.1.0.2", "l3intf": "Ethernet1"}}},
        "10.3.0.2": {"peerStats": {"": {"peerAddress": "10.3.0.2", "status": "down", "sessType": "sessionTypeMultihop", "localAddr": "10.1.0.2"}}}
      },
      "ipv6Neighbors": {
        "fd00:3::2": {"peerStats": {"": {"peerAddress": "fd00:3::2", "status": "up", "sessType": "sessionTypeMultihop", "localAddr": "fd00:1::2"}}}
      }
    }
  }
}`

type fakeNode struct {
	cmds     [][]string
	encoding string
	resp     *goeapi.JSONRPCResponse
	err      error
}

func (f *fakeNode) RunCommands(cmds []string, encoding string) (*goeapi.JSONRPCResponse, error) {
	f.cmds = append(f.cmds, cmds)
	f.encoding = encoding
	return f.resp, f.err
}

func resultOf(t *testing.T, doc string) map[string]any {
	t.Helper()
	v := jsoncmp.MustParse(doc)
	raw, err := jsoncmp.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestArista_Querier_ShowPeers(t *testing.T) {
	t.Parallel()

	node := &fakeNode{resp: &goeapi.JSONRPCResponse{Result: []map[string]any{resultOf(t, eosPeers)}}}
	q := querier.New("eos1", arista.NewRunner(node), arista.ShowPeers())

	doc, err := q.Query(t.Context())
	require.NoError(t, err)
	require.Equal(t, [][]string{{"show bfd peers"}}, node.cmds)
	require.Equal(t, "json", node.encoding)

	want := jsoncmp.MustParse(`{"peers":[
		{"peer":"10.1.0.12","local":"10.1.0.2","multihop":false,"status":"up","interface":"Ethernet1","vrf":"default"},
		{"peer":"10.3.0.2","local":"10.1.0.2","multihop":true,"status":"down","vrf":"default"},
		{"peer":"fd00:3::2","local":"fd00:1::2","multihop":true,"status":"up","vrf":"default"}
	]}`)
	require.Nil(t, jsoncmp.Compare(want, doc))
	require.Nil(t, jsoncmp.Compare(doc, want))
}

func TestArista_Runner_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		node *fakeNode
		want string
	}{
		{name: "transport", node: &fakeNode{err: errors.New("connection refused")}, want: "eAPI request failed"},
		{name: "rpc error", node: &fakeNode{resp: &goeapi.JSONRPCResponse{Error: &goeapi.RespError{Code: 1002, Message: "invalid command"}}}, want: "eAPI error 1002: invalid command"},
		{name: "no result", node: &fakeNode{resp: &goeapi.JSONRPCResponse{}}, want: "expected 1 eAPI result, got 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := querier.New("eos1", arista.NewRunner(tt.node), arista.ShowPeers()).Query(t.Context())
			require.ErrorContains(t, err, tt.want)
			var qerr *querier.QueryError
			require.ErrorAs(t, err, &qerr)
		})
	}
}

func TestArista_NormalizePeers_Rejects(t *testing.T) {
	t.Parallel()

	_, err := arista.NormalizePeers(jsoncmp.MustParse(`{"errors":["not supported"]}`))
	require.ErrorContains(t, err, `no "vrfs" key`)

	_, err = arista.NormalizePeers(jsoncmp.MustParse(`{"vrfs":[]}`))
	require.Error(t, err)

	doc, err := arista.NormalizePeers(jsoncmp.MustParse(`{"vrfs":{}}`))
	require.NoError(t, err)
	require.Nil(t, jsoncmp.Compare(jsoncmp.MustParse(`{"peers":[]}`), doc))
}
