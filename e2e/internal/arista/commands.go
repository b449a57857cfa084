package arista

// show bfd peers
//
// {
//   "vrfs": {
//     "default": {
//       "ipv4Neighbors": {
//         "10.1.0.12": {
//           "peerStats": {
//             "Ethernet1": {
//               "peerAddress": "10.1.0.12",
//               "status": "up",
//               "sessType": "sessionTypeNormal",
//               "localAddr": "10.1.0.2",
//               "lastDown": 1748646912.0,
//               "l3intf": "Ethernet1",
//               "authType": "authNone"
//             }
//           }
//         }
//       },
//       "ipv6Neighbors": {}
//     }
//   }
// }

type ShowBFDPeers struct {
	VRFs map[string]BFDVRF `json:"vrfs"`
}

type BFDVRF struct {
	IPv4Neighbors map[string]BFDNeighbor `json:"ipv4Neighbors"`
	IPv6Neighbors map[string]BFDNeighbor `json:"ipv6Neighbors"`
}

type BFDNeighbor struct {
	// PeerStats is keyed by interface; multi-hop sessions use an empty key.
	PeerStats map[string]BFDPeerStats `json:"peerStats"`
}

type BFDPeerStats struct {
	PeerAddress string  `json:"peerAddress"`
	Status      string  `json:"status"`
	SessType    string  `json:"sessType"`
	LocalAddr   string  `json:"localAddr"`
	LastDown    float64 `json:"lastDown"`
	L3Intf      string  `json:"l3intf"`
	AuthType    string  `json:"authType"`
}

const (
	SessTypeNormal   = "sessionTypeNormal"
	SessTypeMultihop = "sessionTypeMultihop"
)

func (ShowBFDPeers) GetCmd() string {
	return ShowBFDPeersCmd()
}

func ShowBFDPeersCmd() string {
	return "show bfd peers"
}
