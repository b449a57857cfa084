// Package bfd builds and inspects the documents returned by "show bfd peers json".
package bfd

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/querier"
	"github.com/malbeclabs/bfdconverge/e2e/internal/topology"
)

const (
	ShowPeersCommand = "show bfd peers json"

	StatusUp   = "up"
	StatusDown = "down"
	StatusInit = "init"
)

// Peer records are sorted on these fields so output order never matters.
var sortKeys = []string{"peer", "local"}

var ErrExcludedSessionUp = errors.New("excluded session is up")

// ShowPeers is the querier command for FRR's bfdd.
func ShowPeers() querier.Command {
	return querier.Command{
		Name:      "bfd-peers",
		Text:      ShowPeersCommand,
		Normalize: Normalize,
	}
}

// Normalize wraps a peer list as {"peers": [...]} sorted by peer and local
// address. Documents that are already wrapped are accepted too.
func Normalize(v jsoncmp.Value) (jsoncmp.Value, error) {
	seq, err := peerList(v)
	if err != nil {
		return nil, err
	}
	return jsoncmp.Mapping{"peers": jsoncmp.SortSequences(seq, sortKeys...)}, nil
}

func peerList(v jsoncmp.Value) (jsoncmp.Sequence, error) {
	switch t := v.(type) {
	case jsoncmp.Sequence:
		return t, nil
	case jsoncmp.Mapping:
		peers, ok := t["peers"]
		if !ok {
			return nil, errors.New(`mapping has no "peers" key`)
		}
		seq, ok := peers.(jsoncmp.Sequence)
		if !ok {
			return nil, fmt.Errorf(`"peers" is a %s, expected sequence`, peers.Kind())
		}
		return seq, nil
	}
	return nil, fmt.Errorf("peer document is a %s, expected sequence or mapping", v.Kind())
}

type PeerRecord struct {
	Peer      netip.Addr
	Local     netip.Addr
	Multihop  bool
	Interface string
	Status    string
}

// Peers decodes the peer records of an observed document.
func Peers(v jsoncmp.Value) ([]PeerRecord, error) {
	seq, err := peerList(v)
	if err != nil {
		return nil, err
	}

	out := make([]PeerRecord, 0, len(seq))
	for i, e := range seq {
		m, ok := e.(jsoncmp.Mapping)
		if !ok {
			return nil, fmt.Errorf("peers[%d]: record is a %s", i, e.Kind())
		}
		var rec PeerRecord
		peer, ok := m["peer"].(jsoncmp.String)
		if !ok {
			return nil, fmt.Errorf("peers[%d]: missing peer address", i)
		}
		if rec.Peer, err = netip.ParseAddr(string(peer)); err != nil {
			return nil, fmt.Errorf("peers[%d]: %w", i, err)
		}
		if local, ok := m["local"].(jsoncmp.String); ok {
			if rec.Local, err = netip.ParseAddr(string(local)); err != nil {
				return nil, fmt.Errorf("peers[%d]: %w", i, err)
			}
		}
		if mh, ok := m["multihop"].(jsoncmp.Bool); ok {
			rec.Multihop = bool(mh)
		}
		if iface, ok := m["interface"].(jsoncmp.String); ok {
			rec.Interface = string(iface)
		}
		if status, ok := m["status"].(jsoncmp.String); ok {
			rec.Status = string(status)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ExpectedPeers builds the expected document for router. Every configured session
// has a record; only sessions expected up assert a status, since an excluded
// session can sit in down or init depending on which side drops its packets.
func ExpectedPeers(topo *topology.Topology, router string) jsoncmp.Value {
	sessions := topo.SessionsFor(router)
	seq := make(jsoncmp.Sequence, 0, len(sessions))
	for _, s := range sessions {
		rec := jsoncmp.Mapping{
			"peer":     jsoncmp.String(s.Peer.Addr.String()),
			"local":    jsoncmp.String(s.Local.Addr.String()),
			"multihop": jsoncmp.Bool(s.HopMode == topology.MultiHop),
		}
		if !s.Excluded() {
			rec["status"] = jsoncmp.String(StatusUp)
		}
		seq = append(seq, rec)
	}
	return jsoncmp.Mapping{"peers": jsoncmp.SortSequences(seq, sortKeys...)}
}

// ExcludedUp returns the observed records that report an excluded session as up.
func ExcludedUp(observed jsoncmp.Value, excluded []topology.Session) ([]PeerRecord, error) {
	records, err := Peers(observed)
	if err != nil {
		return nil, err
	}

	var out []PeerRecord
	for _, rec := range records {
		if rec.Status != StatusUp {
			continue
		}
		for _, s := range excluded {
			if rec.Peer != s.Peer.Addr {
				continue
			}
			if rec.Local.IsValid() && rec.Local != s.Local.Addr {
				continue
			}
			out = append(out, rec)
			break
		}
	}
	return out, nil
}

// CheckExcluded is ExcludedUp as an error wrapping ErrExcludedSessionUp.
func CheckExcluded(observed jsoncmp.Value, excluded []topology.Session) error {
	up, err := ExcludedUp(observed, excluded)
	if err != nil {
		return err
	}
	if len(up) == 0 {
		return nil
	}
	errs := make([]error, len(up))
	for i, rec := range up {
		errs[i] = fmt.Errorf("%w: peer %s local %s", ErrExcludedSessionUp, rec.Peer, rec.Local)
	}
	return errors.Join(errs...)
}
