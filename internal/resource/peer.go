package resource

import (
	"net"

	"github.com/runtimecore/core/coreapi"
)

// PeerProto discriminates which handle a Peer wraps. Exactly one of
// TCP/UDP is meaningful for a given Peer, matching spec.md section 3's
// "Peer" data model: "exactly one of a TCP or UDP handle is non-empty".
type PeerProto int

const (
	PeerTCP PeerProto = iota
	PeerUDP
)

// Peer is a logical endpoint. ServerID is a weak, lookup-only index
// into the Table — never a stored pointer — breaking the cyclic
// client<->server references spec.md section 9 calls out as a bug in
// the original runtime ("a client holds a weak index into the server
// table, never a pointer; lookup is at callback time").
type Peer struct {
	Proto    PeerProto
	ServerID coreapi.ID // coreapi.NoID if this peer has no owning server
	Conn     net.Conn   // set when Proto == PeerTCP
	PacketConn net.PacketConn // set when Proto == PeerUDP and this peer models a bound socket
	RemoteAddr net.Addr
}

// Server resolves the Peer's owning server resource, if any, by
// looking it up fresh in the table rather than dereferencing a stored
// pointer. It returns false if the peer has no server or the server
// has since been closed. The returned Resource is a snapshot for
// immediate use in the caller's current callback; it must not be
// retained past that callback.
func (p *Peer) Server(table *Table) (*Resource, bool) {
	if p.ServerID == coreapi.NoID {
		return nil, false
	}
	var found *Resource
	err := table.Use(p.ServerID, func(r *Resource) error {
		found = r
		return nil
	})
	return found, err == nil
}
