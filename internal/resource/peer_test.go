package resource

import (
	"testing"

	"github.com/runtimecore/core/coreapi"
)

func TestPeerServerResolvesByFreshLookup(t *testing.T) {
	tbl := NewTable()
	server := tbl.Insert(KindTCPServer, "server-state")
	p := &Peer{Proto: PeerTCP, ServerID: server.ID}

	res, ok := p.Server(tbl)
	if !ok || res.Payload.(string) != "server-state" {
		t.Fatalf("expected to resolve the server resource, got %v ok=%v", res, ok)
	}

	tbl.Delete(server.ID)
	if _, ok := p.Server(tbl); ok {
		t.Fatal("expected Server to report false once the server resource is closed")
	}
}

func TestPeerWithNoServerReportsFalse(t *testing.T) {
	tbl := NewTable()
	p := &Peer{Proto: PeerUDP, ServerID: coreapi.NoID}
	if _, ok := p.Server(tbl); ok {
		t.Fatal("expected a peer with no owning server to report false")
	}
}
