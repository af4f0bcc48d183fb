package tcpservice

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/runtimecore/core/coreapi"
	"github.com/runtimecore/core/internal/queuedresponse"
	"github.com/runtimecore/core/internal/resource"
	"github.com/runtimecore/core/internal/sharedbuffer"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(zerolog.Nop(), resource.NewTable(), nil, queuedresponse.NewStore(time.Minute), sharedbuffer.New(), time.Minute)
}

func listenerPort(t *testing.T, s *Service, serverID coreapi.ID) int {
	t.Helper()
	var addr string
	if err := s.table.Use(serverID, func(r *resource.Resource) error {
		addr = r.Payload.(*handle).listener.Addr().String()
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return port
}

func TestBindConnectAcceptEmitsEvent(t *testing.T) {
	s := newTestService(t)
	serverID := coreapi.NewID()
	clientID := coreapi.NewID()

	accepted := make(chan coreapi.Result, 1)
	doneBind := make(chan coreapi.Result, 1)
	s.Bind("1", serverID, "127.0.0.1", 0, func(r coreapi.Result) { accepted <- r }, func(r coreapi.Result) { doneBind <- r })

	if bindRes := <-doneBind; bindRes.Err != nil {
		t.Fatalf("bind failed: %v", bindRes.Err)
	}

	port := listenerPort(t, s, serverID)

	doneConnect := make(chan coreapi.Result, 1)
	s.Connect("2", clientID, "127.0.0.1", port, nil, func(r coreapi.Result) { doneConnect <- r })

	select {
	case r := <-accepted:
		if r.Err != nil {
			t.Fatalf("accept event carried an error: %v", r.Err)
		}
		if r.Data.(map[string]any)["serverId"] != serverID.String() {
			t.Fatalf("unexpected accept event: %+v", r.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never observed an accept event")
	}

	if connectRes := <-doneConnect; connectRes.Err != nil {
		t.Fatalf("connect failed: %v", connectRes.Err)
	}
}

func TestSendAndReceiveChunkDataViaQueuedResponse(t *testing.T) {
	s := newTestService(t)
	serverID := coreapi.NewID()
	clientID := coreapi.NewID()

	accepted := make(chan coreapi.Result, 1)
	doneBind := make(chan coreapi.Result, 1)
	s.Bind("1", serverID, "127.0.0.1", 0, func(r coreapi.Result) { accepted <- r }, func(r coreapi.Result) { doneBind <- r })
	if res := <-doneBind; res.Err != nil {
		t.Fatalf("bind failed: %v", res.Err)
	}
	port := listenerPort(t, s, serverID)

	doneConnect := make(chan coreapi.Result, 1)
	s.Connect("2", clientID, "127.0.0.1", port, nil, func(r coreapi.Result) { doneConnect <- r })
	if res := <-doneConnect; res.Err != nil {
		t.Fatalf("connect failed: %v", res.Err)
	}

	acceptEvent := <-accepted
	peerClientIDStr, _ := acceptEvent.Data.(map[string]any)["clientId"].(string)
	peerClientID, ok := coreapi.ParseID(peerClientIDStr)
	if !ok {
		t.Fatalf("could not parse accepted peer clientId: %q", peerClientIDStr)
	}

	peerChunks := make(chan coreapi.Result, 4)
	doneReadStart := make(chan coreapi.Result, 1)
	s.ReadStart("3", peerClientID, func(r coreapi.Result) { peerChunks <- r }, func(r coreapi.Result) { doneReadStart <- r })
	if res := <-doneReadStart; res.Err != nil {
		t.Fatalf("readStart failed: %v", res.Err)
	}

	doneSend := make(chan coreapi.Result, 1)
	s.Send("4", clientID, []byte("ping"), func(r coreapi.Result) { doneSend <- r })
	if res := <-doneSend; res.Err != nil {
		t.Fatalf("send failed: %v", res.Err)
	}
	if s.buffers.Len() != 1 {
		t.Fatalf("expected Send to retain its buffer in the ledger, got %d entries", s.buffers.Len())
	}

	select {
	case chunk := <-peerChunks:
		if chunk.Err != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Err)
		}
		if chunk.Headers.Get("X-Method") != "tcpReadStart" {
			t.Fatalf("unexpected X-Method: %q", chunk.Headers.Get("X-Method"))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received the forwarded chunk")
	}
}

func TestCloseUnknownClientReportsNotConnected(t *testing.T) {
	s := newTestService(t)
	done := make(chan coreapi.Result, 1)
	s.Close("1", coreapi.ID(123456), func(r coreapi.Result) { done <- r })
	res := <-done
	if res.Err == nil || res.Err.Kind != coreapi.KindNotConnected {
		t.Fatalf("expected NotConnected, got %+v", res)
	}
}

func TestSendUnknownClientReportsNotConnected(t *testing.T) {
	s := newTestService(t)
	done := make(chan coreapi.Result, 1)
	s.Send("1", coreapi.ID(123456), []byte("x"), func(r coreapi.Result) { done <- r })
	res := <-done
	if res.Err == nil || res.Err.Kind != coreapi.KindNotConnected {
		t.Fatalf("expected NotConnected, got %+v", res)
	}
}
