// Package udpservice implements the UDP Service of spec.md section
// 4.7: bind with SO_REUSEADDR, one-shot datagram send, streaming
// receive, and the pause/resume-all-sockets pair the Lifecycle
// Controller drives.
//
// Grounded on the uv_udp_t bind/send/recv wiring in
// original_source/src/core.hh's udpBind/udpSend/udpRecvStart methods.
// SO_REUSEADDR is applied via golang.org/x/sys/unix through
// net.ListenConfig.Control on unix platforms (see reuseaddr_unix.go),
// the same socket-option-tuning dependency the teacher's
// internal/transport/transport_linux.go wires in directly.
package udpservice

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/runtimecore/core/coreapi"
	"github.com/runtimecore/core/internal/queuedresponse"
	"github.com/runtimecore/core/internal/resource"
	"github.com/runtimecore/core/internal/sharedbuffer"
)

type handle struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	recv    bool
	onEvent func(coreapi.Result)
}

// Service implements the UDP operations of spec.md section 4.7.
type Service struct {
	log      zerolog.Logger
	table    *resource.Table
	dispatch func(func())
	queued   *queuedresponse.Store

	buffers     *sharedbuffer.Ledger
	bufferTTLMs int64
}

// New constructs a Service. dispatch should be (*reactor.Reactor).Dispatch
// in production; nil runs every completion inline, for tests. buffers
// may be nil to skip Shared-Buffer Ledger retention.
func New(log zerolog.Logger, table *resource.Table, dispatch func(func()), queued *queuedresponse.Store, buffers *sharedbuffer.Ledger, bufferTTL time.Duration) *Service {
	return &Service{log: log, table: table, dispatch: dispatch, queued: queued, buffers: buffers, bufferTTLMs: bufferTTL.Milliseconds()}
}

func (s *Service) complete(fn func()) {
	if s.dispatch == nil {
		fn()
		return
	}
	s.dispatch(fn)
}

func network(ip string) string {
	if strings.Contains(ip, ":") {
		return "udp6"
	}
	return "udp4"
}

func (s *Service) lookup(id coreapi.ID) (*handle, *coreapi.Error) {
	var h *handle
	err := s.table.Use(id, func(r *resource.Resource) error {
		hh, ok := r.Payload.(*handle)
		if !ok {
			return coreapi.NewError(coreapi.KindInternal, "udp: resource is not a udp handle")
		}
		h = hh
		return nil
	})
	if err != nil {
		if e, ok := err.(*coreapi.Error); ok && e.Kind == coreapi.KindNotOpen {
			return nil, coreapi.NotConnectedError(id)
		}
		return nil, err.(*coreapi.Error)
	}
	return h, nil
}

// Bind opens a UDP socket under serverID with SO_REUSEADDR set.
func (s *Service) Bind(seq string, serverID coreapi.ID, ip string, port int, reply func(coreapi.Result)) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	addr := net.JoinHostPort(ip, strconv.Itoa(port))

	go func() {
		pc, err := lc.ListenPacket(context.Background(), network(ip), addr)
		s.complete(func() {
			if err != nil {
				reply(coreapi.Failed("udp.bind", seq, coreapi.PlatformError(serverID, err)))
				return
			}
			conn := pc.(*net.UDPConn)
			h := &handle{conn: conn}
			if _, insertErr := s.table.InsertWithID(serverID, resource.KindUDPSocket, h); insertErr != nil {
				conn.Close()
				reply(coreapi.Failed("udp.bind", seq, insertErr.(*coreapi.Error)))
				return
			}
			reply(coreapi.OK("udp.bind", seq, map[string]any{"result": true}))
		})
	}()
}

// Send writes one datagram from data[offset:offset+length] to ip:port
// through clientID's socket, replying with the platform's return code.
// The payload slice is retained in the Shared-Buffer Ledger for the
// write's duration, per spec.md section 3.
func (s *Service) Send(seq string, clientID coreapi.ID, data []byte, offset, length int, ip string, port int, reply func(coreapi.Result)) {
	h, err := s.lookup(clientID)
	if err != nil {
		reply(coreapi.Failed("udp.send", seq, err))
		return
	}
	if offset < 0 || length < 0 || offset+length > len(data) {
		reply(coreapi.Failed("udp.send", seq, coreapi.NewError(coreapi.KindInternal, "udp.send: offset/length out of range")))
		return
	}
	payload := data[offset : offset+length]
	dst, resolveErr := net.ResolveUDPAddr(network(ip), net.JoinHostPort(ip, strconv.Itoa(port)))
	if resolveErr != nil {
		reply(coreapi.Failed("udp.send", seq, coreapi.PlatformError(clientID, resolveErr)))
		return
	}

	if s.buffers != nil {
		s.buffers.Retain(payload, s.bufferTTLMs)
	}

	go func() {
		n, writeErr := h.conn.WriteToUDP(payload, dst)
		s.complete(func() {
			status := n
			if writeErr != nil {
				status = -1
			}
			reply(coreapi.OK("udp.send", seq, map[string]any{"clientId": clientID.String(), "status": status}))
		})
	}()
}

// RecvStart begins receiving datagrams on serverID, queuing each as a
// binary response tagged X-Method: udpReadStart with the sender's
// address in X-Ip/X-Port.
func (s *Service) RecvStart(seq string, serverID coreapi.ID, onEvent func(coreapi.Result), reply func(coreapi.Result)) {
	h, err := s.lookup(serverID)
	if err != nil {
		reply(coreapi.Failed("udp.recvStart", seq, err))
		return
	}
	s.startRecv(serverID, h, onEvent)
	reply(coreapi.OK("udp.recvStart", seq, map[string]any{"result": true}))
}

func (s *Service) startRecv(serverID coreapi.ID, h *handle, onEvent func(coreapi.Result)) {
	h.mu.Lock()
	if h.recv {
		h.mu.Unlock()
		return
	}
	h.recv = true
	if onEvent != nil {
		h.onEvent = onEvent
	}
	h.conn.SetReadDeadline(time.Time{})
	h.mu.Unlock()

	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, from, err := h.conn.ReadFromUDP(buf)
			if err != nil {
				h.mu.Lock()
				stopped := !h.recv
				h.mu.Unlock()
				if stopped {
					return
				}
				s.complete(func() {
					if h.onEvent != nil {
						h.onEvent(coreapi.Failed("udp.recvStart", coreapi.UnsolicitedSeq, coreapi.PlatformError(serverID, err)))
					}
				})
				return
			}

			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			headers := http.Header{}
			headers.Set("Content-Type", "application/octet-stream")
			headers.Set("Content-Length", strconv.Itoa(n))
			headers.Set("X-ServerId", serverID.String())
			headers.Set("X-Ip", from.IP.String())
			headers.Set("X-Port", strconv.Itoa(from.Port))
			headers.Set("X-Method", "udpReadStart")

			postID := s.queued.Put(queuedresponse.Response{Headers: headers, Body: &chunk})
			s.complete(func() {
				if h.onEvent != nil {
					h.onEvent(coreapi.WithQueuedResponse("udp.recvStart", coreapi.UnsolicitedSeq, postID, headers))
				}
			})
		}
	}()
}

// PauseAllSockets stops recv on every known UDP resource, used by the
// Lifecycle Controller's pause() stage. It forces each blocked
// ReadFromUDP to return immediately via a past read deadline, the
// same technique the TCP Service uses to interrupt a pending Read.
func (s *Service) PauseAllSockets() {
	for _, id := range s.table.IDsOf(resource.KindUDPSocket) {
		s.table.Use(id, func(r *resource.Resource) error {
			h := r.Payload.(*handle)
			h.mu.Lock()
			h.recv = false
			h.conn.SetReadDeadline(time.Now())
			h.mu.Unlock()
			return nil
		})
	}
}

// ResumeAllSockets restarts recv on every known UDP resource that was
// receiving before the matching PauseAllSockets, used by the Lifecycle
// Controller's resume() stage. Sockets that were never started stay
// idle, matching the original's resumeAllSockets semantics of only
// reviving handles it had itself paused.
func (s *Service) ResumeAllSockets() {
	for _, id := range s.table.IDsOf(resource.KindUDPSocket) {
		s.table.Use(id, func(r *resource.Resource) error {
			h := r.Payload.(*handle)
			h.mu.Lock()
			onEvent := h.onEvent
			alreadyRecv := h.recv
			h.mu.Unlock()
			if !alreadyRecv && onEvent != nil {
				s.startRecv(id, h, onEvent)
			}
			return nil
		})
	}
}

// Close releases serverID/clientID's UDP socket.
func (s *Service) Close(seq string, id coreapi.ID, reply func(coreapi.Result)) {
	r, ok := s.table.Delete(id)
	if !ok {
		reply(coreapi.Failed("udp.close", seq, coreapi.NotConnectedError(id)))
		return
	}
	h := r.Payload.(*handle)

	h.mu.Lock()
	h.recv = false
	h.mu.Unlock()

	go func() {
		closeErr := h.conn.Close()
		s.complete(func() {
			if closeErr != nil {
				reply(coreapi.Failed("udp.close", seq, coreapi.PlatformError(id, closeErr)))
				return
			}
			reply(coreapi.OK("udp.close", seq, map[string]any{}))
		})
	}()
}
