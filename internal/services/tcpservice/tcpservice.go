// Package tcpservice implements the TCP Service of spec.md section
// 4.6: bind/accept, connect, one-shot send, streaming read, and the
// per-handle option calls, all keyed into the Resource Table by
// caller-supplied server/client IDs.
//
// Grounded on the uv_tcp_t accept/read/write callback wiring in
// original_source/src/core.hh's tcpConnect/tcpSend methods (core.hh:1157),
// re-platformed onto net.Conn and net.Listener. Where the original
// interrupts a pending libuv read by closing the handle, this package
// uses net.Conn.SetReadDeadline the way the teacher's
// internal/transport package drives cancellable reads with deadlines
// instead of a separate cancel channel.
package tcpservice

import (
	"io"
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

// State names the position of a TCP resource in spec.md section 4.6's
// Idle -> (Bound|Connecting) -> (Listening|Connected) -> Reading ->
// (HalfClosed) -> Closed machine.
type State int

const (
	StateIdle State = iota
	StateListening
	StateConnecting
	StateConnected
	StateReading
	StateHalfClosed
	StateClosed
)

// handle is the Resource.Payload for both KindTCPServer and
// KindTCPSocket entries; which fields are meaningful depends on Kind.
type handle struct {
	mu sync.Mutex

	state State

	listener net.Listener // set for a KindTCPServer
	conn     net.Conn     // set for a KindTCPSocket

	reading     bool
	idleTimeout time.Duration
	// peerServerID is the weak, lookup-only reference to the owning
	// server resource.Peer.ServerID in internal/resource/peer.go
	// describes for the general case; KindTCPSocket only, NoID if this
	// client has no owning server (i.e. it was Connect-ed, not accepted).
	peerServerID coreapi.ID

	// onEvent delivers every unsolicited event this handle produces
	// (accept, connection, inbound chunk, error) for the lifetime of
	// the handle, unlike a Router reply which fires once.
	onEvent func(coreapi.Result)
}

// Service implements the TCP operations of spec.md section 4.6.
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
		return "tcp6"
	}
	return "tcp4"
}

func family(ip net.IP) string {
	if ip.To4() != nil {
		return "IPv4"
	}
	return "IPv6"
}

// notConnected translates a Resource Table lookup failure into the
// NotConnected tie-break spec.md section 4.6 specifies for an unknown
// clientId, distinct from the Filesystem Service's NotOpen.
func notConnected(err error, id coreapi.ID) *coreapi.Error {
	if e, ok := err.(*coreapi.Error); ok && e.Kind == coreapi.KindNotOpen {
		return coreapi.NotConnectedError(id)
	}
	if e, ok := err.(*coreapi.Error); ok {
		return e
	}
	return coreapi.PlatformError(id, err)
}

func (s *Service) lookup(id coreapi.ID) (*handle, *coreapi.Error) {
	var h *handle
	err := s.table.Use(id, func(r *resource.Resource) error {
		hh, ok := r.Payload.(*handle)
		if !ok {
			return coreapi.NewError(coreapi.KindInternal, "tcp: resource is not a tcp handle")
		}
		h = hh
		return nil
	})
	if err != nil {
		return nil, notConnected(err, id)
	}
	return h, nil
}

// Bind listens on ip:port under serverID, then accepts connections in
// the background for the handle's lifetime. onEvent receives one
// {serverId, clientId, ip, family, port} event per accepted peer.
func (s *Service) Bind(seq string, serverID coreapi.ID, ip string, port int, onEvent func(coreapi.Result), reply func(coreapi.Result)) {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	net_ := network(ip)

	go func() {
		ln, err := net.Listen(net_, addr)
		s.complete(func() {
			if err != nil {
				reply(coreapi.Failed("tcp.bind", seq, coreapi.PlatformError(serverID, err)))
				return
			}

			h := &handle{state: StateListening, listener: ln, onEvent: onEvent}
			if _, insertErr := s.table.InsertWithID(serverID, resource.KindTCPServer, h); insertErr != nil {
				ln.Close()
				reply(coreapi.Failed("tcp.bind", seq, insertErr.(*coreapi.Error)))
				return
			}

			go s.acceptLoop(serverID, h)
			reply(coreapi.OK("tcp.bind", seq, map[string]any{"result": true}))
		})
	}()
}

func (s *Service) acceptLoop(serverID coreapi.ID, h *handle) {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			return
		}

		clientID := coreapi.NewID()
		ch := &handle{state: StateConnected, conn: conn, peerServerID: serverID}
		if _, insertErr := s.table.InsertWithID(clientID, resource.KindTCPSocket, ch); insertErr != nil {
			conn.Close()
			continue
		}

		remote, _ := conn.RemoteAddr().(*net.TCPAddr)
		event := map[string]any{
			"serverId": serverID.String(),
			"clientId": clientID.String(),
		}
		if remote != nil {
			event["ip"] = remote.IP.String()
			event["family"] = family(remote.IP)
			event["port"] = remote.Port
		}

		s.complete(func() {
			if h.onEvent != nil {
				h.onEvent(coreapi.OK("tcp.bind", coreapi.UnsolicitedSeq, event))
			}
		})
	}
}

// Connect dials ip:port under clientID, applies the original's
// TCP_NODELAY=false/SO_KEEPALIVE=60s defaults, emits a "connection"
// event, and automatically starts reading inbound chunks tagged
// X-Method: tcpConnect.
func (s *Service) Connect(seq string, clientID coreapi.ID, ip string, port int, onEvent func(coreapi.Result), reply func(coreapi.Result)) {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	net_ := network(ip)

	go func() {
		conn, err := net.Dial(net_, addr)
		s.complete(func() {
			if err != nil {
				reply(coreapi.Failed("tcp.connect", seq, coreapi.PlatformError(clientID, err)))
				return
			}

			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(false)
				tc.SetKeepAlive(true)
				tc.SetKeepAlivePeriod(60 * time.Second)
			}

			h := &handle{state: StateConnected, conn: conn, onEvent: onEvent}
			if _, insertErr := s.table.InsertWithID(clientID, resource.KindTCPSocket, h); insertErr != nil {
				conn.Close()
				reply(coreapi.Failed("tcp.connect", seq, insertErr.(*coreapi.Error)))
				return
			}

			reply(coreapi.OK("tcp.connect", seq, map[string]any{"result": true}))
			if onEvent != nil {
				onEvent(coreapi.OK("tcp.connect", coreapi.UnsolicitedSeq, map[string]any{
					"clientId": clientID.String(),
					"method":   "emit",
					"message":  "connection",
				}))
			}
			s.startReading(clientID, h, "tcpConnect", onEvent)
		})
	}()
}

// ReadStart attaches a read handler to clientID if it is not already
// reading, routing every subsequent chunk, read error, and end-of-stream
// event to onEvent (accept events keep going to the server's Bind
// onEvent). Each inbound chunk is queued as a binary
// response tagged X-Method: tcpReadStart; a clean peer close reports
// {eof:true} rather than an error.
func (s *Service) ReadStart(seq string, clientID coreapi.ID, onEvent func(coreapi.Result), reply func(coreapi.Result)) {
	h, err := s.lookup(clientID)
	if err != nil {
		reply(coreapi.Failed("tcp.readStart", seq, err))
		return
	}
	s.startReading(clientID, h, "tcpReadStart", onEvent)
	reply(coreapi.OK("tcp.readStart", seq, map[string]any{"result": true}))
}

func (s *Service) startReading(clientID coreapi.ID, h *handle, method string, onEvent func(coreapi.Result)) {
	h.mu.Lock()
	if h.reading {
		h.mu.Unlock()
		return
	}
	h.reading = true
	h.state = StateReading
	if onEvent != nil {
		h.onEvent = onEvent
	}
	h.conn.SetReadDeadline(time.Time{})
	h.mu.Unlock()

	go func() {
		buf := make([]byte, 64*1024)
		for {
			h.mu.Lock()
			if !h.reading {
				h.mu.Unlock()
				return
			}
			if timeout := h.idleTimeout; timeout > 0 {
				h.conn.SetReadDeadline(time.Now().Add(timeout))
			} else {
				h.conn.SetReadDeadline(time.Time{})
			}
			h.mu.Unlock()

			n, err := h.conn.Read(buf)
			if err != nil {
				h.mu.Lock()
				stoppedByCaller := !h.reading
				h.mu.Unlock()
				if stoppedByCaller {
					return
				}

				s.complete(func() {
					if h.onEvent == nil {
						return
					}
					if err == io.EOF {
						h.onEvent(coreapi.OK(method, coreapi.UnsolicitedSeq, map[string]any{"clientId": clientID.String(), "eof": true}))
						return
					}
					h.onEvent(coreapi.Failed(method, coreapi.UnsolicitedSeq, coreapi.PlatformError(clientID, err)))
				})
				return
			}

			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			headers := http.Header{}
			headers.Set("Content-Type", "application/octet-stream")
			headers.Set("Content-Length", strconv.Itoa(n))
			headers.Set("X-ClientId", clientID.String())
			headers.Set("X-Method", method)

			postID := s.queued.Put(queuedresponse.Response{Headers: headers, Body: &chunk})
			s.complete(func() {
				if h.onEvent != nil {
					h.onEvent(coreapi.WithQueuedResponse(method, coreapi.UnsolicitedSeq, postID, headers))
				}
			})
		}
	}()
}

// ReadStop stops the reader started by ReadStart or Connect, reporting
// whether a reader was actually active.
func (s *Service) ReadStop(seq string, clientID coreapi.ID, reply func(coreapi.Result)) {
	h, err := s.lookup(clientID)
	if err != nil {
		reply(coreapi.Failed("tcp.readStop", seq, err))
		return
	}

	h.mu.Lock()
	wasReading := h.reading
	h.reading = false
	if h.conn != nil {
		h.conn.SetReadDeadline(time.Now())
	}
	h.mu.Unlock()

	reply(coreapi.OK("tcp.readStop", seq, map[string]any{"data": wasReading}))
}

// Send writes data to clientID once. A write failure both replies with
// and emits the error, matching spec.md section 4.6. The buffer is
// retained in the Shared-Buffer Ledger for the write's duration, per
// spec.md section 3.
func (s *Service) Send(seq string, clientID coreapi.ID, data []byte, reply func(coreapi.Result)) {
	h, err := s.lookup(clientID)
	if err != nil {
		reply(coreapi.Failed("tcp.send", seq, err))
		return
	}

	if s.buffers != nil {
		s.buffers.Retain(data, s.bufferTTLMs)
	}

	go func() {
		_, writeErr := h.conn.Write(data)
		s.complete(func() {
			if writeErr != nil {
				result := coreapi.Failed("tcp.send", seq, coreapi.PlatformError(clientID, writeErr))
				if h.onEvent != nil {
					h.onEvent(coreapi.Failed("tcp.send", coreapi.UnsolicitedSeq, coreapi.PlatformError(clientID, writeErr)))
				}
				reply(result)
				return
			}
			reply(coreapi.OK("tcp.send", seq, map[string]any{"result": true}))
		})
	}()
}

// SetKeepAlive enables TCP keepalive on clientID with the given period.
func (s *Service) SetKeepAlive(seq string, clientID coreapi.ID, seconds int, reply func(coreapi.Result)) {
	h, err := s.lookup(clientID)
	if err != nil {
		reply(coreapi.Failed("tcp.setKeepAlive", seq, err))
		return
	}

	tc, ok := h.conn.(*net.TCPConn)
	if !ok {
		reply(coreapi.Failed("tcp.setKeepAlive", seq, coreapi.NewError(coreapi.KindNotSupported, "keepalive requires a tcp connection")))
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(time.Duration(seconds) * time.Second)
	reply(coreapi.OK("tcp.setKeepAlive", seq, map[string]any{"result": true}))
}

// SetTimeout sets clientID's idle read timeout: the reader refreshes
// this deadline before every Read, so no data for longer than ms
// surfaces as a platform timeout error to onEvent. Passing 0 disables
// the timeout. This operation is unimplemented in the runtime this
// module was distilled from; it is implemented here per spec.md
// section 4.6.
func (s *Service) SetTimeout(seq string, clientID coreapi.ID, ms int, reply func(coreapi.Result)) {
	h, err := s.lookup(clientID)
	if err != nil {
		reply(coreapi.Failed("tcp.setTimeout", seq, err))
		return
	}

	h.mu.Lock()
	h.idleTimeout = time.Duration(ms) * time.Millisecond
	h.mu.Unlock()
	reply(coreapi.OK("tcp.setTimeout", seq, map[string]any{"result": true}))
}

// Shutdown half-closes clientID's write side.
func (s *Service) Shutdown(seq string, clientID coreapi.ID, reply func(coreapi.Result)) {
	h, err := s.lookup(clientID)
	if err != nil {
		reply(coreapi.Failed("tcp.shutdown", seq, err))
		return
	}

	tc, ok := h.conn.(*net.TCPConn)
	if !ok {
		reply(coreapi.Failed("tcp.shutdown", seq, coreapi.NewError(coreapi.KindNotSupported, "half-close requires a tcp connection")))
		return
	}

	go func() {
		closeErr := tc.CloseWrite()
		s.complete(func() {
			h.mu.Lock()
			if closeErr == nil {
				h.state = StateHalfClosed
			}
			h.mu.Unlock()
			status := 0
			if closeErr != nil {
				status = -1
			}
			reply(coreapi.OK("tcp.shutdown", seq, map[string]any{"status": status}))
		})
	}()
}

// Close fully closes and removes clientID or serverID. Closing an
// unknown id fails with NotConnected, per spec.md section 4.6.
func (s *Service) Close(seq string, id coreapi.ID, reply func(coreapi.Result)) {
	r, ok := s.table.Delete(id)
	if !ok {
		reply(coreapi.Failed("tcp.close", seq, coreapi.NotConnectedError(id)))
		return
	}
	h, ok := r.Payload.(*handle)
	if !ok {
		reply(coreapi.Failed("tcp.close", seq, coreapi.NewError(coreapi.KindInternal, "tcp.close: resource is not a tcp handle")))
		return
	}

	go func() {
		h.mu.Lock()
		h.reading = false
		var closeErr error
		if h.conn != nil {
			closeErr = h.conn.Close()
		} else if h.listener != nil {
			closeErr = h.listener.Close()
		}
		h.state = StateClosed
		h.mu.Unlock()

		s.complete(func() {
			if closeErr != nil {
				reply(coreapi.Failed("tcp.close", seq, coreapi.PlatformError(id, closeErr)))
				return
			}
			reply(coreapi.OK("tcp.close", seq, map[string]any{}))
		})
	}()
}

// SendBufferSize sets clientID's socket send buffer size, reporting
// the value Go's runtime accepted (Go does not expose the kernel's
// possibly-adjusted actual allocation, unlike a raw getsockopt).
func (s *Service) SendBufferSize(seq string, clientID coreapi.ID, size int, reply func(coreapi.Result)) {
	h, err := s.lookup(clientID)
	if err != nil {
		reply(coreapi.Failed("tcp.sendBufferSize", seq, err))
		return
	}
	tc, ok := h.conn.(*net.TCPConn)
	if !ok {
		reply(coreapi.Failed("tcp.sendBufferSize", seq, coreapi.NewError(coreapi.KindNotSupported, "buffer sizing requires a tcp connection")))
		return
	}
	if setErr := tc.SetWriteBuffer(size); setErr != nil {
		reply(coreapi.Failed("tcp.sendBufferSize", seq, coreapi.PlatformError(clientID, setErr)))
		return
	}
	reply(coreapi.OK("tcp.sendBufferSize", seq, map[string]any{"result": size}))
}

// RecvBufferSize sets clientID's socket receive buffer size.
func (s *Service) RecvBufferSize(seq string, clientID coreapi.ID, size int, reply func(coreapi.Result)) {
	h, err := s.lookup(clientID)
	if err != nil {
		reply(coreapi.Failed("tcp.recvBufferSize", seq, err))
		return
	}
	tc, ok := h.conn.(*net.TCPConn)
	if !ok {
		reply(coreapi.Failed("tcp.recvBufferSize", seq, coreapi.NewError(coreapi.KindNotSupported, "buffer sizing requires a tcp connection")))
		return
	}
	if setErr := tc.SetReadBuffer(size); setErr != nil {
		reply(coreapi.Failed("tcp.recvBufferSize", seq, coreapi.PlatformError(clientID, setErr)))
		return
	}
	reply(coreapi.OK("tcp.recvBufferSize", seq, map[string]any{"result": size}))
}
