// Package router implements the Router: the name -> handler table that
// turns `ipc://name?query` URIs into Service calls and routes
// unsolicited events to subscribed listeners.
//
// Grounded on ssc::runtime::ipc::Router in
// original_source/src/runtime/ipc.hh (Table/Listeners maps,
// map/unmap/listen/unlisten/invoke/preserveCurrentTable).
package router

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/runtimecore/core/coreapi"
)

// ReplyFunc is how a HandlerFunc completes its call exactly once.
type ReplyFunc func(coreapi.Result)

// HandlerFunc services one routed message. It must call its ReplyFunc
// exactly once, per spec.md section 4.11.
type HandlerFunc func(msg *coreapi.Message, reply ReplyFunc)

type tableEntry struct {
	async   bool
	handler HandlerFunc
}

type listenerEntry struct {
	token   uint64
	handler HandlerFunc
}

// Router maps dotted handler names (fs.read, udp.bind,
// platform.openExternal, ...) to Service methods.
type Router struct {
	log zerolog.Logger

	// dispatch hops async handler invocations onto the reactor thread;
	// the composition root passes (*reactor.Reactor).Dispatch to New.
	dispatch func(func())

	mu        sync.Mutex
	table     map[string]tableEntry
	preserved map[string]tableEntry
	listeners map[string][]listenerEntry
	tokenSeq  uint64
}

// New constructs a Router. dispatch runs async handler bodies on the
// reactor thread; it may be nil if every registered handler is sync.
func New(log zerolog.Logger, dispatch func(func())) *Router {
	return &Router{
		log:       log,
		dispatch:  dispatch,
		table:     make(map[string]tableEntry),
		listeners: make(map[string][]listenerEntry),
	}
}

// Map registers name -> handler as an async entry (invoked through
// Dispatch, on the reactor thread, after returning to the caller).
func (r *Router) Map(name string, handler HandlerFunc) {
	r.MapAsync(name, true, handler)
}

// MapAsync registers name -> handler, choosing whether it runs inline
// (sync) or via the reactor (async).
func (r *Router) MapAsync(name string, async bool, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[name] = tableEntry{async: async, handler: handler}
}

// Unmap removes a registered handler.
func (r *Router) Unmap(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.table, name)
}

// Listen subscribes handler to unsolicited events named name, returning
// a token Unlisten can later use to remove exactly this subscription.
func (r *Router) Listen(name string, handler HandlerFunc) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenSeq++
	token := r.tokenSeq
	r.listeners[name] = append(r.listeners[name], listenerEntry{token: token, handler: handler})
	return token
}

// Unlisten removes the subscription identified by token. It reports
// false if no such subscription exists.
func (r *Router) Unlisten(name string, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.listeners[name]
	if !ok {
		return false
	}
	for i, s := range subs {
		if s.token == token {
			r.listeners[name] = append(subs[:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// Emit delivers an unsolicited-event message to every listener
// subscribed to name.
func (r *Router) Emit(name string, msg *coreapi.Message) {
	r.mu.Lock()
	subs := append([]listenerEntry{}, r.listeners[name]...)
	r.mu.Unlock()

	for _, s := range subs {
		s.handler(msg, func(coreapi.Result) {})
	}
}

// PreserveCurrentTable snapshots the current handler map so that a
// webview content reload can restore the exact handler set afterward
// (see RestorePreservedTable).
func (r *Router) PreserveCurrentTable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preserved = make(map[string]tableEntry, len(r.table))
	for k, v := range r.table {
		r.preserved[k] = v
	}
}

// RestorePreservedTable replaces the live table with the snapshot
// taken by the most recent PreserveCurrentTable call.
func (r *Router) RestorePreservedTable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.preserved == nil {
		return
	}
	r.table = make(map[string]tableEntry, len(r.preserved))
	for k, v := range r.preserved {
		r.table[k] = v
	}
}

// Invoke parses uri, locates its handler, and runs it: inline for a
// sync entry, or dispatched through the reactor for an async one.
// It returns false if parsing failed or no handler exists for the
// parsed name; otherwise it returns true, and the handler is obliged
// to call callback exactly once.
func (r *Router) Invoke(uri string, body []byte, callback func(coreapi.Result)) bool {
	msg, err := coreapi.ParseMessage(uri, body)
	if err != nil {
		if callback != nil {
			callback(coreapi.Failed("router", "", err.(*coreapi.Error)))
		}
		return false
	}

	r.mu.Lock()
	e, ok := r.table[msg.Name]
	r.mu.Unlock()

	if !ok {
		if callback != nil {
			callback(coreapi.Failed(msg.Name, msg.Sequence, coreapi.NewError(coreapi.KindParseError, "no handler registered for "+msg.Name)))
		}
		return false
	}

	reply := r.onceReply(msg.Name, callback)

	if !e.async || r.dispatch == nil {
		e.handler(msg, reply)
		return true
	}

	r.dispatch(func() { e.handler(msg, reply) })
	return true
}

// onceReply wraps callback so a misbehaving handler calling it more
// than once cannot corrupt caller state; the second call is logged
// and dropped.
func (r *Router) onceReply(source string, callback func(coreapi.Result)) ReplyFunc {
	var calls atomic.Int32
	return func(result coreapi.Result) {
		if calls.Add(1) != 1 {
			r.log.Warn().Str("handler", source).Msg("router: handler invoked its reply callback more than once")
			return
		}
		if callback != nil {
			callback(result)
		}
	}
}
