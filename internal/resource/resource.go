// Package resource implements the Resource Table: the single place
// that owns file, directory, and socket handles by opaque ID.
//
// Grounded on the fs.descriptors map walked by the
// releaseStrongReferenceDescriptors timer in
// original_source/src/core/core.cc, and generalized per spec.md
// section 9's redesign note: "Global maps of raw pointers... become a
// Resource Table keyed by ID; ownership is exclusive inside the table;
// external code holds only IDs." The table is a map guarded by a single
// sync.Mutex; Use hands its callback the live entry while that lock is
// held.
package resource

import (
	"sync"
	"time"

	"github.com/runtimecore/core/coreapi"
)

// Kind is the tagged-variant discriminator for a Resource, replacing
// the implicit polymorphism the original runtime used at TCP/UDP call
// sites (spec.md section 9: "becomes an enum variant per peer").
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindTCPSocket
	KindUDPSocket
	KindTCPServer
	KindPeer
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindTCPSocket:
		return "tcp-socket"
	case KindUDPSocket:
		return "udp-socket"
	case KindTCPServer:
		return "tcp-server"
	case KindPeer:
		return "peer"
	default:
		return "unknown"
	}
}

// Resource is an owned, ID-addressable handle. Payload holds the
// concrete platform handle (*os.File, net.Conn, net.PacketConn,
// net.Listener, or a *Peer); callers reach it only through Table.Use,
// never by storing the pointer past that call, so the table remains
// the resource's sole strong-reference holder.
type Resource struct {
	ID         coreapi.ID
	Kind       Kind
	CreatedAt  time.Time
	LastUsedAt time.Time
	Retained   bool
	Payload    any
}

// isStale reports whether the resource is old enough for the
// Descriptor Cleanup Ledger to reclaim it.
func (r *Resource) isStale(now time.Time, idleThreshold time.Duration) bool {
	return !r.Retained && now.Sub(r.LastUsedAt) >= idleThreshold
}

// Table maps coreapi.ID -> *Resource under a single mutex, per
// spec.md section 4.3: "every mutation is serialized by a single
// mutex owned by the component housing the resource."
type Table struct {
	mu      sync.Mutex
	entries map[coreapi.ID]*Resource
}

// NewTable constructs an empty Resource Table.
func NewTable() *Table {
	return &Table{entries: make(map[coreapi.ID]*Resource)}
}

// Insert allocates a fresh ID, wraps payload in a Resource of the
// given kind, and stores it. Insert and InsertWithID are the only ways
// a Resource enters the table.
func (t *Table) Insert(kind Kind, payload any) *Resource {
	now := time.Now()
	r := &Resource{
		ID:         coreapi.NewID(),
		Kind:       kind,
		CreatedAt:  now,
		LastUsedAt: now,
		Payload:    payload,
	}

	t.mu.Lock()
	t.entries[r.ID] = r
	t.mu.Unlock()
	return r
}

// InsertWithID stores payload under a caller-supplied id rather than
// one Insert would generate, for the TCP/UDP services where the
// server/client ID is minted by the caller before the bind/connect
// call completes (spec.md section 4.6: "bind(serverId, ip, port)").
// It fails if id is coreapi.NoID or already in use.
func (t *Table) InsertWithID(id coreapi.ID, kind Kind, payload any) (*Resource, error) {
	if id == coreapi.NoID {
		return nil, coreapi.NewError(coreapi.KindInternal, "resource: cannot insert the reserved zero id")
	}

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[id]; exists {
		return nil, coreapi.NewError(coreapi.KindInternal, "resource: id already in use")
	}
	r := &Resource{ID: id, Kind: kind, CreatedAt: now, LastUsedAt: now, Payload: payload}
	t.entries[id] = r
	return r, nil
}

// Use runs fn with the table's lock held across the lookup and the
// call, per spec.md section 4.3's "lookup-and-use" discipline. It
// returns coreapi.NotOpenError if id is unknown. Callers must not
// retain the *Resource passed to fn beyond fn returning.
func (t *Table) Use(id coreapi.ID, fn func(*Resource) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.entries[id]
	if !ok {
		return coreapi.NotOpenError(id)
	}
	r.LastUsedAt = time.Now()
	return fn(r)
}

// Has reports whether id is present without touching LastUsedAt.
func (t *Table) Has(id coreapi.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

// Retain marks a resource as pinned against the Descriptor Cleanup
// Ledger, or clears the pin.
func (t *Table) Retain(id coreapi.ID, retained bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.entries[id]
	if !ok {
		return coreapi.NotOpenError(id)
	}
	r.Retained = retained
	return nil
}

// Delete removes id from the table and returns the removed Resource
// so its owner can close the underlying handle. Deletion must happen
// on the reactor thread, per spec.md section 3's lifecycle rule; the
// table itself does not enforce that, since it has no notion of which
// goroutine called it — callers dispatch Delete through the Reactor.
func (t *Table) Delete(id coreapi.ID) (*Resource, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return r, ok
}

// Stale returns the IDs of resources of the given kinds that are not
// retained and have been idle at least idleThreshold, for the
// Descriptor Cleanup Ledger to close.
func (t *Table) Stale(idleThreshold time.Duration, kinds ...Kind) []coreapi.ID {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []coreapi.ID
	for id, r := range t.entries {
		if len(want) > 0 && !want[r.Kind] {
			continue
		}
		if r.isStale(now, idleThreshold) {
			ids = append(ids, id)
		}
	}
	return ids
}

// IDsOf returns every live resource ID of the given kinds, for
// operations that must act on every known instance regardless of
// idle time (e.g. the UDP Service's pauseAllSockets/resumeAllSockets,
// spec.md section 4.7).
func (t *Table) IDsOf(kinds ...Kind) []coreapi.ID {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []coreapi.ID
	for id, r := range t.entries {
		if len(want) > 0 && !want[r.Kind] {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live resources, for metrics/debug probes.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
