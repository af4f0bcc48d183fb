// Package queuedresponse implements the Queued-Response Store: the
// TTL-bounded holding area for binary payloads a Service has produced
// but which the WebHost has not yet fetched.
//
// Grounded on the Post map and putPost/getPost/removePost/expirePosts/
// hasPost/hasPostBody methods of original_source/src/core/core.cc.
// createPost's JavaScript-snippet generation is explicitly out of
// scope per spec.md section 9 ("a contract between the Core and the
// WebHost, not part of the Core's own concern"); this package only
// specifies the `ipc://post?id=<id>` URL shape new entries are fetched
// through, leaving snippet assembly to the WebHost.
package queuedresponse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/runtimecore/core/coreapi"
)

// DefaultTTL matches the original runtime's fixed 32-second post TTL.
const DefaultTTL = 32 * time.Second

// Response is a binary payload pending WebHost pickup.
type Response struct {
	ID       coreapi.ID
	WorkerID string
	Headers  http.Header
	// Body is a pointer to the backing slice so HasBody can test
	// pointer identity the way the original runtime's hasPostBody walks
	// posts comparing `post.body.get() == body`.
	Body *[]byte
}

// Len returns len(*Body), or 0 if Body is nil.
func (r *Response) Len() int {
	if r.Body == nil {
		return 0
	}
	return len(*r.Body)
}

type entry struct {
	resp Response
	expires time.Time
}

// Store owns Response bodies pending webview pickup, TTL-bounded.
type Store struct {
	mu      sync.Mutex
	entries map[coreapi.ID]*entry
	ttl     time.Duration
}

// NewStore constructs a Store using ttl for every Put (DefaultTTL if
// ttl <= 0).
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{entries: make(map[coreapi.ID]*entry), ttl: ttl}
}

// Put stores resp, assigning it a fresh ID if unset, and sets its
// expiry to now + the Store's TTL.
func (s *Store) Put(resp Response) coreapi.ID {
	if resp.ID == coreapi.NoID {
		resp.ID = coreapi.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[resp.ID] = &entry{resp: resp, expires: time.Now().Add(s.ttl)}
	return resp.ID
}

// Get returns the stored Response without removing it. ok is false if
// id is unknown or has expired.
func (s *Store) Get(id coreapi.ID) (Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || time.Now().After(e.expires) {
		return Response{}, false
	}
	return e.resp, true
}

// Remove explicitly evicts id.
func (s *Store) Remove(id coreapi.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// HasBody reports whether ptr is still the backing buffer of a live
// entry, letting a WebHost that was handed the raw pointer check
// ownership before dereferencing it directly instead of copying.
func (s *Store) HasBody(ptr *[]byte) bool {
	if ptr == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, e := range s.entries {
		if now.After(e.expires) {
			continue
		}
		if e.resp.Body == ptr {
			return true
		}
	}
	return false
}

// Sweep removes every entry whose TTL has elapsed, matching
// Core::expirePosts's periodic-per-second sweep.
func (s *Store) Sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, id)
		}
	}
}

// Len reports the number of live (non-expired) entries, for
// metrics/debug probes.
func (s *Store) Len() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !now.After(e.expires) {
			n++
		}
	}
	return n
}

// FetchURL renders the `ipc://post?id=<id>` URL the WebHost fetches a
// queued response through, per spec.md section 9's URL-shape contract.
func FetchURL(id coreapi.ID) string {
	return fmt.Sprintf("ipc://post?id=%s", id.String())
}
