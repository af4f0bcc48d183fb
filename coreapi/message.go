package coreapi

import (
	"context"
	"net/url"
	"strings"
)

// UnsolicitedSeq is the sequence value meaning "unsolicited event" —
// a message the Core emits upward without a caller waiting on it.
const UnsolicitedSeq = "-1"

// Client identifies the webview or in-process caller that owns a
// Message, matching the {id, index} pair carried in the Router grammar.
type Client struct {
	ID    ID
	Index int
}

// Message is the parsed form of an `ipc://name?k=v&...` URI plus an
// optional binary body. Query keys are unique: a duplicate key keeps
// the last value (see Get), unlike net/url.Values.Get.
type Message struct {
	Name     string
	Sequence string
	Query    url.Values
	Body     []byte
	Client   Client
	Href     string

	// Context carries cooperative cancellation: a cancelled Context
	// stops further chained callbacks but never interrupts in-flight
	// kernel I/O already issued for this message.
	Context context.Context
}

// IsUnsolicited reports whether this message represents an event with
// no caller sequence to correlate a reply against.
func (m *Message) IsUnsolicited() bool {
	return m.Sequence == UnsolicitedSeq
}

// Get returns the last value bound to key, or fallback if unset. A
// repeated query key keeps its last occurrence, not net/url.Values'
// default first-occurrence semantics.
func (m *Message) Get(key, fallback string) string {
	if m.Query == nil {
		return fallback
	}
	return lastValue(m.Query, key, fallback)
}

// Has reports whether key is present in the query, regardless of value.
func (m *Message) Has(key string) bool {
	if m.Query == nil {
		return false
	}
	_, ok := m.Query[key]
	return ok
}

// ParseMessage parses a `ipc://<name>[?<query>]` URI and optional body
// into a Message. Reserved keys (seq, id, index) are lifted into the
// dedicated fields; any other key is left in Query for the handler.
func ParseMessage(uri string, body []byte) (*Message, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, NewError(KindParseError, "malformed uri: "+err.Error())
	}

	if u.Scheme != "ipc" {
		return nil, NewError(KindParseError, "unsupported uri scheme: "+u.Scheme)
	}

	name := u.Host
	if name == "" {
		name = strings.TrimPrefix(u.Opaque, "//")
	}
	if name == "" {
		return nil, NewError(KindParseError, "missing handler name in uri")
	}

	query := u.Query()

	msg := &Message{
		Name:     name,
		Sequence: lastValue(query, "seq", UnsolicitedSeq),
		Query:    query,
		Body:     body,
		Href:     uri,
		Context:  context.Background(),
	}

	if idStr := lastValue(query, "id", ""); idStr != "" {
		if id, ok := ParseID(idStr); ok {
			msg.Client.ID = id
		} else {
			return nil, NewError(KindParseError, "invalid id query value: "+idStr)
		}
	}

	if idxStr := lastValue(query, "index", ""); idxStr != "" {
		idx, ok := parseInt(idxStr)
		if !ok {
			return nil, NewError(KindParseError, "invalid index query value: "+idxStr)
		}
		msg.Client.Index = idx
	}

	query.Del("seq")
	query.Del("id")
	query.Del("index")

	return msg, nil
}

// lastValue returns the last value bound to key in v, or fallback if
// key is absent. spec.md section 3 requires a repeated query key to
// keep its last occurrence, unlike url.Values.Get's first-occurrence
// default.
func lastValue(v url.Values, key, fallback string) string {
	vs, ok := v[key]
	if !ok || len(vs) == 0 {
		return fallback
	}
	return vs[len(vs)-1]
}

func parseInt(s string) (int, bool) {
	n := 0
	neg := false
	if s == "" {
		return 0, false
	}
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}
