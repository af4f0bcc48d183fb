package coreapi

import "net/http"

// ConfigSource is the external Config component: a flat
// <section>.<key> -> string map the Core reads feature flags and
// tunables from. It is never parsed or persisted by the Core itself.
type ConfigSource interface {
	Snapshot() map[string]string
}

// ShellNotifier is how the Lifecycle Controller and Router emit
// unsolicited events (Sequence == UnsolicitedSeq) up to the external
// Shell/WebHost layer without the Core importing either package.
type ShellNotifier interface {
	NotifyEvent(name string, payload []byte)
}

// WebHostFetcher is the read-side contract for an external WebHost: a
// fetch of a pending binary payload by ID, plus its headers. The
// Queued-Response Store does not implement this interface itself; its
// Get and HasBody methods provide the underlying lookup.
type WebHostFetcher interface {
	FetchQueuedResponse(id ID) (body []byte, headers http.Header, ok bool)
}
