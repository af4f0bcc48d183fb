package coreapi

import "net/http"

// Result is the envelope every Router call and unsolicited event
// produces. Exactly one of Err or Data is populated for a routed call,
// except a queued binary response (WithQueuedResponse), which carries
// QueuedResponseID and Headers instead of Data; events may populate
// neither.
type Result struct {
	Sequence string
	Source   string
	Value    any
	Err      *Error
	Data     any
	Headers  http.Header

	// QueuedResponseID is set when the result's payload is a binary
	// body held in the Queued-Response Store rather than inlined as
	// Data; the WebHost fetches it out of band via `ipc://post?id=...`.
	QueuedResponseID ID
}

// OK builds a successful Result carrying data.
func OK(source, sequence string, data any) Result {
	return Result{Source: source, Sequence: sequence, Data: data}
}

// Failed builds a failed Result carrying err.
func Failed(source, sequence string, err *Error) Result {
	return Result{Source: source, Sequence: sequence, Err: err}
}

// WithQueuedResponse attaches a pending binary payload reference and
// its headers to an otherwise-successful Result.
func WithQueuedResponse(source, sequence string, id ID, headers http.Header) Result {
	return Result{Source: source, Sequence: sequence, QueuedResponseID: id, Headers: headers}
}

// JSON renders the Result's visible fields as a plain map suitable for
// JSON marshaling, keeping exactly one of "data"/"err" populated.
func (r Result) JSON() map[string]any {
	out := map[string]any{
		"source": r.Source,
	}
	if r.Sequence != "" {
		out["seq"] = r.Sequence
	}
	if r.Err != nil {
		out["err"] = map[string]any{
			"message": r.Err.Message,
			"code":    r.Err.Code,
			"type":    string(r.Err.Kind),
			"id":      uint64(r.Err.ID),
		}
		return out
	}
	if r.Data != nil {
		out["data"] = r.Data
	}
	return out
}
