// Package protocol defines the immutable request/response value types
// exchanged between the session state machine and a bound protocol
// implementation, independent of wire framing (see package frame) and of
// any particular protocol version's command set (see package protocolv1).
package protocol

import "encoding/json"

// Handle lets a protocol implementation push progress and message frames
// that are tied to the request currently being processed, without needing
// a reference back to the transport or session. It is installed for the
// duration of a single request handler and released on every exit path
// (§4.F "Progress/message plumbing", §9 "scoped acquisition").
type Handle interface {
	// ReportProgress emits a progress frame for the in-flight request.
	ReportProgress(minimum, current, maximum int, message string)

	// ReportMessage emits a message frame for the in-flight request.
	ReportMessage(title, message string)
}

// noopHandle is used when a request is processed outside of a live
// transport (e.g. in tests), so protocol code can always call
// req.Handle.ReportProgress without a nil check.
type noopHandle struct{}

func (noopHandle) ReportProgress(int, int, int, string) {}
func (noopHandle) ReportMessage(string, string)         {}

// NoopHandle is a Handle that discards every push.
var NoopHandle Handle = noopHandle{}

// Request is an immutable value constructed when a frame is decoded and
// destroyed once its matching response has been written.
type Request struct {
	// Type is the routing key: a command name, or "handshake".
	Type string

	// Cookie is echoed back on every frame produced for this request.
	Cookie string

	// Data is the request's whole JSON object as received, including its
	// "type" and "cookie" keys.
	Data json.RawMessage

	// Handle lets the active protocol push progress/message frames tied
	// to this request. Never nil — use NoopHandle in tests.
	Handle Handle

	// Debug carries the optional debug annex (§6.1), or nil if the
	// request carried none.
	Debug *DebugRequest
}

// DebugRequest is the optional "debug" sub-object on a request.
type DebugRequest struct {
	ShowStats  bool   `json:"showStats"`
	DumpToFile string `json:"dumpToFile"`
}

// DataAs unmarshals the request's Data field into v. It is a convenience
// for protocol handlers that expect a specific shape; callers must treat a
// decode error as a VALIDATION failure (§7).
func (r *Request) DataAs(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}
