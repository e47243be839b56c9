package protocol

import (
	"encoding/json"
	"fmt"
)

// reservedKeys are the envelope fields the serializer owns; a response
// payload must not set them itself (§3 invariants).
var reservedKeys = [...]string{"type", "cookie"}

// payloadKind distinguishes a completed response's two shapes.
type payloadKind int

const (
	payloadUnset payloadKind = iota
	payloadData
	payloadError
)

// Response is the tagged Reply(data) | Error(message) variant shared by
// every command. It becomes immutable once SetData or SetError has been
// called; calling either again after completion is a programmer error and
// panics, matching the teacher's fail-fast style for invariant violations
// that should never occur from well-formed handler code.
type Response struct {
	Type   string
	Cookie string

	kind   payloadKind
	data   json.RawMessage
	errMsg string
	debug  *DebugAnnex
}

// DebugAnnex is attached to a response when the originating request
// carried a debug annex (§6.1).
type DebugAnnex struct {
	JSONSerialization bool  `json:"jsonSerialization"`
	TotalTimeMillis   int64 `json:"totalTime"`
	SizeBytes         int   `json:"size"`
}

// NewResponse creates an incomplete response correlated to req. Callers
// must call SetData or SetError before the response is written.
func NewResponse(req *Request) *Response {
	return &Response{Type: req.Type, Cookie: req.Cookie}
}

// SetData completes the response with a successful payload. If data
// contains a top-level "type" or "cookie" key, the response becomes an
// error instead — the serializer never lets a handler smuggle those keys
// past the envelope it owns (§3 invariants).
func (r *Response) SetData(data any) {
	if r.IsComplete() {
		panic("protocol: response already completed")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		r.SetError(fmt.Sprintf("internal error: could not serialize response: %v", err))
		return
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err == nil {
		for _, key := range reservedKeys {
			if _, present := probe[key]; present {
				r.SetError(fmt.Sprintf("internal error: response data must not contain reserved key %q", key))
				return
			}
		}
	}

	r.kind = payloadData
	r.data = raw
}

// SetError completes the response as an error with the given message.
func (r *Response) SetError(message string) {
	if r.IsComplete() {
		panic("protocol: response already completed")
	}
	r.kind = payloadError
	r.errMsg = message
}

// SetDebug attaches a debug annex to an already-completed response.
func (r *Response) SetDebug(annex *DebugAnnex) {
	r.debug = annex
}

// IsComplete reports whether SetData or SetError has been called.
func (r *Response) IsComplete() bool {
	return r.kind != payloadUnset
}

// IsError reports whether the response is the Error variant.
func (r *Response) IsError() bool {
	return r.kind == payloadError
}

// ErrorMessage returns the error message; empty if the response is not an
// error.
func (r *Response) ErrorMessage() string {
	return r.errMsg
}

// Data returns the raw JSON data payload; nil if the response is an error
// or not yet complete.
func (r *Response) Data() json.RawMessage {
	return r.data
}

// Marshal asserts completeness (per §4.C) and serializes the envelope the
// session writes to the wire: {type, cookie, inReplyTo?, ...}.
func (r *Response) Marshal() ([]byte, error) {
	if !r.IsComplete() {
		panic("protocol: response marshaled before SetData/SetError was called")
	}

	envelope := map[string]any{
		"cookie":    r.Cookie,
		"inReplyTo": r.Type,
	}

	if r.kind == payloadError {
		envelope["type"] = "error"
		envelope["errorMessage"] = r.errMsg
	} else {
		envelope["type"] = "reply"
		if len(r.data) > 0 {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(r.data, &fields); err != nil {
				return nil, fmt.Errorf("protocol: response data is not a JSON object: %w", err)
			}
			for k, v := range fields {
				envelope[k] = v
			}
		}
	}

	if r.debug != nil {
		envelope["zzzDebug"] = r.debug
	}

	return json.Marshal(envelope)
}
