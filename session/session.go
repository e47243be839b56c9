// Package session implements the per-connection state machine: protocol
// discovery and handshake, and routing of decoded requests to either the
// handshake handler or the bound protocol (§4.E).
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/buildconf/server/protocol"
	"github.com/buildconf/server/registry"
)

// Sink is where the session writes outbound frame payloads. The
// transport's Send method satisfies this.
type Sink interface {
	Send(payload []byte)
}

// Session owns the registry of supported protocols and, once a handshake
// succeeds, the single bound protocol for its lifetime. It is touched only
// from the transport's read-loop goroutine and therefore needs no locking
// of its own (§5 "Shared-resource policy").
type Session struct {
	registry     *registry.Registry
	experimental bool
	sink         Sink
	log          *slog.Logger

	bound registry.Protocol
}

// New creates a Session bound to no protocol yet.
func New(reg *registry.Registry, sink Sink, experimental bool, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{registry: reg, sink: sink, experimental: experimental, log: log}
}

// SayHello writes the initial "hello" frame the session emits once at
// start (§4.E, §8 scenario 1).
func (s *Session) SayHello() {
	hello := protocol.HelloFrame{
		Type:                      "hello",
		SupportedProtocolVersions: s.registry.Discoverable(s.experimental),
	}
	s.sink.Send(protocol.MustMarshal(hello))
}

// HandleFrame decodes a raw frame payload and dispatches it. It is the
// FrameHandler the transport calls once per inbound frame.
func (s *Session) HandleFrame(payload []byte) {
	req, err := s.decodeRequest(payload)
	if err != nil {
		s.writeParseError(err)
		return
	}

	resp := s.Dispatch(req)
	if resp == nil {
		// Dispatch itself never returns nil; nil can only come from a
		// bound protocol's Process, and no reply frame is written for it.
		return
	}
	s.writeResponse(resp, req.Debug)
}

// Dispatch implements the routing rules in §4.E steps 2-4. It is exported
// so tests (and an in-process embedding of the server) can drive requests
// without going through frame decoding.
func (s *Session) Dispatch(req *protocol.Request) *protocol.Response {
	if req.Type == "" {
		resp := protocol.NewResponse(req)
		resp.SetError("No type given in request.")
		return resp
	}

	if s.bound == nil {
		return s.handleHandshake(req)
	}

	return s.bound.Process(req)
}

func (s *Session) decodeRequest(payload []byte) (*protocol.Request, error) {
	var envelope struct {
		Type   string          `json:"type"`
		Cookie string          `json:"cookie"`
		Debug  *json.RawMessage `json:"debug"`
	}

	var probe any
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, fmt.Errorf("frame payload is not valid JSON: %w", err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, fmt.Errorf("frame payload is not a JSON object")
	}

	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("request envelope malformed: %w", err)
	}

	req := &protocol.Request{
		Type:   envelope.Type,
		Cookie: envelope.Cookie,
		Data:   payload,
		Handle: &pushHandle{sink: s.sink, reqType: envelope.Type, cookie: envelope.Cookie},
	}

	if envelope.Debug != nil {
		var dbg protocol.DebugRequest
		if err := json.Unmarshal(*envelope.Debug, &dbg); err == nil {
			req.Debug = &dbg
		}
	}

	return req, nil
}

// writeParseError emits the unsolicited PARSE_ERROR frame described in
// §4.A: empty cookie and inReplyTo.
func (s *Session) writeParseError(cause error) {
	s.log.Warn("frame parse error", "error", cause)
	frame := map[string]string{
		"type":         "error",
		"cookie":       "",
		"inReplyTo":    "",
		"errorMessage": "Failed to parse JSON input.",
	}
	s.sink.Send(protocol.MustMarshal(frame))
}

// writeResponse marshals resp and sends it. When dbg is non-nil (the
// request carried a "debug" annex, §6.1), showStats attaches a zzzDebug
// sub-object timing the JSON serialization itself and reporting its size,
// and dumpToFile additionally writes the final wire bytes to the named
// path.
func (s *Session) writeResponse(resp *protocol.Response, dbg *protocol.DebugRequest) {
	if dbg == nil {
		raw, err := resp.Marshal()
		if err != nil {
			s.log.Error("failed to marshal response", "error", err)
			return
		}
		s.sink.Send(raw)
		return
	}

	start := time.Now()
	raw, err := resp.Marshal()
	if err != nil {
		s.log.Error("failed to marshal response", "error", err)
		return
	}
	elapsed := time.Since(start)

	if dbg.ShowStats {
		resp.SetDebug(&protocol.DebugAnnex{
			JSONSerialization: true,
			TotalTimeMillis:   elapsed.Milliseconds(),
			SizeBytes:         len(raw),
		})
		raw, err = resp.Marshal()
		if err != nil {
			s.log.Error("failed to marshal response", "error", err)
			return
		}
	}

	if dbg.DumpToFile != "" {
		if err := os.WriteFile(dbg.DumpToFile, raw, 0o644); err != nil {
			s.log.Warn("failed to dump debug annex to file", "error", err, "path", dbg.DumpToFile)
		}
	}

	s.sink.Send(raw)
}

// pushHandle is the protocol.Handle implementation installed on every
// decoded request; it writes progress/message frames directly to the
// sink, tagged with the owning request's type and cookie.
type pushHandle struct {
	sink    Sink
	reqType string
	cookie  string
}

func (h *pushHandle) ReportProgress(minimum, current, maximum int, message string) {
	h.sink.Send(protocol.MustMarshal(protocol.ProgressFrame{
		Type:            "progress",
		InReplyTo:       h.reqType,
		Cookie:          h.cookie,
		ProgressMessage: message,
		ProgressMinimum: minimum,
		ProgressCurrent: current,
		ProgressMaximum: maximum,
	}))
}

func (h *pushHandle) ReportMessage(title, message string) {
	h.sink.Send(protocol.MustMarshal(protocol.MessageFrame{
		Type:      "message",
		InReplyTo: h.reqType,
		Cookie:    h.cookie,
		Message:   message,
		Title:     title,
	}))
}
