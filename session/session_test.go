package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/buildconf/server/protocol"
	"github.com/buildconf/server/registry"
)

type recordingSink struct {
	frames []map[string]any
}

func (r *recordingSink) Send(payload []byte) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		panic(err)
	}
	r.frames = append(r.frames, m)
}

type fakeProtocol struct {
	version      registry.Version
	experimental bool
	activateErr  error
	processFn    func(*protocol.Request) *protocol.Response
}

func (f *fakeProtocol) Version() registry.Version { return f.version }
func (f *fakeProtocol) Experimental() bool        { return f.experimental }
func (f *fakeProtocol) Activate(*protocol.Request) error { return f.activateErr }
func (f *fakeProtocol) Process(req *protocol.Request) *protocol.Response {
	if f.processFn != nil {
		return f.processFn(req)
	}
	resp := protocol.NewResponse(req)
	resp.SetData(map[string]any{})
	return resp
}

func newTestSession(t *testing.T, proto *fakeProtocol) (*Session, *recordingSink) {
	t.Helper()
	reg := registry.New()
	reg.Register(proto)
	sink := &recordingSink{}
	return New(reg, sink, false, nil), sink
}

func TestSayHelloEmitsSupportedVersions(t *testing.T) {
	s, sink := newTestSession(t, &fakeProtocol{version: registry.Version{Major: 1, Minor: 0}})
	s.SayHello()

	if len(sink.frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(sink.frames))
	}
	if sink.frames[0]["type"] != "hello" {
		t.Fatalf("expected hello frame, got %v", sink.frames[0])
	}
}

func TestRejectPreHandshakeRequest(t *testing.T) {
	s, _ := newTestSession(t, &fakeProtocol{version: registry.Version{Major: 1, Minor: 0}})

	req := &protocol.Request{Type: "configure", Cookie: "a", Handle: protocol.NoopHandle}
	resp := s.Dispatch(req)

	if !resp.IsError() {
		t.Fatal("expected error before handshake")
	}
	if resp.ErrorMessage() != `Waiting for type "handshake".` {
		t.Fatalf("got %q", resp.ErrorMessage())
	}
}

func TestEmptyTypeIsRejected(t *testing.T) {
	s, _ := newTestSession(t, &fakeProtocol{version: registry.Version{Major: 1, Minor: 0}})

	req := &protocol.Request{Type: "", Cookie: "a", Handle: protocol.NoopHandle}
	resp := s.Dispatch(req)

	if !resp.IsError() || resp.ErrorMessage() != "No type given in request." {
		t.Fatalf("got %+v", resp)
	}
}

func TestHandshakeHappyPath(t *testing.T) {
	s, _ := newTestSession(t, &fakeProtocol{version: registry.Version{Major: 1, Minor: 0}})

	req := &protocol.Request{
		Type:   "handshake",
		Cookie: "c1",
		Data:   json.RawMessage(`{"protocolVersion":{"major":1,"minor":0}}`),
		Handle: protocol.NoopHandle,
	}
	resp := s.Dispatch(req)

	if resp.IsError() {
		t.Fatalf("expected success, got error: %s", resp.ErrorMessage())
	}
	if !s.IsBound() {
		t.Fatal("expected session to be bound after successful handshake")
	}
}

func TestHandshakeMinorAutoSelect(t *testing.T) {
	reg := registry.New()
	reg.Register(&fakeProtocol{version: registry.Version{Major: 1, Minor: 0}})
	reg.Register(&fakeProtocol{version: registry.Version{Major: 1, Minor: 2}})
	sink := &recordingSink{}
	s := New(reg, sink, false, nil)

	req := &protocol.Request{
		Type:   "handshake",
		Cookie: "c1",
		Data:   json.RawMessage(`{"protocolVersion":{"major":1}}`),
		Handle: protocol.NoopHandle,
	}
	resp := s.Dispatch(req)
	if resp.IsError() {
		t.Fatalf("expected success, got error: %s", resp.ErrorMessage())
	}
}

func TestHandshakeUnsupportedMajor(t *testing.T) {
	s, _ := newTestSession(t, &fakeProtocol{version: registry.Version{Major: 1, Minor: 0}})

	req := &protocol.Request{
		Type:   "handshake",
		Cookie: "c1",
		Data:   json.RawMessage(`{"protocolVersion":{"major":2}}`),
		Handle: protocol.NoopHandle,
	}
	resp := s.Dispatch(req)
	if !resp.IsError() || resp.ErrorMessage() != "Protocol version not supported." {
		t.Fatalf("got %+v", resp)
	}
}

func TestHandshakeActivationFailureDiscardsBinding(t *testing.T) {
	proto := &fakeProtocol{
		version:     registry.Version{Major: 1, Minor: 0},
		activateErr: errActivation,
	}
	s, _ := newTestSession(t, proto)

	req := &protocol.Request{
		Type:   "handshake",
		Cookie: "c1",
		Data:   json.RawMessage(`{"protocolVersion":{"major":1,"minor":0}}`),
		Handle: protocol.NoopHandle,
	}
	resp := s.Dispatch(req)
	if !resp.IsError() {
		t.Fatal("expected activation failure to surface as an error")
	}
	if s.IsBound() {
		t.Fatal("expected binding to be discarded on activation failure")
	}
}

var errActivation = fakeErr("missing buildDirectory")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestDispatchForwardsToActiveProtocol(t *testing.T) {
	called := false
	proto := &fakeProtocol{
		version: registry.Version{Major: 1, Minor: 0},
		processFn: func(req *protocol.Request) *protocol.Response {
			called = true
			resp := protocol.NewResponse(req)
			resp.SetData(map[string]any{})
			return resp
		},
	}
	s, _ := newTestSession(t, proto)

	handshake := &protocol.Request{
		Type:   "handshake",
		Cookie: "c1",
		Data:   json.RawMessage(`{"protocolVersion":{"major":1,"minor":0}}`),
		Handle: protocol.NoopHandle,
	}
	s.Dispatch(handshake)

	configure := &protocol.Request{Type: "configure", Cookie: "c2", Handle: protocol.NoopHandle}
	s.Dispatch(configure)

	if !called {
		t.Fatal("expected bound protocol's Process to be called")
	}
}

func TestHandleFrameWritesParseErrorOnBadJSON(t *testing.T) {
	s, sink := newTestSession(t, &fakeProtocol{version: registry.Version{Major: 1, Minor: 0}})
	s.HandleFrame([]byte("{not json"))

	if len(sink.frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(sink.frames))
	}
	if sink.frames[0]["type"] != "error" || sink.frames[0]["cookie"] != "" {
		t.Fatalf("got %+v", sink.frames[0])
	}
}

func handshakeFrame(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"type":            "handshake",
		"cookie":          "c1",
		"protocolVersion": map[string]any{"major": 1, "minor": 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestDebugAnnexShowStatsAttachesZzzDebug(t *testing.T) {
	s, sink := newTestSession(t, &fakeProtocol{version: registry.Version{Major: 1, Minor: 0}})
	s.HandleFrame(handshakeFrame(t))

	raw, err := json.Marshal(map[string]any{
		"type":   "configure",
		"cookie": "c2",
		"debug":  map[string]any{"showStats": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	s.HandleFrame(raw)

	if len(sink.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(sink.frames))
	}
	dbg, ok := sink.frames[1]["zzzDebug"].(map[string]any)
	if !ok {
		t.Fatalf("expected zzzDebug annex, got %+v", sink.frames[1])
	}
	if dbg["jsonSerialization"] != true {
		t.Fatalf("expected jsonSerialization true, got %+v", dbg)
	}
	if _, ok := dbg["totalTime"]; !ok {
		t.Fatalf("expected totalTime in debug annex, got %+v", dbg)
	}
	if _, ok := dbg["size"]; !ok {
		t.Fatalf("expected size in debug annex, got %+v", dbg)
	}
}

func TestDebugAnnexWithoutShowStatsOmitsZzzDebug(t *testing.T) {
	s, sink := newTestSession(t, &fakeProtocol{version: registry.Version{Major: 1, Minor: 0}})
	s.HandleFrame(handshakeFrame(t))

	raw, err := json.Marshal(map[string]any{
		"type":   "configure",
		"cookie": "c2",
		"debug":  map[string]any{},
	})
	if err != nil {
		t.Fatal(err)
	}
	s.HandleFrame(raw)

	if _, ok := sink.frames[1]["zzzDebug"]; ok {
		t.Fatalf("expected no zzzDebug annex when showStats is unset, got %+v", sink.frames[1])
	}
}

func TestDebugAnnexDumpsToFile(t *testing.T) {
	s, _ := newTestSession(t, &fakeProtocol{version: registry.Version{Major: 1, Minor: 0}})
	s.HandleFrame(handshakeFrame(t))

	dumpPath := filepath.Join(t.TempDir(), "dump.json")
	raw, err := json.Marshal(map[string]any{
		"type":   "configure",
		"cookie": "c2",
		"debug":  map[string]any{"dumpToFile": dumpPath},
	})
	if err != nil {
		t.Fatal(err)
	}
	s.HandleFrame(raw)

	dumped, err := os.ReadFile(dumpPath)
	if err != nil {
		t.Fatalf("expected dump file to be written: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(dumped, &decoded); err != nil {
		t.Fatalf("dumped file is not valid JSON: %v", err)
	}
	if decoded["cookie"] != "c2" {
		t.Fatalf("got %+v", decoded)
	}
}
