package session

import (
	"github.com/buildconf/server/protocol"
)

// handshakeParams is the shape of a handshake request's protocolVersion
// field (§4.E step 3).
type handshakeParams struct {
	ProtocolVersion *struct {
		Major int  `json:"major"`
		Minor *int `json:"minor"`
	} `json:"protocolVersion"`
}

// handleHandshake implements §4.E step 3: validate the requested protocol
// version, resolve it against the registry, and attempt activation.
func (s *Session) handleHandshake(req *protocol.Request) *protocol.Response {
	resp := protocol.NewResponse(req)

	if req.Type != "handshake" {
		resp.SetError(`Waiting for type "handshake".`)
		return resp
	}

	var params handshakeParams
	if err := req.DataAs(&params); err != nil || params.ProtocolVersion == nil {
		resp.SetError(`"protocolVersion" is required for "handshake".`)
		return resp
	}
	if params.ProtocolVersion.Major < 0 {
		resp.SetError(`"major" must be >= 0.`)
		return resp
	}
	minor := -1
	if params.ProtocolVersion.Minor != nil {
		minor = *params.ProtocolVersion.Minor
		if minor < 0 {
			resp.SetError(`"minor" must be >= 0 when set.`)
			return resp
		}
	}

	proto, ok := s.registry.Find(params.ProtocolVersion.Major, minor, s.experimental)
	if !ok {
		resp.SetError("Protocol version not supported.")
		return resp
	}

	if err := proto.Activate(req); err != nil {
		resp.SetError(err.Error())
		return resp
	}

	s.bound = proto
	resp.SetData(map[string]any{})
	return resp
}

// Reset unbinds the active protocol without discarding the registry. It
// only clears the handshake binding, so a fresh handshake can select a
// (possibly different) protocol version; nothing is called on the
// previously bound protocol, which keeps its own state until its next
// Activate starts it again at ACTIVE.
func (s *Session) Reset() {
	s.bound = nil
}

// IsBound reports whether a handshake has successfully selected a
// protocol for this session.
func (s *Session) IsBound() bool {
	return s.bound != nil
}
