package protocol

import "encoding/json"

// ProgressFrame is a server-initiated progress update tied to an in-flight
// request (§6.1). Invariant: Minimum <= Current <= Maximum, Message
// non-empty.
type ProgressFrame struct {
	Type             string `json:"type"`
	InReplyTo        string `json:"inReplyTo"`
	Cookie           string `json:"cookie"`
	ProgressMessage  string `json:"progressMessage"`
	ProgressMinimum  int    `json:"progressMinimum"`
	ProgressCurrent  int    `json:"progressCurrent"`
	ProgressMaximum  int    `json:"progressMaximum"`
}

// MessageFrame is a server-initiated diagnostic message tied to an
// in-flight request.
type MessageFrame struct {
	Type      string `json:"type"`
	InReplyTo string `json:"inReplyTo"`
	Cookie    string `json:"cookie"`
	Message   string `json:"message"`
	Title     string `json:"title,omitempty"`
}

// SignalFrame is an unsolicited server push with no cookie and no
// inReplyTo (§6.1, GLOSSARY "Signal"). Payload is protocol-defined.
type SignalFrame struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// HelloFrame enumerates the protocols the session will discover during
// handshake (§4.D, §6.1).
type HelloFrame struct {
	Type                      string               `json:"type"`
	SupportedProtocolVersions []SupportedProtocol `json:"supportedProtocolVersions"`
}

// SupportedProtocol is one entry of HelloFrame's version list.
type SupportedProtocol struct {
	Major         int  `json:"major"`
	Minor         int  `json:"minor"`
	Experimental  bool `json:"experimental,omitempty"`
}

// MustMarshal panics on marshal failure; used only for the fixed envelope
// shapes above, which never contain user-controlled types that could fail
// to serialize.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
