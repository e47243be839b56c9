// Package protocolv1 implements the server's (1,0) and experimental (1,1)
// protocol versions: handshake activation, the command dispatch table, and
// the codemodel/cmakeInputs/cache reply shapes (§4.F). It talks to the
// evaluator only through evaluator.Evaluator, never the concrete *Eval, so
// the collaborator stays swappable (§1, §4.I).
package protocolv1

import (
	"log/slog"
	"sync"

	"github.com/buildconf/server/evaluator"
	"github.com/buildconf/server/protocol"
	"github.com/buildconf/server/registry"
)

// sessionState is the FSM named in §3: ACTIVE -> CONFIGURED -> COMPUTED,
// moving forward only. INACTIVE is the unbound session and has no value
// here; each Activate starts the protocol again at ACTIVE.
type sessionState int

const (
	stateActive sessionState = iota
	stateConfigured
	stateComputed
)

// NewEvaluatorFunc constructs a fresh evaluator.Evaluator for a session
// that just activated. Passed to New1_0/New1_1 rather than hardcoded so
// tests can substitute a fake; nil selects evaluator.New.
type NewEvaluatorFunc func() evaluator.Evaluator

// Protocol is one registered (major, minor) instance, bound to at most one
// session's activation state at a time (§9 Polymorphism: version,
// experimental?, activate, process).
type Protocol struct {
	version      registry.Version
	experimental bool
	newEvaluator NewEvaluatorFunc

	log *slog.Logger

	mu    sync.Mutex
	state sessionState
	eval  evaluator.Evaluator

	sourceDir      string
	buildDir       string
	generator      string
	extraGenerator string

	// generationID identifies one activation; it has no wire contract of
	// its own but is attached to the configure log lines so log lines from
	// concurrent sessions in a shared log stream can be
	// told apart (the client "cookie" serves the analogous purpose for
	// request/reply correlation but is absent from unsolicited frames).
	generationID string

	diagnostics globalSettingsFlags

	signalSink  SignalSink
	dirty       bool
	watchFiles  []string
	watchDirs   []string
	onActivated func(sourceDir string)
}

// SignalSink is where unsolicited signal frames (§6.1, §9 Polymorphism) are
// written; session.Sink satisfies this. Unlike protocol.Handle, which is
// scoped to one in-flight request, a signal carries no cookie and no
// inReplyTo, so it is wired in once at startup rather than per request.
type SignalSink interface {
	Send(payload []byte)
}

// SetSignalSink installs the sink unsolicited "dirty" signals are written
// to. Called once by cmd/confserver when wiring the protocol to the live
// session/transport.
func (p *Protocol) SetSignalSink(sink SignalSink) {
	p.mu.Lock()
	p.signalSink = sink
	p.mu.Unlock()
}

// SetOnActivated installs a callback run once Activate has bound a
// sourceDirectory, so cmd/confserver can point the file-change notifier
// (§4.J) at the new source tree without this package depending on the
// watch package directly.
func (p *Protocol) SetOnActivated(fn func(sourceDir string)) {
	p.mu.Lock()
	p.onActivated = fn
	p.mu.Unlock()
}

// New1_0 returns the non-experimental (1,0) protocol (SPEC_FULL Open
// Question Decision 1).
func New1_0(newEvaluator NewEvaluatorFunc) *Protocol {
	return newProtocol(registry.Version{Major: 1, Minor: 0}, false, newEvaluator)
}

// New1_1 returns the experimental (1,1) protocol, kept only to exercise the
// minor-auto-select and experimental-hiding rules (§3, §4.D).
func New1_1(newEvaluator NewEvaluatorFunc) *Protocol {
	return newProtocol(registry.Version{Major: 1, Minor: 1}, true, newEvaluator)
}

func newProtocol(v registry.Version, experimental bool, newEvaluator NewEvaluatorFunc) *Protocol {
	if newEvaluator == nil {
		newEvaluator = func() evaluator.Evaluator { return evaluator.New() }
	}
	return &Protocol{version: v, experimental: experimental, newEvaluator: newEvaluator, log: slog.Default()}
}

// SetLogger overrides the default slog.Default() logger, matching the
// pattern session.New uses for its own logger override.
func (p *Protocol) SetLogger(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	p.mu.Lock()
	p.log = log
	p.mu.Unlock()
}

func (p *Protocol) Version() registry.Version { return p.version }
func (p *Protocol) Experimental() bool         { return p.experimental }

var _ registry.Protocol = (*Protocol)(nil)

// globalSettingsFlags are the subset of booleans setGlobalSettings may
// change and globalSettings reports back (§4.F).
type globalSettingsFlags struct {
	DebugOutput       bool `json:"debugOutput"`
	Trace             bool `json:"trace"`
	WarnUninitialized bool `json:"warnUninitialized"`
	WarnUnused        bool `json:"warnUnused"`
}

// NotifyFileChanged implements the watch package's callback contract
// (§4.J): mark the session dirty and, on the first such event after a
// clean transition, push the "dirty" signal frame (§4.F "Dirty tracking").
// A protocol that has never been activated ignores the event.
func (p *Protocol) NotifyFileChanged(path string) {
	p.mu.Lock()
	if p.eval == nil {
		p.mu.Unlock()
		return
	}
	alreadyDirty := p.dirty
	p.dirty = true
	sink := p.signalSink
	p.mu.Unlock()

	if alreadyDirty || sink == nil {
		return
	}
	sink.Send(protocol.MustMarshal(protocol.SignalFrame{Type: "signal", Name: "dirty"}))
}

func respondError(req *protocol.Request, message string) *protocol.Response {
	resp := protocol.NewResponse(req)
	resp.SetError(message)
	return resp
}
