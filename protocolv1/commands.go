package protocolv1

import (
	"encoding/json"
	"fmt"

	"github.com/buildconf/server/evaluator"
	"github.com/buildconf/server/protocol"
)

// supportedGenerators is the capabilities list advertised by
// globalSettings and the set Activate validates a handshake's "generator"
// field against (§4.F "Activation prerequisites").
var supportedGenerators = []string{"Ninja", "Unix Makefiles"}

func validGenerator(name string) bool {
	for _, g := range supportedGenerators {
		if g == name {
			return true
		}
	}
	return false
}

// Process routes a request to its handler, enforcing the state
// preconditions in §4.F's command table.
func (p *Protocol) Process(req *protocol.Request) *protocol.Response {
	switch req.Type {
	case "globalSettings":
		return p.handleGlobalSettings(req)
	case "setGlobalSettings":
		return p.handleSetGlobalSettings(req)
	case "configure":
		return p.handleConfigure(req)
	case "compute":
		return p.handleCompute(req)
	case "codemodel":
		return p.handleCodemodel(req)
	case "cmakeInputs":
		return p.handleCmakeInputs(req)
	case "cache":
		return p.handleCache(req)
	case "fileSystemWatchers":
		return p.handleFileSystemWatchers(req)
	default:
		return respondError(req, fmt.Sprintf("Unknown type %q.", req.Type))
	}
}

func (p *Protocol) snapshotState() (sessionState, string, string, string, string, evaluator.Evaluator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.sourceDir, p.buildDir, p.generator, p.extraGenerator, p.eval
}

func (p *Protocol) handleGlobalSettings(req *protocol.Request) *protocol.Response {
	state, sourceDir, buildDir, generator, extraGenerator, _ := p.snapshotState()

	p.mu.Lock()
	flags := p.diagnostics
	p.mu.Unlock()

	resp := protocol.NewResponse(req)
	resp.SetData(map[string]any{
		"capabilities": map[string]any{
			"version": map[string]any{"major": p.version.Major, "minor": p.version.Minor},
			"generators": supportedGenerators,
		},
		"checkSystemVars":   false,
		"debugOutput":       flags.DebugOutput,
		"trace":             flags.Trace,
		"warnUninitialized": flags.WarnUninitialized,
		"warnUnused":        flags.WarnUnused,
		"sourceDirectory":   sourceDir,
		"buildDirectory":    buildDir,
		"generator":         generator,
		"extraGenerator":    extraGenerator,
		"isConfigured":      state >= stateConfigured,
		"isComputed":        state >= stateComputed,
	})
	return resp
}

// setGlobalSettingsPayload mirrors §4.F: every field is optional, but if
// present must be a bool — decoding into *bool fields is how "absent or
// bool" is enforced: an absent key stays nil and a non-bool value fails
// to decode.
type setGlobalSettingsPayload struct {
	DebugOutput       *bool `json:"debugOutput"`
	Trace             *bool `json:"trace"`
	WarnUninitialized *bool `json:"warnUninitialized"`
	WarnUnused        *bool `json:"warnUnused"`
}

func (p *Protocol) handleSetGlobalSettings(req *protocol.Request) *protocol.Response {
	var payload setGlobalSettingsPayload
	if err := req.DataAs(&payload); err != nil {
		return respondError(req, fmt.Sprintf("Invalid setGlobalSettings request: %v", err))
	}

	p.mu.Lock()
	if payload.DebugOutput != nil {
		p.diagnostics.DebugOutput = *payload.DebugOutput
	}
	if payload.Trace != nil {
		p.diagnostics.Trace = *payload.Trace
	}
	if payload.WarnUninitialized != nil {
		p.diagnostics.WarnUninitialized = *payload.WarnUninitialized
	}
	if payload.WarnUnused != nil {
		p.diagnostics.WarnUnused = *payload.WarnUnused
	}
	p.mu.Unlock()

	resp := protocol.NewResponse(req)
	resp.SetData(map[string]any{})
	return resp
}

// cacheArgumentsField accepts a single string or an array of strings, as
// §4.F's "cacheArguments (string or array-of-strings)" requires.
type cacheArgumentsField []string

func (c *cacheArgumentsField) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*c = []string{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*c = many
	return nil
}

type configurePayload struct {
	CacheArguments cacheArgumentsField `json:"cacheArguments"`
}

func (p *Protocol) handleConfigure(req *protocol.Request) *protocol.Response {
	state, sourceDir, buildDir, generator, extraGenerator, eval := p.snapshotState()
	if state < stateActive {
		return respondError(req, `Waiting for type "handshake".`)
	}
	if state == stateComputed {
		p.mu.Lock()
		dirty := p.dirty
		p.mu.Unlock()
		if !dirty {
			return respondError(req, "This build system was already computed; configure again only after a change.")
		}
	}

	var payload configurePayload
	if err := req.DataAs(&payload); err != nil {
		return respondError(req, fmt.Sprintf("Invalid configure request: %v", err))
	}

	progress := func(minimum, current, maximum int, message string) {
		req.Handle.ReportProgress(minimum, current, maximum, message)
	}
	message := func(title, msg string) {
		req.Handle.ReportMessage(title, msg)
	}

	p.mu.Lock()
	generationID, log := p.generationID, p.log
	p.mu.Unlock()

	log.Info("configuring", "generation", generationID, "sourceDirectory", sourceDir, "buildDirectory", buildDir)
	err := eval.Configure(sourceDir, buildDir, generator, extraGenerator, payload.CacheArguments, progress, message)
	if err != nil {
		log.Error("configure failed", "generation", generationID, "error", err)
		return respondError(req, fmt.Sprintf("Error configuring: %v", err))
	}

	p.mu.Lock()
	p.state = stateConfigured
	p.dirty = false
	p.mu.Unlock()

	resp := protocol.NewResponse(req)
	resp.SetData(map[string]any{})
	return resp
}

func (p *Protocol) handleCompute(req *protocol.Request) *protocol.Response {
	state, _, _, _, _, eval := p.snapshotState()
	if state < stateConfigured {
		return respondError(req, "This project was not configured yet.")
	}

	if err := eval.Compute(); err != nil {
		return respondError(req, fmt.Sprintf("Error computing: %v", err))
	}

	p.mu.Lock()
	p.state = stateComputed
	p.mu.Unlock()

	resp := protocol.NewResponse(req)
	resp.SetData(map[string]any{})
	return resp
}

func (p *Protocol) handleFileSystemWatchers(req *protocol.Request) *protocol.Response {
	state, _, _, _, _, _ := p.snapshotState()
	if state < stateActive {
		return respondError(req, `Waiting for type "handshake".`)
	}

	p.mu.Lock()
	files := append([]string(nil), p.watchFiles...)
	dirs := append([]string(nil), p.watchDirs...)
	p.mu.Unlock()

	resp := protocol.NewResponse(req)
	resp.SetData(map[string]any{
		"watchedFiles":       files,
		"watchedDirectories": dirs,
	})
	return resp
}

// SetWatchedPaths records the current watch set, flattening the three-way
// root/directory/file split the watch package tracks internally (MODULE
// ADDITIONS "fileSystemWatchers detail") down to the two wire-visible
// lists.
func (p *Protocol) SetWatchedPaths(dirs, files []string) {
	p.mu.Lock()
	p.watchDirs = append([]string(nil), dirs...)
	p.watchFiles = append([]string(nil), files...)
	p.mu.Unlock()
}
