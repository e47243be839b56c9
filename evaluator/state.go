package evaluator

import (
	"fmt"
	"sort"

	"github.com/buildconf/server/listfile"
	"github.com/buildconf/server/snapshot"
)

// State is the evaluator bridge's State surface (§4.I: state.closure-
// keys(snap), state.definition(snap, key), state.not-executed(file),
// state.writers(snap, key), state.command(name), state.trace-snapshots()).
type State struct {
	e *Eval
}

func (s *State) frameOf(snap snapshot.Snapshot) *frame {
	f, _ := snap.(*frame)
	return f
}

// ClosureKeys returns the sorted set of variable names visible at snap.
func (s *State) ClosureKeys(snap snapshot.Snapshot) []string {
	f := s.frameOf(snap)
	if f == nil {
		return nil
	}
	keys := make([]string, 0, len(f.vars))
	for k := range f.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Definition returns key's value at snap.
func (s *State) Definition(snap snapshot.Snapshot, key string) (string, bool) {
	f := s.frameOf(snap)
	if f == nil {
		return "", false
	}
	v, ok := f.vars[key]
	return v, ok
}

// NotExecuted returns file's half-open not-executed line ranges (§4.H
// step 1, §8 property 7).
func (s *State) NotExecuted(file string) []snapshot.LineRange {
	return s.e.notExecuted[file]
}

// Writers returns the positions key was set at, restricted to writes in
// the same file at or before snap's entry point.
func (s *State) Writers(snap snapshot.Snapshot, key string) []listfile.Position {
	f := s.frameOf(snap)
	all := s.e.writers[key]
	if f == nil {
		return all
	}
	var out []listfile.Position
	for _, p := range all {
		if p.File == f.file && p.Line <= f.line {
			out = append(out, p)
		}
	}
	return out
}

// knownCommands is the fixed set of built-ins this evaluator understands;
// state.command(name) reports membership, matching the original's command
// registry lookup closely enough for the core's needs (§4.I) without
// reproducing its full command metadata.
var knownCommands = map[string]struct{}{
	"if": {}, "elseif": {}, "else": {}, "endif": {},
	"set": {}, "project": {}, "add_executable": {}, "add_library": {},
	"target_link_libraries": {}, "add_subdirectory": {}, "message": {},
}

// Command looks up a built-in by name.
func (s *State) Command(name string) (CommandInfo, bool) {
	if _, ok := knownCommands[name]; !ok {
		return CommandInfo{}, false
	}
	return CommandInfo{Name: name}, true
}

// TraceSnapshots returns the build phase's (file, line) -> chain pairs.
func (s *State) TraceSnapshots() []TraceEntry {
	return s.e.TraceSnapshots()
}

// Closure satisfies snapshot.ClosureReader for ContentDiff's cross-buffer
// comparisons: the variable closure as a plain map, keyed the same way
// ClosureKeys/Definition expose it.
func (s *State) Closure(snap snapshot.Snapshot) (map[string]string, error) {
	f := s.frameOf(snap)
	if f == nil {
		return nil, fmt.Errorf("evaluator: closure: snapshot is not a frame")
	}
	return copyVars(f.vars), nil
}

// NotExecutedAdapter narrows State down to the snapshot.NotExecutedRanges
// interface the differential evaluator (package snapshot) expects.
type NotExecutedAdapter struct {
	State *State
}

func (a NotExecutedAdapter) NotExecuted(file string) []snapshot.LineRange {
	return a.State.NotExecuted(file)
}
