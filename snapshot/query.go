package snapshot

import (
	"fmt"

	"github.com/buildconf/server/listfile"
)

// LineRange is a half-open [Lo, Hi) interval of lines, used for the
// evaluator's not-executed ranges (GLOSSARY: "Not-executed range").
type LineRange struct {
	Lo, Hi int
}

func (r LineRange) contains(line int) bool { return line >= r.Lo && line < r.Hi }

// NotExecutedRanges is queried for step 1 of §4.H: does target-line fall in
// a range the full evaluation never reached.
type NotExecutedRanges interface {
	NotExecuted(file string) []LineRange
}

// Replayer is the narrow slice of the evaluator bridge (§4.I) the
// differential evaluator drives: parse+replay a window of list-file source
// against a base snapshot.
type Replayer interface {
	ReadCommands(list *listfile.File, n int, base Snapshot) (newSnapshot Snapshot, lastFunction *listfile.Function, err error)
}

// Result is the outcome of a Query call.
type Result struct {
	// Unexecuted is true when target-line was never reached by the full
	// evaluation, or when replay could not be anchored (§4.H "Failure
	// semantics": these collapse to the same neutral content_result).
	Unexecuted bool
	// NoCompletion is set instead of Unexecuted when completionMode is
	// true, matching the distinct sentinel the spec calls for.
	NoCompletion bool

	Snapshot     Snapshot
	LastFunction *listfile.Function
}

func neutral(completionMode bool) Result {
	if completionMode {
		return Result{NoCompletion: true}
	}
	return Result{Unexecuted: true}
}

// Query answers "what is in scope at target-line of file" by bisecting the
// indexed snapshot trail and replaying only the lines between the nearest
// indexed entry point and target-line (§4.H). It never returns an error for
// malformed/stale editor content; per "Failure semantics" the only
// reported errors are the protocol-level ones the caller already checked
// (missing fields, negative line numbers).
func Query(idx *SnapshotIndex, nx NotExecutedRanges, replayer Replayer, file string, targetLine int, diff *DifferentialFileContent, completionMode bool) Result {
	for _, r := range nx.NotExecuted(file) {
		if r.contains(targetLine) {
			return neutral(completionMode)
		}
	}

	searchLine, ok := diff.MapNewToSearchLine(targetLine)
	if !ok {
		return neutral(completionMode)
	}

	base, startingLine, ok := idx.ResolveContext(file, searchLine)
	if !ok {
		return neutral(completionMode)
	}

	replayStart, ok := diff.MapOrigToNew(startingLine)
	if !ok {
		return neutral(completionMode)
	}

	lo, hi := replayStart, targetLine
	if !completionMode {
		hi--
	}
	if hi < lo-1 || lo < 1 || hi > len(diff.NewLines) {
		return neutral(completionMode)
	}

	n := hi - lo + 1
	if n <= 0 {
		return Result{Snapshot: base}
	}

	window := make([]byte, 0)
	for _, line := range diff.NewLines[lo-1 : hi] {
		window = append(window, line...)
		window = append(window, '\n')
	}

	parsed, _, err := listfile.Parse(file, window, nil)
	if err != nil {
		return neutral(completionMode)
	}

	newSnapshot, lastFn, err := replayer.ReadCommands(parsed, n, base)
	if err != nil {
		return neutral(completionMode)
	}

	return Result{Snapshot: newSnapshot, LastFunction: lastFn}
}

// ClosureDiff is the per-key result of a cross-buffer comparison (§4.H:
// "for cross-buffer diffs, ... computes symmetric-difference of the two
// closure maps").
type ClosureDiff struct {
	Added   map[string]string
	Removed map[string]string
}

// ClosureReader reads a snapshot's variable closure through the evaluator
// bridge's State surface (§4.I); callers in package evaluator satisfy
// this directly, kept here as a narrow dependency so ContentDiff stays
// evaluator-agnostic.
type ClosureReader interface {
	Closure(s Snapshot) (map[string]string, error)
}

// ContentDiff implements the contentDiff half of §4.H's "cross-buffer
// diffs" note: run Query independently for fileA and fileB, then return the
// symmetric difference of their resulting closures.
func ContentDiff(idx *SnapshotIndex, nx NotExecutedRanges, replayer Replayer, reader ClosureReader,
	fileA string, lineA int, diffA *DifferentialFileContent,
	fileB string, lineB int, diffB *DifferentialFileContent) (*ClosureDiff, error) {

	resA := Query(idx, nx, replayer, fileA, lineA, diffA, false)
	resB := Query(idx, nx, replayer, fileB, lineB, diffB, false)
	if resA.Unexecuted || resB.Unexecuted {
		return &ClosureDiff{Added: map[string]string{}, Removed: map[string]string{}}, nil
	}

	closureA, err := reader.Closure(resA.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading closure A: %w", err)
	}
	closureB, err := reader.Closure(resB.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading closure B: %w", err)
	}

	out := &ClosureDiff{Added: map[string]string{}, Removed: map[string]string{}}
	for k, v := range closureB {
		if old, ok := closureA[k]; !ok || old != v {
			out.Added[k] = v
		}
	}
	for k, v := range closureA {
		if _, ok := closureB[k]; !ok {
			out.Removed[k] = v
		}
	}
	return out, nil
}
