package evaluator

import (
	"path/filepath"
	"testing"

	"github.com/buildconf/server/listfile"
)

func TestReadCommandsReplaysWithoutMutatingLiveState(t *testing.T) {
	src := t.TempDir()
	build := t.TempDir()
	rootFile := filepath.Join(src, "CMakeLists.txt")
	writeFile(t, rootFile, `project(demo)
`)

	e := New()
	if err := e.Configure(src, build, "Ninja", "", nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	liveVarsBefore := len(e.vars)

	list, _, err := listfile.Parse(rootFile, []byte("set(SPECULATIVE yes)\nmessage(done)\n"), nil)
	if err != nil {
		t.Fatal(err)
	}

	// Replay both lines: the returned snapshot is entered at message(), so
	// it sees SPECULATIVE as defined by the set() line replayed before it
	// (frames capture state on entering a line, before that line's own
	// effect — the same convention runFile uses).
	newSnapshot, lastFn, err := e.ReadCommands(list, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if lastFn == nil || lastFn.Name != "message" {
		t.Fatalf("got lastFn %+v", lastFn)
	}
	if _, ok := e.vars["SPECULATIVE"]; ok {
		t.Fatal("replay must not mutate the live evaluator's variables")
	}
	if len(e.vars) != liveVarsBefore {
		t.Fatalf("live vars count changed from %d to %d", liveVarsBefore, len(e.vars))
	}

	f, ok := newSnapshot.(*frame)
	if !ok {
		t.Fatalf("expected *frame, got %T", newSnapshot)
	}
	if f.vars["SPECULATIVE"] != "yes" {
		t.Fatalf("expected replay snapshot to see SPECULATIVE=yes, got %v", f.vars)
	}
}

func TestReadCommandsHonorsIfElseWithoutMarkingNotExecuted(t *testing.T) {
	e := New()
	list, _, err := listfile.Parse("f.txt", []byte(`if(OFF)
set(A 1)
else()
set(B 2)
endif()
`), nil)
	if err != nil {
		t.Fatal(err)
	}

	snap, _, err := e.ReadCommands(list, len(list.Functions), nil)
	if err != nil {
		t.Fatal(err)
	}
	f := snap.(*frame)
	if _, ok := f.vars["A"]; ok {
		t.Fatal("expected the untaken if-branch to not set A")
	}
	if f.vars["B"] != "2" {
		t.Fatalf("expected the else-branch to set B, got %v", f.vars)
	}
	if len(e.notExecuted) != 0 {
		t.Fatalf("replay must not record not-executed ranges, got %v", e.notExecuted)
	}
}
