package evaluator

import (
	"path/filepath"
	"testing"
)

func TestStateClosureAndDefinition(t *testing.T) {
	src := t.TempDir()
	build := t.TempDir()
	writeFile(t, filepath.Join(src, "CMakeLists.txt"), `project(demo)
set(GREETING hello)
set(FAREWELL bye)
`)

	e := New()
	if err := e.Configure(src, build, "Ninja", "", nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	// A frame holds the variables as they were on entry to its line, so the
	// last frame (line 3) is the first one that sees GREETING.
	entries := e.TraceSnapshots()
	var last *TraceEntry
	for i := range entries {
		if entries[i].File == filepath.Join(src, "CMakeLists.txt") {
			last = &entries[i]
		}
	}
	if last == nil {
		t.Fatal("expected a trace entry for the root file")
	}
	snap := last.Chain[len(last.Chain)-1]

	keys := e.State().ClosureKeys(snap)
	found := false
	for _, k := range keys {
		if k == "GREETING" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected GREETING among closure keys %v", keys)
	}

	if v, ok := e.State().Definition(snap, "GREETING"); !ok || v != "hello" {
		t.Fatalf("expected GREETING defined as hello, got %q (ok=%v)", v, ok)
	}
}

func TestStateWritersFiltersByPosition(t *testing.T) {
	src := t.TempDir()
	build := t.TempDir()
	writeFile(t, filepath.Join(src, "CMakeLists.txt"), `project(demo)
set(X 1)
set(X 2)
`)

	e := New()
	if err := e.Configure(src, build, "Ninja", "", nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	rootFile := filepath.Join(src, "CMakeLists.txt")
	snapAtLine2 := &frame{file: rootFile, line: 2}
	writers := e.State().Writers(snapAtLine2, "X")
	if len(writers) != 1 || writers[0].Line != 2 {
		t.Fatalf("expected a single writer at line 2, got %v", writers)
	}

	snapAtLine3 := &frame{file: rootFile, line: 3}
	writers = e.State().Writers(snapAtLine3, "X")
	if len(writers) != 2 {
		t.Fatalf("expected both writers visible at line 3, got %v", writers)
	}
}

func TestStateCommandLooksUpKnownBuiltins(t *testing.T) {
	s := New().State()
	if _, ok := s.Command("set"); !ok {
		t.Fatal("expected set to be a known command")
	}
	if _, ok := s.Command("not_a_real_command"); ok {
		t.Fatal("expected an unknown command to report false")
	}
}

func TestStateClosureSatisfiesClosureReader(t *testing.T) {
	f := &frame{file: "f.txt", line: 1, vars: map[string]string{"A": "1"}}
	s := New().State()
	closure, err := s.Closure(f)
	if err != nil {
		t.Fatal(err)
	}
	if closure["A"] != "1" {
		t.Fatalf("got %v", closure)
	}
}
