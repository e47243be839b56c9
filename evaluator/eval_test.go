package evaluator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/buildconf/server/snapshot"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigureBuildsProjectAndTargets(t *testing.T) {
	src := t.TempDir()
	build := t.TempDir()
	writeFile(t, filepath.Join(src, "CMakeLists.txt"), `project(demo)
add_executable(app main.c)
target_link_libraries(app PRIVATE m)
`)

	e := New()
	if err := e.Configure(src, build, "Ninja", "", nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !e.IsConfigured() {
		t.Fatal("expected configured to be true")
	}

	projects := e.Generator().ProjectMap()
	if len(projects) != 1 || projects[0].Name != "demo" {
		t.Fatalf("got projects %+v", projects)
	}

	target, ok := e.Generator().FindTarget("app")
	if !ok {
		t.Fatal("expected target app")
	}
	if len(target.LinkLibraries) != 1 || target.LinkLibraries[0] != "m" {
		t.Fatalf("got link libraries %v", target.LinkLibraries)
	}
}

func TestComputeFailsBeforeConfigure(t *testing.T) {
	e := New()
	if err := e.Compute(); err == nil {
		t.Fatal("expected error computing before configure")
	}
}

func TestIfElseMarksUntakenBranchNotExecuted(t *testing.T) {
	src := t.TempDir()
	build := t.TempDir()
	writeFile(t, filepath.Join(src, "CMakeLists.txt"), `project(demo)
set(FEATURE OFF)
if(FEATURE)
set(A 1)
else()
set(B 2)
endif()
`)

	e := New()
	if err := e.Configure(src, build, "Ninja", "", nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	rootFile := filepath.Join(src, "CMakeLists.txt")
	ranges := e.State().NotExecuted(rootFile)
	if len(ranges) != 1 {
		t.Fatalf("expected one not-executed range, got %v", ranges)
	}
	// line 4 (set(A 1)) should be not-executed since FEATURE is falsy.
	contains := func(r snapshot.LineRange, line int) bool { return line >= r.Lo && line < r.Hi }
	if !contains(ranges[0], 4) {
		t.Fatalf("expected range %v to contain line 4", ranges[0])
	}
	if contains(ranges[0], 6) {
		t.Fatalf("expected range %v to not contain line 6 (the else branch)", ranges[0])
	}
}

func TestCacheArgsOverrideLoadedCache(t *testing.T) {
	src := t.TempDir()
	build := t.TempDir()
	writeFile(t, filepath.Join(src, "CMakeLists.txt"), `project(demo)
`)
	writeFile(t, filepath.Join(build, "CMakeCache.txt"), `// existing
EXISTING:STRING=old
`)

	e := New()
	err := e.Configure(src, build, "Ninja", "", []string{"-DEXISTING:STRING=new", "-DFRESH:BOOL=ON"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if v, _ := e.Cache().Get("EXISTING"); v != "new" {
		t.Fatalf("expected override to win, got %q", v)
	}
	if v, _ := e.Cache().Get("FRESH"); v != "ON" {
		t.Fatalf("expected FRESH=ON, got %q", v)
	}
}

func TestAddSubdirectoryChainsParentSnapshot(t *testing.T) {
	src := t.TempDir()
	build := t.TempDir()
	writeFile(t, filepath.Join(src, "CMakeLists.txt"), `project(demo)
add_subdirectory(sub)
`)
	writeFile(t, filepath.Join(src, "sub", "CMakeLists.txt"), `add_library(util util.c)
`)

	e := New()
	if err := e.Configure(src, build, "Ninja", "", nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	if _, ok := e.Generator().FindTarget("util"); !ok {
		t.Fatal("expected target util from subdirectory")
	}

	var foundChain bool
	for _, entry := range e.TraceSnapshots() {
		if filepath.Base(entry.File) == "CMakeLists.txt" && len(entry.Chain) > 1 {
			foundChain = true
		}
	}
	if !foundChain {
		t.Fatal("expected at least one trace entry chained through the parent directory")
	}
}
