package evaluator

import (
	"path/filepath"
	"testing"
)

func TestGeneratorProjectMapEmptyBeforeProject(t *testing.T) {
	e := New()
	if projects := e.Generator().ProjectMap(); projects != nil {
		t.Fatalf("expected nil project map, got %v", projects)
	}
}

func TestGeneratorFindTargetAcrossSubdirectories(t *testing.T) {
	src := t.TempDir()
	build := t.TempDir()
	writeFile(t, filepath.Join(src, "CMakeLists.txt"), `project(demo)
add_subdirectory(lib)
`)
	writeFile(t, filepath.Join(src, "lib", "CMakeLists.txt"), `add_library(core core.cpp)
`)

	e := New()
	if err := e.Configure(src, build, "Ninja", "", nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	target, ok := e.Generator().FindTarget("core")
	if !ok {
		t.Fatal("expected to find target core")
	}
	if target.FileGroups[0].Language != "CXX" {
		t.Fatalf("expected CXX language from .cpp source, got %q", target.FileGroups[0].Language)
	}
}
