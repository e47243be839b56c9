package evaluator

import (
	"testing"

	"github.com/buildconf/server/listfile"
)

func arg(v string) listfile.Argument { return listfile.Argument{Value: v} }

func TestPairIfBlocksMatchesNestedBlocks(t *testing.T) {
	fns := []listfile.Function{
		{Name: "if"},
		{Name: "if"},
		{Name: "else"},
		{Name: "endif"},
		{Name: "endif"},
	}
	pairs := pairIfBlocks(fns)

	outer, ok := pairs[0]
	if !ok || outer.endIdx != 4 || outer.elseIdx != -1 {
		t.Fatalf("got outer %+v ok=%v", outer, ok)
	}
	inner, ok := pairs[1]
	if !ok || inner.endIdx != 3 || inner.elseIdx != 2 {
		t.Fatalf("got inner %+v ok=%v", inner, ok)
	}
}

func TestTruthyRecognizesFalsyLiteralsAndVariables(t *testing.T) {
	vars := map[string]string{"UNSET_VAR": "OFF", "NOTFOUND_VAR": "SOME-NOTFOUND"}

	cases := map[string]bool{
		"ON":           true,
		"OFF":          false,
		"0":            false,
		"1":            true,
		"":             false,
		"UNSET_VAR":    false,
		"NOTFOUND_VAR": false,
		"RANDOM_TOKEN": true,
	}
	for tok, want := range cases {
		if got := truthy(vars, tok); got != want {
			t.Errorf("truthy(%q) = %v, want %v", tok, got, want)
		}
	}
}

func TestEvalConditionSingleToken(t *testing.T) {
	vars := map[string]string{}
	if evalCondition(vars, nil) {
		t.Fatal("expected false for no arguments")
	}
	if !evalCondition(vars, []listfile.Argument{arg("A"), arg("B")}) {
		t.Fatal("expected multi-token conditions to default true")
	}
	if evalCondition(vars, []listfile.Argument{arg("OFF")}) {
		t.Fatal("expected OFF to be falsy")
	}
}

func TestExecSetWithCacheClause(t *testing.T) {
	vars := map[string]string{}
	cache := newCache("CMakeCache.txt")
	execSet(vars, cache, []listfile.Argument{arg("OPT"), arg("1"), arg("CACHE"), arg("BOOL"), arg("an option")})

	if vars["OPT"] != "1" {
		t.Fatalf("got vars[OPT] = %q", vars["OPT"])
	}
	entry, ok := cache.Entries["OPT"]
	if !ok || entry.Type != TypeBool || entry.Properties["HELPSTRING"] != "an option" {
		t.Fatalf("got %+v, ok=%v", entry, ok)
	}
}

func TestExecSetWithNilCacheSkipsCacheClause(t *testing.T) {
	vars := map[string]string{}
	execSet(vars, nil, []listfile.Argument{arg("OPT"), arg("1"), arg("CACHE"), arg("BOOL"), arg("help")})
	if vars["OPT"] != "1" {
		t.Fatalf("got vars[OPT] = %q", vars["OPT"])
	}
}
