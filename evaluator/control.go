package evaluator

import (
	"strings"

	"github.com/buildconf/server/listfile"
)

// ifBlock pairs an "if" command's index with its "else"/"elseif" (if any)
// and its matching "endif", by depth-counted scan. Control flow in a list-
// file is ordinary function calls, not parser structure (§4.G): the parser
// hands back a flat sequence, and the evaluator alone understands that
// if/else/endif bracket a region.
type ifBlock struct {
	elseIdx int // -1 if there is no else/elseif
	endIdx  int
}

func pairIfBlocks(fns []listfile.Function) map[int]ifBlock {
	pairs := make(map[int]ifBlock)
	var ifStack, elseStack []int

	for i, fn := range fns {
		switch strings.ToLower(fn.Name) {
		case "if":
			ifStack = append(ifStack, i)
			elseStack = append(elseStack, -1)
		case "else", "elseif":
			if n := len(elseStack); n > 0 && elseStack[n-1] == -1 {
				elseStack[n-1] = i
			}
		case "endif":
			n := len(ifStack)
			if n == 0 {
				continue
			}
			ifIdx := ifStack[n-1]
			elseIdx := elseStack[n-1]
			ifStack = ifStack[:n-1]
			elseStack = elseStack[:n-1]
			pairs[ifIdx] = ifBlock{elseIdx: elseIdx, endIdx: i}
		}
	}
	return pairs
}

// evalCondition implements a small, deliberately partial subset of CMake's
// boolean-condition grammar: a single token that is either a literal
// truthy/falsy keyword or a variable name resolved against vars. Anything
// beyond that (AND/OR/NOT, comparisons, generator expressions) is out of
// this evaluator's scope (§1: the evaluator's internals are a collaborator,
// not the core this module specifies) and is treated as true so a query
// never stops executing on conditions it cannot understand.
func evalCondition(vars map[string]string, args []listfile.Argument) bool {
	if len(args) == 0 {
		return false
	}
	if len(args) > 1 {
		return true
	}
	return truthy(vars, args[0].Value)
}

func truthy(vars map[string]string, tok string) bool {
	v := tok
	if def, ok := vars[tok]; ok {
		v = def
	}
	switch strings.ToUpper(v) {
	case "", "0", "OFF", "NO", "FALSE", "N", "IGNORE":
		return false
	}
	if strings.HasSuffix(strings.ToUpper(v), "-NOTFOUND") {
		return false
	}
	return true
}

// execSet implements the subset of set() the evaluator needs for closures
// and cache population: set(NAME value... [CACHE TYPE "help" [FORCE]]).
// cache may be nil, in which case the CACHE clause is parsed but discarded
// (used during differential replay, which must not touch the persistent
// cache).
func execSet(vars map[string]string, cache *Cache, args []listfile.Argument) {
	if len(args) == 0 {
		return
	}
	name := args[0].Value
	rest := args[1:]

	cacheAt := -1
	for i, a := range rest {
		if strings.EqualFold(a.Value, "CACHE") {
			cacheAt = i
			break
		}
	}

	valueArgs := rest
	if cacheAt >= 0 {
		valueArgs = rest[:cacheAt]
	}
	values := make([]string, 0, len(valueArgs))
	for _, a := range valueArgs {
		values = append(values, a.Value)
	}
	vars[name] = strings.Join(values, ";")

	if cacheAt < 0 || cache == nil {
		return
	}
	tail := rest[cacheAt+1:]
	var typ CacheEntryType
	var help string
	if len(tail) > 0 {
		typ = ParseCacheEntryType(tail[0].Value)
	}
	if len(tail) > 1 {
		help = tail[1].Value
	}
	cache.set(name, vars[name], typ, help)
}
