package evaluator

import "github.com/buildconf/server/snapshot"

// frame is this evaluator's concrete snapshot.Snapshot: an immutable copy
// of the variable closure as it stood when execution reached (file, line),
// plus a non-owning link to the enclosing frame (§3 "chain of parent
// entry points").
type frame struct {
	file   string
	line   int
	vars   map[string]string
	parent *frame
}

func (f *frame) EntryPoint() (string, int) { return f.file, f.line }

func (f *frame) Parent() (snapshot.Snapshot, bool) {
	if f.parent == nil {
		return nil, false
	}
	return f.parent, true
}

func copyVars(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
