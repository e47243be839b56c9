package snapshot

import (
	"bytes"
	"fmt"
	"strings"

	diff "github.com/sourcegraph/go-diff/diff"
)

// ChunkKind classifies a Chunk as common, added, or removed (GLOSSARY).
type ChunkKind int

const (
	ChunkCommon ChunkKind = iota
	ChunkAdded
	ChunkRemoved
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkCommon:
		return "common"
	case ChunkAdded:
		return "added"
	case ChunkRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Chunk is a contiguous run of one kind in a diff, anchored at its
// original-file and new-file starting lines (GLOSSARY: "Chunk"). Lines are
// 1-based. OrigLines is 0 for a pure-addition chunk; NewLines is 0 for a
// pure-removal chunk.
type Chunk struct {
	Kind      ChunkKind
	OrigStart int
	OrigLines int
	NewStart  int
	NewLines  int
}

// DifferentialFileContent is an edited buffer (NewLines) represented
// against the version the evaluator indexed (OrigLines), plus the chunk
// diff between them (GLOSSARY: "DifferentialFileContent").
type DifferentialFileContent struct {
	OrigLines []string
	NewLines  []string
	Chunks    []Chunk
}

// ComputeDiff builds a DifferentialFileContent for origLines (the version
// the evaluator last saw) against newLines (the current editor buffer).
//
// go-diff's surface is a unified-diff parser/printer, not a from-scratch
// text differencer, so the edit script itself is computed here with a
// standard LCS backtrace; that script is rendered as a single full-context
// unified-diff hunk and handed to diff.ParseHunks so the anchor bookkeeping
// (orig/new start lines and lengths) comes from go-diff rather than being
// re-derived by hand.
func ComputeDiff(origLines, newLines []string) (*DifferentialFileContent, error) {
	body := renderUnifiedHunk(origLines, newLines)

	hunks, err := diff.ParseHunks(body)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parsing generated diff: %w", err)
	}

	d := &DifferentialFileContent{OrigLines: origLines, NewLines: newLines}
	for _, h := range hunks {
		d.Chunks = append(d.Chunks, chunksFromHunk(h)...)
	}
	return d, nil
}

func chunksFromHunk(h *diff.Hunk) []Chunk {
	var chunks []Chunk
	origLine := int(h.OrigStartLine)
	newLine := int(h.NewStartLine)

	var cur *Chunk
	flush := func() {
		if cur != nil {
			chunks = append(chunks, *cur)
			cur = nil
		}
	}

	for _, line := range strings.Split(strings.TrimSuffix(string(h.Body), "\n"), "\n") {
		if line == "" {
			continue
		}
		var kind ChunkKind
		switch line[0] {
		case ' ':
			kind = ChunkCommon
		case '+':
			kind = ChunkAdded
		case '-':
			kind = ChunkRemoved
		default:
			continue
		}

		if cur == nil || cur.Kind != kind {
			flush()
			cur = &Chunk{Kind: kind, OrigStart: origLine, NewStart: newLine}
		}
		switch kind {
		case ChunkCommon:
			cur.OrigLines++
			cur.NewLines++
			origLine++
			newLine++
		case ChunkAdded:
			cur.NewLines++
			newLine++
		case ChunkRemoved:
			cur.OrigLines++
			origLine++
		}
	}
	flush()
	return chunks
}

// renderUnifiedHunk renders a single full-context unified-diff hunk body
// (no surrounding file headers) covering the whole of origLines/newLines,
// using the longest-common-subsequence backtrace to decide which lines are
// common, added, or removed.
func renderUnifiedHunk(origLines, newLines []string) []byte {
	script := lcsEditScript(origLines, newLines)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "@@ -1,%d +1,%d @@\n", len(origLines), len(newLines))
	for _, op := range script {
		switch op.kind {
		case ChunkCommon:
			buf.WriteString(" ")
			buf.WriteString(origLines[op.origIdx])
		case ChunkRemoved:
			buf.WriteString("-")
			buf.WriteString(origLines[op.origIdx])
		case ChunkAdded:
			buf.WriteString("+")
			buf.WriteString(newLines[op.newIdx])
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

type editOp struct {
	kind    ChunkKind
	origIdx int
	newIdx  int
}

// lcsEditScript computes a minimal common/added/removed line script via
// the textbook O(n*m) longest-common-subsequence dynamic program. List
// files are small enough that this is not a bottleneck.
func lcsEditScript(a, b []string) []editOp {
	n, m := len(a), len(b)
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				table[i][j] = table[i+1][j+1] + 1
			} else if table[i+1][j] >= table[i][j+1] {
				table[i][j] = table[i+1][j]
			} else {
				table[i][j] = table[i][j+1]
			}
		}
	}

	var ops []editOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, editOp{kind: ChunkCommon, origIdx: i, newIdx: j})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			ops = append(ops, editOp{kind: ChunkRemoved, origIdx: i})
			i++
		default:
			ops = append(ops, editOp{kind: ChunkAdded, newIdx: j})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, editOp{kind: ChunkRemoved, origIdx: i})
	}
	for ; j < m; j++ {
		ops = append(ops, editOp{kind: ChunkAdded, newIdx: j})
	}
	return ops
}

// ChunkContainingNew scans Chunks in order for the chunk spanning newLine.
func (d *DifferentialFileContent) ChunkContainingNew(newLine int) (Chunk, int, bool) {
	for i, c := range d.Chunks {
		if c.NewLines == 0 {
			continue
		}
		if newLine >= c.NewStart && newLine < c.NewStart+c.NewLines {
			return c, i, true
		}
	}
	return Chunk{}, -1, false
}

// ChunkContainingOrig scans Chunks in order for the chunk spanning origLine.
func (d *DifferentialFileContent) ChunkContainingOrig(origLine int) (Chunk, int, bool) {
	for i, c := range d.Chunks {
		if c.OrigLines == 0 {
			continue
		}
		if origLine >= c.OrigStart && origLine < c.OrigStart+c.OrigLines {
			return c, i, true
		}
	}
	return Chunk{}, -1, false
}

// MapNewToSearchLine implements §4.H step 2: map a target line in the
// edited buffer back to a search line in the original file, walking to the
// previous common chunk's end when the target line itself was touched.
func (d *DifferentialFileContent) MapNewToSearchLine(targetLine int) (int, bool) {
	c, idx, ok := d.ChunkContainingNew(targetLine)
	if !ok {
		return 0, false
	}
	if c.Kind == ChunkCommon {
		return c.OrigStart + (targetLine - c.NewStart), true
	}
	for j := idx - 1; j >= 0; j-- {
		if d.Chunks[j].Kind == ChunkCommon {
			return d.Chunks[j].OrigStart + d.Chunks[j].OrigLines - 1, true
		}
	}
	return 0, false
}

// MapOrigToNew implements §4.H step 4: map a starting line in the original
// file back to the edited buffer. It refuses (returns false) when that
// line falls inside a non-common chunk, per the spec's sentinel policy.
func (d *DifferentialFileContent) MapOrigToNew(origLine int) (int, bool) {
	c, _, ok := d.ChunkContainingOrig(origLine)
	if !ok || c.Kind != ChunkCommon {
		return 0, false
	}
	return c.NewStart + (origLine - c.OrigStart), true
}
