package evaluator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/buildconf/server/listfile"
	"github.com/buildconf/server/snapshot"
)

// ProgressFunc and MessageFunc are the evaluator's two callback shapes,
// installed scoped to one request (§9 "Global mutable state" ->
// "scoped acquisition") and driving the protocol's progress/message
// frames (§4.F "Progress/message plumbing").
type ProgressFunc func(minimum, current, maximum int, message string)
type MessageFunc func(title, message string)

func noopProgress(int, int, int, string) {}
func noopMessage(string, string)         {}

// TraceEntry is one (file, line) -> chain pairing the build phase yields
// (§4.H "Build phase"), pre-sorted by file then line so a caller can feed
// it straight into SnapshotIndex.Insert without re-sorting.
type TraceEntry struct {
	File  string
	Line  int
	Chain []snapshot.Snapshot
}

// Eval is the concrete Evaluator this package exposes behind the narrow
// bridge (§4.I). It understands just enough of the configuration language
// to produce a real cache, a real (if modest) codemodel, and a real
// variable closure trail — the full language (generator expressions,
// control-flow operators, the built-in command catalogue) is explicitly a
// collaborator's concern, not this module's (§1).
type Eval struct {
	sourceDir      string
	buildDir       string
	generator      string
	extraGenerator string

	cache   *Cache
	vars    map[string]string
	project *Project
	targets map[string]*Target

	trace       []TraceEntry
	notExecuted map[string][]snapshot.LineRange
	writers     map[string][]listfile.Position

	configured bool
	computed   bool
}

// New returns an Eval with no active build; Configure must be called
// before Compute or any introspection command.
func New() *Eval {
	return &Eval{
		vars:        make(map[string]string),
		targets:     make(map[string]*Target),
		notExecuted: make(map[string][]snapshot.LineRange),
		writers:     make(map[string][]listfile.Position),
	}
}

func (e *Eval) SourceDir() string { return e.sourceDir }
func (e *Eval) BuildDir() string  { return e.buildDir }
func (e *Eval) Generator() Generator {
	return Generator{e: e}
}
func (e *Eval) GeneratorName() string      { return e.generator }
func (e *Eval) ExtraGeneratorName() string { return e.extraGenerator }
func (e *Eval) Cache() *Cache              { return e.cache }
func (e *Eval) IsConfigured() bool         { return e.configured }
func (e *Eval) IsComputed() bool           { return e.computed }

// Configure runs a full evaluation of the source tree's root list file,
// per §4.F's configure contract. cacheArgs are "-DNAME:TYPE=VALUE" style
// strings layered over the loaded (or freshly created) cache.
func (e *Eval) Configure(sourceDir, buildDir, generator, extraGenerator string, cacheArgs []string, progress ProgressFunc, message MessageFunc) error {
	if progress == nil {
		progress = noopProgress
	}
	if message == nil {
		message = noopMessage
	}

	e.sourceDir = sourceDir
	e.buildDir = buildDir
	e.generator = generator
	e.extraGenerator = extraGenerator

	cachePath := filepath.Join(buildDir, "CMakeCache.txt")
	if c, err := LoadCache(cachePath); err == nil {
		e.cache = c
	} else {
		e.cache = newCache(cachePath)
	}
	e.cache.set("CMAKE_GENERATOR", generator, TypeInternal, "")
	if extraGenerator != "" {
		e.cache.set("CMAKE_EXTRA_GENERATOR", extraGenerator, TypeInternal, "")
	}
	e.cache.set("CMAKE_HOME_DIRECTORY", sourceDir, TypeInternal, "")
	applyCacheArgs(e.cache, cacheArgs)

	e.vars = make(map[string]string)
	e.targets = make(map[string]*Target)
	e.project = nil
	e.trace = nil
	e.notExecuted = make(map[string][]snapshot.LineRange)
	e.writers = make(map[string][]listfile.Position)

	progress(0, 0, 1, "Configuring")

	rootFile := filepath.Join(sourceDir, "CMakeLists.txt")
	src, err := os.ReadFile(rootFile)
	if err != nil {
		return fmt.Errorf("evaluator: configure: %w", err)
	}
	list, _, err := listfile.Parse(rootFile, src, nil)
	if err != nil {
		return fmt.Errorf("evaluator: configure: %w", err)
	}

	message("Configure", fmt.Sprintf("Reading %s", rootFile))
	if err := e.runFile(rootFile, list.Functions, nil); err != nil {
		return fmt.Errorf("evaluator: configure: %w", err)
	}

	progress(0, 1, 1, "Configured")
	e.configured = true
	e.computed = false
	return nil
}

func applyCacheArgs(c *Cache, args []string) {
	for _, a := range args {
		a = strings.TrimPrefix(a, "-D")
		eq := strings.IndexByte(a, '=')
		if eq < 0 {
			continue
		}
		keyType, value := a[:eq], a[eq+1:]
		typ := TypeUninitialized
		key := keyType
		if colon := strings.IndexByte(keyType, ':'); colon >= 0 {
			key = keyType[:colon]
			typ = ParseCacheEntryType(keyType[colon+1:])
		}
		c.set(key, value, typ, "")
	}
}

// Compute runs the generator's compute pass (§4.F). In this evaluator
// that means freezing the project tree already built by Configure; a real
// generator back-end is explicitly out of scope (§1).
func (e *Eval) Compute() error {
	if !e.configured {
		return fmt.Errorf("evaluator: compute called before configure")
	}
	e.computed = true
	return nil
}

// runFile executes one file's flat function sequence, recording a trace
// entry per command and marking untaken if/else branches not-executed.
// chainPrefix is the (possibly empty) ancestor chain ending at the frame
// that pulled this file in via add_subdirectory.
func (e *Eval) runFile(file string, fns []listfile.Function, chainPrefix []snapshot.Snapshot) error {
	pairs := pairIfBlocks(fns)

	var enclosing *frame
	if n := len(chainPrefix); n > 0 {
		enclosing, _ = chainPrefix[n-1].(*frame)
	}

	i := 0
	for i < len(fns) {
		fn := fns[i]
		f := &frame{file: file, line: fn.OpenParenLine, vars: copyVars(e.vars), parent: enclosing}
		chain := make([]snapshot.Snapshot, 0, len(chainPrefix)+1)
		chain = append(chain, chainPrefix...)
		chain = append(chain, snapshot.Snapshot(f))
		e.trace = append(e.trace, TraceEntry{File: file, Line: fn.OpenParenLine, Chain: chain})

		switch strings.ToLower(fn.Name) {
		case "if":
			blk, ok := pairs[i]
			if !ok {
				return fmt.Errorf("%s:%d: unmatched if()", file, fn.OpenParenLine)
			}
			trueEnd := blk.endIdx
			if blk.elseIdx >= 0 {
				trueEnd = blk.elseIdx
			}
			if evalCondition(e.vars, fn.Arguments) {
				if blk.elseIdx >= 0 {
					e.markNotExecuted(file, fns, blk.elseIdx+1, blk.endIdx)
				}
				i++
				continue
			}
			e.markNotExecuted(file, fns, i+1, trueEnd)
			if blk.elseIdx >= 0 {
				i = blk.elseIdx + 1
				continue
			}
			i = blk.endIdx + 1
			continue

		case "endif", "else", "elseif":
			// Control markers; always visited, no effect of their own.

		case "set":
			execSet(e.vars, e.cache, fn.Arguments)
			if len(fn.Arguments) > 0 {
				name := fn.Arguments[0].Value
				e.writers[name] = append(e.writers[name], listfile.Position{File: file, Line: fn.OpenParenLine, Column: fn.OpenParenColumn})
			}

		case "project":
			e.execProject(fn.Arguments)

		case "add_executable":
			e.execAddTarget("EXECUTABLE", fn.Arguments)

		case "add_library":
			e.execAddTarget("STATIC_LIBRARY", fn.Arguments)

		case "target_link_libraries":
			e.execTargetLinkLibraries(fn.Arguments)

		case "add_subdirectory":
			if err := e.execAddSubdirectory(fn.Arguments, chain); err != nil {
				return err
			}
		}

		i++
	}
	return nil
}

func (e *Eval) markNotExecuted(file string, fns []listfile.Function, lo, hi int) {
	if hi <= lo || lo < 0 || hi > len(fns) {
		return
	}
	e.notExecuted[file] = append(e.notExecuted[file], snapshot.LineRange{
		Lo: fns[lo].OpenParenLine,
		Hi: fns[hi].OpenParenLine,
	})
}

func (e *Eval) execProject(args []listfile.Argument) {
	if len(args) == 0 {
		return
	}
	name := args[0].Value
	if e.project == nil {
		e.project = &Project{Name: name, SourceDir: e.sourceDir, BuildDir: e.buildDir}
	} else {
		e.project.Name = name
	}
}

func (e *Eval) ensureProject() *Project {
	if e.project == nil {
		e.project = &Project{Name: "Project", SourceDir: e.sourceDir, BuildDir: e.buildDir}
	}
	return e.project
}

func (e *Eval) execAddTarget(kind string, args []listfile.Argument) {
	if len(args) == 0 {
		return
	}
	name := args[0].Value
	var sources []string
	for _, a := range args[1:] {
		v := strings.ToUpper(a.Value)
		if v == "STATIC" {
			kind = "STATIC_LIBRARY"
			continue
		}
		if v == "SHARED" {
			kind = "SHARED_LIBRARY"
			continue
		}
		sources = append(sources, a.Value)
	}

	t := &Target{
		Name:     name,
		Type:     kind,
		FullName: name,
		FileGroups: []FileGroup{{
			Language: languageForSources(sources),
			Sources:  sources,
		}},
	}
	e.targets[name] = t
	proj := e.ensureProject()
	proj.Targets = append(proj.Targets, t)
}

func languageForSources(sources []string) string {
	for _, s := range sources {
		switch filepath.Ext(s) {
		case ".cpp", ".cc", ".cxx":
			return "CXX"
		case ".c":
			return "C"
		}
	}
	return "C"
}

func (e *Eval) execTargetLinkLibraries(args []listfile.Argument) {
	if len(args) == 0 {
		return
	}
	t, ok := e.targets[args[0].Value]
	if !ok {
		return
	}
	for _, a := range args[1:] {
		switch strings.ToUpper(a.Value) {
		case "PUBLIC", "PRIVATE", "INTERFACE":
			continue
		}
		t.LinkLibraries = append(t.LinkLibraries, a.Value)
	}
}

func (e *Eval) execAddSubdirectory(args []listfile.Argument, chainPrefix []snapshot.Snapshot) error {
	if len(args) == 0 {
		return nil
	}
	subdir := filepath.Join(e.sourceDir, args[0].Value)
	subFile := filepath.Join(subdir, "CMakeLists.txt")
	src, err := os.ReadFile(subFile)
	if err != nil {
		return fmt.Errorf("%s: %w", subFile, err)
	}
	list, _, err := listfile.Parse(subFile, src, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", subFile, err)
	}
	return e.runFile(subFile, list.Functions, chainPrefix)
}

// ReadCommands implements the evaluator side of §4.H step 5: replay the
// first n commands of list against base, returning a refined snapshot and
// the last parsed function. Unlike Configure, replay only tracks variable
// definitions (the closure the query cares about) — it never mutates the
// live cache or codemodel, since it is speculative, off the back of
// possibly-invalid in-progress editor text.
func (e *Eval) ReadCommands(list *listfile.File, n int, base snapshot.Snapshot) (snapshot.Snapshot, *listfile.Function, error) {
	vars := make(map[string]string)
	var enclosing *frame
	if base != nil {
		if bf, ok := base.(*frame); ok {
			vars = copyVars(bf.vars)
			enclosing = bf
		}
	}

	pairs := pairIfBlocks(list.Functions)
	cur := enclosing
	var last *listfile.Function
	count := 0
	i := 0
	for i < len(list.Functions) && count < n {
		fn := list.Functions[i]
		f := &frame{file: list.Path, line: fn.OpenParenLine, vars: copyVars(vars), parent: enclosing}
		cur = f

		switch strings.ToLower(fn.Name) {
		case "if":
			blk, ok := pairs[i]
			if !ok {
				return cur, last, fmt.Errorf("%s:%d: unmatched if()", list.Path, fn.OpenParenLine)
			}
			last = &fn
			count++
			if evalCondition(vars, fn.Arguments) {
				i++
				continue
			}
			if blk.elseIdx >= 0 {
				i = blk.elseIdx + 1
				continue
			}
			i = blk.endIdx + 1
			continue

		case "set":
			execSet(vars, nil, fn.Arguments)
		}

		last = &fn
		count++
		i++
	}

	return cur, last, nil
}

// TraceSnapshots returns the build phase's (file, line) -> chain pairs,
// sorted by file then line so SnapshotIndex.Insert's monotonicity
// invariant (§8 property 8) is satisfied by feeding them in order.
func (e *Eval) TraceSnapshots() []TraceEntry {
	out := make([]TraceEntry, len(e.trace))
	copy(out, e.trace)
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// CMakeInputs groups every list file this build touched into the three
// buckets `cmakeInputs` reports (MODULE ADDITIONS "cmakeInputs grouping"):
// files under the build directory are generated/temporary, everything else
// traced is project-authored. This evaluator implements no include() or
// find_package() module resolution, so it never loads anything shipped
// with CMake itself — the cmakeFiles bucket is always empty, not because
// the classification is stubbed out, but because there is nothing bundled
// for a project to pull in.
func (e *Eval) CMakeInputs() (projectFiles, temporaryFiles, cmakeFiles []string) {
	seen := map[string]bool{}
	for _, entry := range e.trace {
		if seen[entry.File] {
			continue
		}
		seen[entry.File] = true
		if e.underBuildDir(entry.File) {
			temporaryFiles = append(temporaryFiles, entry.File)
			continue
		}
		projectFiles = append(projectFiles, entry.File)
	}
	if e.cache != nil && e.cache.Path != "" && !seen[e.cache.Path] {
		temporaryFiles = append(temporaryFiles, e.cache.Path)
	}
	return projectFiles, temporaryFiles, nil
}

func (e *Eval) underBuildDir(file string) bool {
	if e.buildDir == "" {
		return false
	}
	rel, err := filepath.Rel(e.buildDir, file)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// State returns the evaluator's State-interface view of itself (§4.I).
func (e *Eval) State() *State {
	return &State{e: e}
}
