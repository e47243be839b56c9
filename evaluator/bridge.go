package evaluator

import (
	"github.com/buildconf/server/snapshot"
)

// Evaluator is the narrow bridge the core depends on (§4.I): configure and
// compute a build tree, read back its generator/codemodel/cache surface,
// and replay a list file's leading commands against a base snapshot for
// the differential query path (package snapshot). protocolv1 talks to
// this interface, never to *Eval directly, so the collaborator stays
// swappable per §1.
type Evaluator interface {
	SourceDir() string
	BuildDir() string
	GeneratorName() string
	ExtraGeneratorName() string
	IsConfigured() bool
	IsComputed() bool

	Configure(sourceDir, buildDir, generator, extraGenerator string, cacheArgs []string, progress ProgressFunc, message MessageFunc) error
	Compute() error

	Cache() *Cache
	Generator() Generator
	State() *State
	CMakeInputs() (projectFiles, temporaryFiles, cmakeFiles []string)

	snapshot.Replayer
}

var _ Evaluator = (*Eval)(nil)
var _ snapshot.Replayer = (*Eval)(nil)
var _ snapshot.ClosureReader = (*State)(nil)
