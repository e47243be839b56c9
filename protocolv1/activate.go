package protocolv1

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/buildconf/server/evaluator"
	"github.com/buildconf/server/protocol"
)

var validate = validator.New()

// handshakePayload is the subset of a handshake request's data this
// protocol demands (§4.F "Activation prerequisites").
type handshakePayload struct {
	BuildDirectory  string `json:"buildDirectory" validate:"required"`
	SourceDirectory string `json:"sourceDirectory"`
	Generator       string `json:"generator"`
	ExtraGenerator  string `json:"extraGenerator"`
}

// Activate validates and binds this protocol to a concrete source/build
// directory and generator (§4.F). A non-nil error means the session stays
// unbound; HANDSHAKE_REJECTED (§7).
func (p *Protocol) Activate(req *protocol.Request) error {
	var payload handshakePayload
	if err := req.DataAs(&payload); err != nil {
		return fmt.Errorf("malformed handshake request: %w", err)
	}
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf(`"buildDirectory" is required`)
	}

	info, err := os.Stat(payload.BuildDirectory)
	buildExists := err == nil
	if buildExists && !info.IsDir() {
		return fmt.Errorf("%q is not a directory", payload.BuildDirectory)
	}

	sourceDir := payload.SourceDirectory
	generator := payload.Generator
	extraGenerator := payload.ExtraGenerator

	if buildExists {
		cachePath := filepath.Join(payload.BuildDirectory, "CMakeCache.txt")
		if cache, err := evaluator.LoadCache(cachePath); err == nil {
			if err := reconcileWithCache(cache, &sourceDir, &generator, &extraGenerator); err != nil {
				return err
			}
		}
	}

	if sourceDir == "" {
		return fmt.Errorf(`"sourceDirectory" is required`)
	}
	if st, err := os.Stat(sourceDir); err != nil || !st.IsDir() {
		return fmt.Errorf("%q does not exist or is not a directory", sourceDir)
	}
	if generator == "" {
		return fmt.Errorf(`"generator" is required`)
	}
	if !validGenerator(generator) {
		return fmt.Errorf("generator %q is not supported by this server", generator)
	}

	p.mu.Lock()
	p.eval = p.newEvaluator()
	p.sourceDir = sourceDir
	p.buildDir = payload.BuildDirectory
	p.generator = generator
	p.extraGenerator = extraGenerator
	p.state = stateActive
	p.dirty = false
	p.generationID = uuid.NewString()
	onActivated := p.onActivated
	p.mu.Unlock()

	if onActivated != nil {
		onActivated(sourceDir)
	}

	return nil
}

// reconcileWithCache implements §4.F's cache-consistency check: cached
// CMAKE_GENERATOR/CMAKE_EXTRA_GENERATOR/CMAKE_HOME_DIRECTORY must agree
// with the request where the request supplies them, and fill in whichever
// the request left empty.
func reconcileWithCache(cache *evaluator.Cache, sourceDir, generator, extraGenerator *string) error {
	if cache.Generator != "" {
		if *generator == "" {
			*generator = cache.Generator
		} else if *generator != cache.Generator {
			return fmt.Errorf("does not match the generator used previously: %q", cache.Generator)
		}
	}
	if cache.ExtraGenerator != "" {
		if *extraGenerator == "" {
			*extraGenerator = cache.ExtraGenerator
		} else if *extraGenerator != cache.ExtraGenerator {
			return fmt.Errorf("does not match the extra generator used previously: %q", cache.ExtraGenerator)
		}
	}
	if cache.HomeDirectory != "" {
		if *sourceDir == "" {
			*sourceDir = cache.HomeDirectory
		} else if *sourceDir != cache.HomeDirectory {
			return fmt.Errorf("does not match the source directory used previously: %q", cache.HomeDirectory)
		}
	}
	return nil
}
