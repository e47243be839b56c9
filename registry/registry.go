// Package registry holds the ordered set of protocol variants a session
// can negotiate during handshake, and the matching rule used to resolve a
// client's requested (major, minor) pair to one of them (§3, §4.D).
package registry

import (
	"sync"

	"github.com/buildconf/server/protocol"
)

// Protocol is the capability set every protocol version implements (§9
// Polymorphism: version, experimental?, activate, process).
type Protocol interface {
	// Version returns the (major, minor) this implementation advertises.
	Version() Version

	// Experimental reports whether this protocol is hidden from discovery
	// and selection unless the server was started in experimental mode.
	Experimental() bool

	// Activate validates handshake prerequisites and binds the protocol
	// to a concrete build/source directory and generator. A non-nil
	// error means the binding must be discarded (§4.F).
	Activate(req *protocol.Request) error

	// Process handles a request once this protocol is bound to the
	// session, enforcing its own state machine (§4.F).
	Process(req *protocol.Request) *protocol.Response
}

// Version identifies a protocol by its major/minor pair.
type Version struct {
	Major int
	Minor int
}

// Registry is an ordered, idempotent set of registered protocols.
type Registry struct {
	mu    sync.RWMutex
	order []Protocol
	seen  map[Version]bool
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{seen: make(map[Version]bool)}
}

// Register adds p to the registry. Registering the same (major, minor)
// twice is a no-op (§4.D).
func (r *Registry) Register(p Protocol) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := p.Version()
	if r.seen[v] {
		return
	}
	r.seen[v] = true
	r.order = append(r.order, p)
}

// Find implements the matching rule in §3: an exact (major, minor) match
// if one exists; otherwise, when minor is negative, the highest-minor
// protocol registered under major; otherwise no match.
//
// Experimental protocols are excluded unless includeExperimental is true.
func (r *Registry) Find(major, minor int, includeExperimental bool) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visible := func(p Protocol) bool {
		return includeExperimental || !p.Experimental()
	}

	if minor >= 0 {
		for _, p := range r.order {
			v := p.Version()
			if v.Major == major && v.Minor == minor && visible(p) {
				return p, true
			}
		}
		return nil, false
	}

	var best Protocol
	for _, p := range r.order {
		v := p.Version()
		if v.Major != major || !visible(p) {
			continue
		}
		if best == nil || v.Minor > best.Version().Minor {
			best = p
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Discoverable returns every registered protocol's version, excluding
// experimental ones unless includeExperimental is true — the set the
// "hello" greeting enumerates (§4.D).
func (r *Registry) Discoverable(includeExperimental bool) []protocol.SupportedProtocol {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.SupportedProtocol, 0, len(r.order))
	for _, p := range r.order {
		if !includeExperimental && p.Experimental() {
			continue
		}
		v := p.Version()
		out = append(out, protocol.SupportedProtocol{
			Major:        v.Major,
			Minor:        v.Minor,
			Experimental: p.Experimental(),
		})
	}
	return out
}
