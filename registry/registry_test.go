package registry

import (
	"testing"

	"github.com/buildconf/server/protocol"
)

type stubProtocol struct {
	version      Version
	experimental bool
}

func (s stubProtocol) Version() Version    { return s.version }
func (s stubProtocol) Experimental() bool  { return s.experimental }
func (s stubProtocol) Activate(*protocol.Request) error { return nil }
func (s stubProtocol) Process(*protocol.Request) *protocol.Response { return nil }

func TestFindExactMatch(t *testing.T) {
	r := New()
	r.Register(stubProtocol{version: Version{1, 0}})
	r.Register(stubProtocol{version: Version{1, 2}})

	p, ok := r.Find(1, 0, false)
	if !ok || p.Version() != (Version{1, 0}) {
		t.Fatalf("expected exact match (1,0), got %+v ok=%v", p, ok)
	}
}

func TestFindMinorAutoSelect(t *testing.T) {
	r := New()
	r.Register(stubProtocol{version: Version{1, 0}})
	r.Register(stubProtocol{version: Version{1, 2}})

	p, ok := r.Find(1, -1, false)
	if !ok || p.Version() != (Version{1, 2}) {
		t.Fatalf("expected highest minor (1,2), got %+v ok=%v", p, ok)
	}
}

func TestFindNoMatch(t *testing.T) {
	r := New()
	r.Register(stubProtocol{version: Version{1, 0}})

	if _, ok := r.Find(2, 0, false); ok {
		t.Fatal("expected no match for unregistered major")
	}
}

func TestFindHidesExperimentalByDefault(t *testing.T) {
	r := New()
	r.Register(stubProtocol{version: Version{1, 1}, experimental: true})

	if _, ok := r.Find(1, 1, false); ok {
		t.Fatal("expected experimental protocol to be hidden")
	}
	if _, ok := r.Find(1, 1, true); !ok {
		t.Fatal("expected experimental protocol visible with includeExperimental")
	}
}

func TestRegisterIsIdempotentOverVersion(t *testing.T) {
	r := New()
	r.Register(stubProtocol{version: Version{1, 0}})
	r.Register(stubProtocol{version: Version{1, 0}, experimental: true})

	p, ok := r.Find(1, 0, true)
	if !ok {
		t.Fatal("expected match")
	}
	if p.Experimental() {
		t.Fatal("second Register call with same version should have been ignored")
	}
}

func TestDiscoverableExcludesExperimentalUnlessRequested(t *testing.T) {
	r := New()
	r.Register(stubProtocol{version: Version{1, 0}})
	r.Register(stubProtocol{version: Version{1, 1}, experimental: true})

	visible := r.Discoverable(false)
	if len(visible) != 1 {
		t.Fatalf("expected 1 non-experimental protocol, got %d", len(visible))
	}

	all := r.Discoverable(true)
	if len(all) != 2 {
		t.Fatalf("expected 2 protocols with experimental included, got %d", len(all))
	}
}
