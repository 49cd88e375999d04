package workflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// Registry stores registered workflow definitions keyed by (id, version).
// Definitions are immutable once registered: Register rejects duplicates
// rather than replacing them, so a running engine never observes a
// definition changing underneath it. New versions of a workflow register
// alongside the old ones.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	defs       map[string]map[string]*Definition // id → version → definition
	checkTypes CheckTypeIndex
}

// NewRegistry creates an empty registry. checkTypes may be nil, in which
// case doneWhen types are not validated at registration.
func NewRegistry(checkTypes CheckTypeIndex) *Registry {
	return &Registry{
		defs:       make(map[string]map[string]*Definition),
		checkTypes: checkTypes,
	}
}

// Register validates the definition and stores it under (ID, Version).
// Structural problems return an error wrapping ErrInvalidDefinition; an
// already-registered pair returns an error wrapping ErrDuplicate.
func (r *Registry) Register(def *Definition) error {
	result := ValidateDefinition(def, r.checkTypes)
	if !result.IsValid() {
		return fmt.Errorf("%w: %s@%s\n%s", ErrInvalidDefinition, def.ID, def.Version, result.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.defs[def.ID]
	if !ok {
		versions = make(map[string]*Definition)
		r.defs[def.ID] = versions
	}
	if _, exists := versions[def.Version]; exists {
		return fmt.Errorf("%w: %s@%s", ErrDuplicate, def.ID, def.Version)
	}
	versions[def.Version] = def
	return nil
}

// Get returns the definition for id at the given version. An empty version
// selects the highest version: semantic-version ordering when both sides
// parse as semver (a release outranks its prereleases), plain string
// comparison otherwise. Unknown ids and versions return an error wrapping
// ErrNotFound.
func (r *Registry) Get(id, version string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.defs[id]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("%w: workflow %q", ErrNotFound, id)
	}

	if version != "" {
		def, ok := versions[version]
		if !ok {
			return nil, fmt.Errorf("%w: workflow %s@%s", ErrNotFound, id, version)
		}
		return def, nil
	}

	var best string
	for v := range versions {
		if best == "" || compareVersions(v, best) > 0 {
			best = v
		}
	}
	return versions[best], nil
}

// Has reports whether any version of id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs[id]) > 0
}

// List returns summaries of every registered definition, sorted by id and
// then by descending version so the newest version of each workflow leads.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Summary
	for _, versions := range r.defs {
		for _, def := range versions {
			out = append(out, def.Summary())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return compareVersions(out[i].Version, out[j].Version) > 0
	})
	return out
}

// compareVersions orders two version strings. Both parseable as semver
// compare semantically (prerelease identifiers per the semver spec, where a
// bare release outranks any of its prereleases); otherwise the comparison
// falls back to plain string order so non-semver schemes still resolve
// deterministically.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return strings.Compare(a, b)
}
