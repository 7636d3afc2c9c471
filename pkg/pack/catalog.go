package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ObligationIndex answers whether an obligation id is registered.
// Satisfied by *obligation.Registry.
type ObligationIndex interface {
	Has(id string) bool
}

// Catalog holds loaded packs, keeping the highest semver version per
// pack id. Read-only after load; safe for concurrent readers.
type Catalog struct {
	mu       sync.RWMutex
	latest   map[string]*Pack            // pack id -> highest version
	versions map[string]map[string]*Pack // pack id -> version -> pack
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		latest:   make(map[string]*Pack),
		versions: make(map[string]map[string]*Pack),
	}
}

// LoadDir loads every *.yaml pack file in dir into a catalog.
func LoadDir(dir string) (*Catalog, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan packs dir %s: %w", dir, err)
	}
	if ymls, err := filepath.Glob(filepath.Join(dir, "*.yml")); err == nil {
		matches = append(matches, ymls...)
	}
	sort.Strings(matches)

	cat := NewCatalog()
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read pack %s: %w", path, err)
		}
		p, err := Parse(data, path)
		if err != nil {
			return nil, err
		}
		if err := cat.add(p); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// Parse validates a single pack document and decodes it into a typed
// record, including internal referential integrity and semver checks.
func Parse(data []byte, source string) (*Pack, error) {
	schema, err := compiledPackSchema()
	if err != nil {
		return nil, err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &SchemaError{Source: source, Detail: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if err := schema.Validate(raw); err != nil {
		return nil, &SchemaError{Source: source, Detail: err.Error()}
	}

	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &SchemaError{Source: source, Detail: fmt.Sprintf("decode failed: %v", err)}
	}

	if _, err := semver.NewVersion(p.Version); err != nil {
		return nil, &SchemaError{Source: source, Detail: fmt.Sprintf("version %q is not semver: %v", p.Version, err)}
	}
	if err := checkIntegrity(&p, source); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	p.ContentHash = "sha256:" + hex.EncodeToString(sum[:])
	p.Source = source
	return &p, nil
}

// checkIntegrity enforces the pack-internal invariants: unique failure
// mode and template ids, and every template bound to a declared failure
// mode.
func checkIntegrity(p *Pack, source string) error {
	modes := make(map[string]bool, len(p.FailureModes))
	for _, fm := range p.FailureModes {
		if modes[fm.ID] {
			return &SchemaError{Source: source, Detail: fmt.Sprintf("duplicate failure mode id %q", fm.ID)}
		}
		modes[fm.ID] = true
	}

	templates := make(map[string]bool, len(p.TestTemplates))
	for _, tt := range p.TestTemplates {
		if templates[tt.ID] {
			return &SchemaError{Source: source, Detail: fmt.Sprintf("duplicate test template id %q", tt.ID)}
		}
		templates[tt.ID] = true
		if !modes[tt.FailureModeID] {
			return &SchemaError{Source: source,
				Detail: fmt.Sprintf("template %q references unknown failure mode %q", tt.ID, tt.FailureModeID)}
		}
	}
	return nil
}

func (c *Catalog) add(p *Pack) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byVersion, ok := c.versions[p.ID]
	if !ok {
		byVersion = make(map[string]*Pack)
		c.versions[p.ID] = byVersion
	}
	if prev, dup := byVersion[p.Version]; dup {
		return &DuplicateIDError{ID: p.ID, Version: p.Version, Sources: [2]string{prev.Source, p.Source}}
	}
	byVersion[p.Version] = p

	cur, ok := c.latest[p.ID]
	if !ok {
		c.latest[p.ID] = p
		return nil
	}
	// Versions already validated by Parse.
	curV := semver.MustParse(cur.Version)
	newV := semver.MustParse(p.Version)
	if newV.GreaterThan(curV) {
		c.latest[p.ID] = p
	}
	return nil
}

// Get returns the highest version of the pack with the given id.
func (c *Catalog) Get(id string) (*Pack, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.latest[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return p, nil
}

// List returns the highest version of every pack, ordered by id
// ascending.
func (c *Catalog) List() []*Pack {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.latest))
	for id := range c.latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Pack, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.latest[id])
	}
	return out
}

// Versions returns all loaded versions of a pack id, sorted ascending
// by semver.
func (c *Catalog) Versions(id string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byVersion, ok := c.versions[id]
	if !ok {
		return nil
	}
	parsed := make([]*semver.Version, 0, len(byVersion))
	for v := range byVersion {
		parsed = append(parsed, semver.MustParse(v))
	}
	sort.Sort(semver.Collection(parsed))

	out := make([]string, len(parsed))
	for i, v := range parsed {
		out[i] = v.Original()
	}
	return out
}

// Count returns the number of distinct pack ids.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.latest)
}

// VerifyCoverage checks every pack's obligations_covered against the
// registry. Entries marked proposed are exempt; anything else unknown
// is a CoverageError.
func (c *Catalog) VerifyCoverage(index ObligationIndex) error {
	for _, p := range c.List() {
		for _, ref := range p.ObligationsCovered {
			if IsProposedRef(ref) {
				continue
			}
			if !index.Has(ref) {
				return &CoverageError{PackID: p.ID, ObligationID: ref}
			}
		}
	}
	return nil
}
